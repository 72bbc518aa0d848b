package marketplace

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/splitleasesharath/splitlease-sub012/bubblesync"
	"github.com/splitleasesharath/splitlease-sub012/config"
	"github.com/splitleasesharath/splitlease-sub012/models"
	"github.com/splitleasesharath/splitlease-sub012/utils"
)

type UpdateListingInput struct {
	Title         *string          `json:"title" binding:"omitempty,max=255"`
	Neighborhood  *string          `json:"neighborhood" binding:"omitempty,max=120"`
	Borough       *string          `json:"borough" binding:"omitempty,max=60"`
	NightlyRate   *decimal.Decimal `json:"nightly_rate"`
	WeeklyRate    *decimal.Decimal `json:"weekly_rate"`
	MonthlyRate   *decimal.Decimal `json:"monthly_rate"`
	NightsOffered *int             `json:"nights_offered" binding:"omitempty,nightsmask"`
	Status        *string          `json:"status" binding:"omitempty,oneof=Draft Active Paused Archived"`
}

// UpdateListing applies a partial update and queues the new state for the
// legacy side in the same transaction.
func UpdateListing(ctx context.Context, id int, input UpdateListingInput) (*models.Listing, error) {
	db := config.GetDB()

	var listing models.Listing
	if err := db.WithContext(ctx).Where("id = ?", id).Take(&listing).Error; err != nil {
		return nil, fmt.Errorf("listing %d: %w", id, utils.ErrorRecordNotFound)
	}

	if input.Title != nil {
		listing.Title = *input.Title
	}
	if input.Neighborhood != nil {
		listing.Neighborhood = *input.Neighborhood
	}
	if input.Borough != nil {
		listing.Borough = *input.Borough
	}
	if input.NightlyRate != nil {
		listing.NightlyRate = *input.NightlyRate
	}
	if input.WeeklyRate != nil {
		listing.WeeklyRate = *input.WeeklyRate
	}
	if input.MonthlyRate != nil {
		listing.MonthlyRate = *input.MonthlyRate
	}
	if input.NightsOffered != nil {
		listing.NightsOffered = *input.NightsOffered
	}
	if input.Status != nil {
		listing.Status = models.ListingStatus(*input.Status)
	}

	correlationId, _ := utils.GetCorrelationIdFromContext(ctx)

	tx := db.WithContext(ctx).Begin()
	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback().Error
			panic(r)
		}
	}()
	defer func() { _ = tx.Rollback().Error }()

	if err := tx.Save(&listing).Error; err != nil {
		return nil, err
	}

	_, err := bubblesync.Enqueue(tx, bubblesync.EnqueueInput{
		EntityType:    bubblesync.EntityTypeListing,
		EntityId:      entityId(listing.ID),
		Operation:     bubblesync.OperationUpdate,
		CorrelationId: correlationId,
		Snapshot:      snapshotOfListing(listing),
	})
	if err != nil {
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	nudgeAfterCommit(ctx, correlationId)
	return &listing, nil
}

// DeleteListing removes a listing and queues the delete. The snapshot is
// taken before the row goes away; it is the last state the legacy side sees.
func DeleteListing(ctx context.Context, id int) error {
	db := config.GetDB()

	var listing models.Listing
	if err := db.WithContext(ctx).Where("id = ?", id).Take(&listing).Error; err != nil {
		return fmt.Errorf("listing %d: %w", id, utils.ErrorRecordNotFound)
	}

	correlationId, _ := utils.GetCorrelationIdFromContext(ctx)

	tx := db.WithContext(ctx).Begin()
	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback().Error
			panic(r)
		}
	}()
	defer func() { _ = tx.Rollback().Error }()

	if err := tx.Delete(&models.Listing{}, listing.ID).Error; err != nil {
		return err
	}

	_, err := bubblesync.Enqueue(tx, bubblesync.EnqueueInput{
		EntityType:    bubblesync.EntityTypeListing,
		EntityId:      entityId(listing.ID),
		Operation:     bubblesync.OperationDelete,
		CorrelationId: correlationId,
		Snapshot:      snapshotOfListing(listing),
	})
	if err != nil {
		return err
	}

	if err := tx.Commit().Error; err != nil {
		return err
	}

	nudgeAfterCommit(ctx, correlationId)
	return nil
}
