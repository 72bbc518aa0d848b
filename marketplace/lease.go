package marketplace

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/splitleasesharath/splitlease-sub012/bubblesync"
	"github.com/splitleasesharath/splitlease-sub012/config"
	"github.com/splitleasesharath/splitlease-sub012/models"
	"github.com/splitleasesharath/splitlease-sub012/utils"
)

type CreateLeaseInput struct {
	ProposalId int             `json:"proposal_id" binding:"required"`
	Deposit    decimal.Decimal `json:"deposit" binding:"required"`
}

// CreateLease accepts a submitted or countered proposal and drafts the lease
// on its terms. The proposal flips to Accepted and both rows queue for the
// legacy side in the same transaction.
func CreateLease(ctx context.Context, input CreateLeaseInput) (*models.Lease, error) {
	db := config.GetDB()

	var proposal models.Proposal
	if err := db.WithContext(ctx).Where("id = ?", input.ProposalId).Take(&proposal).Error; err != nil {
		return nil, fmt.Errorf("proposal %d: %w", input.ProposalId, utils.ErrorRecordNotFound)
	}
	if proposal.Status != models.ProposalStatusSubmitted && proposal.Status != models.ProposalStatusCountered {
		return nil, errors.New("proposal cannot be accepted in its current status")
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

	lease := models.Lease{
		ProposalId: proposal.ID,
		ListingId:  proposal.ListingId,
		GuestId:    proposal.GuestId,
		HostId:     proposal.HostId,
		StartDate:  proposal.MoveInDate,
		EndDate:    proposal.MoveOutDate,
		WeeklyRent: proposal.WeeklyRent,
		Deposit:    input.Deposit,
		Status:     models.LeaseStatusPendingSignature,
	}
	if err := tx.Create(&lease).Error; err != nil {
		return nil, err
	}

	if err := tx.Model(&proposal).Update("status", models.ProposalStatusAccepted).Error; err != nil {
		return nil, err
	}
	proposal.Status = models.ProposalStatusAccepted

	syncEntries := []bubblesync.EnqueueInput{
		{
			EntityType:    bubblesync.EntityTypeLease,
			EntityId:      entityId(lease.ID),
			Operation:     bubblesync.OperationCreate,
			CorrelationId: correlationId,
			Snapshot:      snapshotOfLease(lease),
		},
		{
			EntityType:    bubblesync.EntityTypeProposal,
			EntityId:      entityId(proposal.ID),
			Operation:     "proposal_accept",
			CorrelationId: correlationId,
			Snapshot:      snapshotOfProposal(proposal),
		},
	}
	for _, in := range syncEntries {
		if _, err := bubblesync.Enqueue(tx, in); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	nudgeAfterCommit(ctx, correlationId)
	return &lease, nil
}
