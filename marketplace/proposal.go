package marketplace

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/splitleasesharath/splitlease-sub012/bubblesync"
	"github.com/splitleasesharath/splitlease-sub012/config"
	"github.com/splitleasesharath/splitlease-sub012/models"
	"github.com/splitleasesharath/splitlease-sub012/utils"
)

type CreateProposalInput struct {
	ListingId       int             `json:"listing_id" binding:"required"`
	GuestId         int             `json:"guest_id" binding:"required"`
	NightsRequested int             `json:"nights_requested" binding:"required,nightsmask"`
	MoveInDate      time.Time       `json:"move_in_date" binding:"required"`
	MoveOutDate     time.Time       `json:"move_out_date" binding:"required"`
	WeeklyRent      decimal.Decimal `json:"weekly_rent" binding:"required"`
	Message         string          `json:"message" binding:"required,max=4000"`
}

// CreateProposal submits a guest's offer on a listing. One transaction writes
// the proposal, its message thread, the opening messages and the counter
// bumps on both users, plus the queue entries that carry all of it to the
// legacy side. Either everything lands or nothing does.
func CreateProposal(ctx context.Context, input CreateProposalInput) (*models.Proposal, error) {
	db := config.GetDB()

	var listing models.Listing
	if err := db.WithContext(ctx).Where("id = ?", input.ListingId).Take(&listing).Error; err != nil {
		return nil, fmt.Errorf("listing %d: %w", input.ListingId, utils.ErrorRecordNotFound)
	}
	if listing.Status != models.ListingStatusActive {
		return nil, errors.New("listing is not accepting proposals")
	}
	if input.NightsRequested&^listing.NightsOffered != 0 {
		return nil, errors.New("requested nights are not offered by this listing")
	}
	if !input.MoveOutDate.After(input.MoveInDate) {
		return nil, errors.New("move-out date must be after move-in date")
	}

	var guest, host models.User
	if err := db.WithContext(ctx).Where("id = ?", input.GuestId).Take(&guest).Error; err != nil {
		return nil, fmt.Errorf("guest %d: %w", input.GuestId, utils.ErrorRecordNotFound)
	}
	if err := db.WithContext(ctx).Where("id = ?", listing.HostId).Take(&host).Error; err != nil {
		return nil, fmt.Errorf("host %d: %w", listing.HostId, utils.ErrorRecordNotFound)
	}

	correlationId, _ := utils.GetCorrelationIdFromContext(ctx)

	tx := db.WithContext(ctx).Begin()
	// IMPORTANT: always rollback on early-return or panic to avoid leaking DB locks
	// (leaked transactions are a common cause of MySQL 1205 lock wait timeouts).
	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback().Error
			panic(r)
		}
	}()
	defer func() { _ = tx.Rollback().Error }()

	proposal := models.Proposal{
		ListingId:       listing.ID,
		GuestId:         guest.ID,
		HostId:          host.ID,
		NightsRequested: input.NightsRequested,
		MoveInDate:      input.MoveInDate,
		MoveOutDate:     input.MoveOutDate,
		WeeklyRent:      input.WeeklyRent,
		Status:          models.ProposalStatusSubmitted,
	}
	if err := tx.Create(&proposal).Error; err != nil {
		return nil, err
	}

	thread := models.MessageThread{
		ListingId:  listing.ID,
		ProposalId: proposal.ID,
		GuestId:    guest.ID,
		HostId:     host.ID,
		Subject:    "Proposal for " + listing.Title,
	}
	if err := tx.Create(&thread).Error; err != nil {
		return nil, err
	}

	summary := models.Message{
		ThreadId: thread.ID,
		SenderId: guest.ID,
		IsSystem: true,
		Body:     proposalSummaryBody(proposal, listing),
	}
	if err := tx.Create(&summary).Error; err != nil {
		return nil, err
	}

	opening := models.Message{
		ThreadId: thread.ID,
		SenderId: guest.ID,
		Body:     input.Message,
	}
	if err := tx.Create(&opening).Error; err != nil {
		return nil, err
	}

	if err := tx.Model(&proposal).Update("thread_id", thread.ID).Error; err != nil {
		return nil, err
	}
	proposal.ThreadId = thread.ID

	if err := tx.Model(&models.User{}).Where("id = ?", guest.ID).
		Update("proposals_sent", guest.ProposalsSent+1).Error; err != nil {
		return nil, err
	}
	guest.ProposalsSent++
	if err := tx.Model(&models.User{}).Where("id = ?", host.ID).
		Update("proposals_received", host.ProposalsReceived+1).Error; err != nil {
		return nil, err
	}
	host.ProposalsReceived++

	for _, in := range proposalSyncEntries(proposal, thread, summary, opening, guest, host, correlationId) {
		if _, err := bubblesync.Enqueue(tx, in); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	nudgeAfterCommit(ctx, correlationId)
	return &proposal, nil
}

// proposalSyncEntries is the full fan-out for one submitted proposal. All
// entries share the request's correlation id so a partial failure alerts as
// one incident.
func proposalSyncEntries(p models.Proposal, t models.MessageThread, summary, opening models.Message, guest, host models.User, correlationId string) []bubblesync.EnqueueInput {
	return []bubblesync.EnqueueInput{
		{
			EntityType:    bubblesync.EntityTypeProposal,
			EntityId:      entityId(p.ID),
			Operation:     bubblesync.OperationCreate,
			CorrelationId: correlationId,
			Snapshot:      snapshotOfProposal(p),
		},
		{
			EntityType:    bubblesync.EntityTypeThread,
			EntityId:      entityId(t.ID),
			Operation:     bubblesync.OperationCreate,
			CorrelationId: correlationId,
			Snapshot:      snapshotOfThread(t),
		},
		{
			EntityType:    bubblesync.EntityTypeMessage,
			EntityId:      entityId(summary.ID),
			Operation:     bubblesync.OperationCreate,
			CorrelationId: correlationId,
			Snapshot:      snapshotOfMessage(summary),
		},
		{
			EntityType:    bubblesync.EntityTypeMessage,
			EntityId:      entityId(opening.ID),
			Operation:     bubblesync.OperationCreate,
			CorrelationId: correlationId,
			Snapshot:      snapshotOfMessage(opening),
		},
		{
			EntityType:    bubblesync.EntityTypeUser,
			EntityId:      entityId(guest.ID),
			Operation:     bubblesync.OperationUpdate,
			CorrelationId: correlationId,
			Snapshot:      snapshotOfUser(guest),
		},
		{
			EntityType:    bubblesync.EntityTypeUser,
			EntityId:      entityId(host.ID),
			Operation:     bubblesync.OperationUpdate,
			CorrelationId: correlationId,
			Snapshot:      snapshotOfUser(host),
		},
	}
}

func proposalSummaryBody(p models.Proposal, l models.Listing) string {
	return fmt.Sprintf("New proposal for %s: %d night(s)/week, %s to %s, %s/week",
		l.Title,
		countNights(p.NightsRequested),
		p.MoveInDate.Format("Jan 2, 2006"),
		p.MoveOutDate.Format("Jan 2, 2006"),
		p.WeeklyRent.StringFixed(2))
}

func countNights(mask int) int {
	n := 0
	for mask != 0 {
		n += mask & 1
		mask >>= 1
	}
	return n
}

// nudgeAfterCommit is best-effort; a lost nudge means the dispatcher picks
// the entries up on its next poll instead. Runs off the request goroutine so
// a slow Pub/Sub publish never delays the response.
func nudgeAfterCommit(ctx context.Context, correlationId string) {
	go func() {
		publishCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := bubblesync.PublishDispatchNudge(publishCtx, correlationId); err != nil {
			config.GetLogger().WithFields(logrus.Fields{
				"field":          "Marketplace",
				"correlation_id": correlationId,
			}).Warn("dispatch nudge failed: " + err.Error())
		}
	}()
}
