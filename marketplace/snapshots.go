package marketplace

import (
	"strconv"

	"github.com/splitleasesharath/splitlease-sub012/bubblesync"
	"github.com/splitleasesharath/splitlease-sub012/models"
)

// Snapshot builders. Each captures the row as committed; the queue never
// re-reads the table, so what is built here is what the legacy side receives.

func snapshotOfUser(u models.User) bubblesync.UserSnapshot {
	return bubblesync.UserSnapshot{
		Version:           1,
		UserId:            u.ID,
		LegacyId:          u.LegacyId,
		Email:             u.Email,
		FirstName:         u.FirstName,
		LastName:          u.LastName,
		Phone:             u.Phone,
		IsHost:            u.IsHost,
		ProposalsSent:     u.ProposalsSent,
		ProposalsReceived: u.ProposalsReceived,
	}
}

func snapshotOfListing(l models.Listing) bubblesync.ListingSnapshot {
	return bubblesync.ListingSnapshot{
		Version:       1,
		ListingId:     l.ID,
		LegacyId:      l.LegacyId,
		HostId:        l.HostId,
		Title:         l.Title,
		Neighborhood:  l.Neighborhood,
		Borough:       l.Borough,
		NightlyRate:   l.NightlyRate,
		WeeklyRate:    l.WeeklyRate,
		MonthlyRate:   l.MonthlyRate,
		NightsOffered: l.NightsOffered,
		Status:        string(l.Status),
	}
}

func snapshotOfProposal(p models.Proposal) bubblesync.ProposalSnapshot {
	return bubblesync.ProposalSnapshot{
		Version:         1,
		ProposalId:      p.ID,
		LegacyId:        p.LegacyId,
		ListingId:       p.ListingId,
		GuestId:         p.GuestId,
		HostId:          p.HostId,
		NightsRequested: p.NightsRequested,
		MoveInDate:      p.MoveInDate,
		MoveOutDate:     p.MoveOutDate,
		WeeklyRent:      p.WeeklyRent,
		Status:          string(p.Status),
		ThreadId:        p.ThreadId,
	}
}

func snapshotOfThread(t models.MessageThread) bubblesync.ThreadSnapshot {
	return bubblesync.ThreadSnapshot{
		Version:    1,
		ThreadId:   t.ID,
		LegacyId:   t.LegacyId,
		ListingId:  t.ListingId,
		ProposalId: t.ProposalId,
		GuestId:    t.GuestId,
		HostId:     t.HostId,
		Subject:    t.Subject,
	}
}

func snapshotOfMessage(m models.Message) bubblesync.MessageSnapshot {
	return bubblesync.MessageSnapshot{
		Version:   1,
		MessageId: m.ID,
		LegacyId:  m.LegacyId,
		ThreadId:  m.ThreadId,
		SenderId:  m.SenderId,
		IsSystem:  m.IsSystem,
		Body:      m.Body,
	}
}

func snapshotOfLease(l models.Lease) bubblesync.LeaseSnapshot {
	return bubblesync.LeaseSnapshot{
		Version:    1,
		LeaseId:    l.ID,
		LegacyId:   l.LegacyId,
		ProposalId: l.ProposalId,
		ListingId:  l.ListingId,
		GuestId:    l.GuestId,
		HostId:     l.HostId,
		StartDate:  l.StartDate,
		EndDate:    l.EndDate,
		WeeklyRent: l.WeeklyRent,
		Deposit:    l.Deposit,
		Status:     string(l.Status),
	}
}

func entityId(id int) string {
	return strconv.Itoa(id)
}
