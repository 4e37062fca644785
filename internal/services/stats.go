package services

import (
	"sort"
	"time"

	"ticketbooth/internal/domain"
)

// dayHourFormat truncates day+hour bucket keys to the top of the hour.
const dayHourFormat = "2006-01-02 15:00"

// AggregateStats derives time-bucketed issuance/redemption counts from the
// full ticket sequence. It is pure and read-only: an empty input yields empty
// (non-nil) buckets, and bucket keys come out sorted regardless of input order.
func AggregateStats(tickets []*domain.Ticket, loc *time.Location) *domain.StatsSnapshot {
	snapshot := &domain.StatsSnapshot{
		ByDay:     make(map[string]domain.BucketCount),
		ByDayHour: make(map[string]domain.BucketCount),
		Days:      []string{},
		DayHours:  []string{},
	}

	for _, ticket := range tickets {
		issued := ticket.IssuedAt.In(loc)
		day := issued.Format(domain.DayFormat)
		dayHour := issued.Format(dayHourFormat)

		snapshot.ByDay[day] = count(snapshot.ByDay[day], ticket)
		snapshot.ByDayHour[dayHour] = count(snapshot.ByDayHour[dayHour], ticket)
		snapshot.RedeemedSplit = count(snapshot.RedeemedSplit, ticket)
	}

	snapshot.Days = sortedKeys(snapshot.ByDay)
	snapshot.DayHours = sortedKeys(snapshot.ByDayHour)
	return snapshot
}

func count(c domain.BucketCount, ticket *domain.Ticket) domain.BucketCount {
	c.Total++
	if ticket.Redeemed() {
		c.Redeemed++
	} else {
		c.NotRedeemed++
	}
	return c
}

func sortedKeys(buckets map[string]domain.BucketCount) []string {
	keys := make([]string, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
