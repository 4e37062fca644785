package export

import (
	"encoding/csv"
	"io"
	"time"

	"ticketbooth/internal/domain"
)

type csvExporter struct {
	loc *time.Location
}

// NewCSVExporter returns a domain.TicketExporter that writes one CSV row per
// ticket, with issuance date and hour rendered in the reference timezone.
func NewCSVExporter(loc *time.Location) domain.TicketExporter {
	return &csvExporter{loc: loc}
}

func (e *csvExporter) Write(w io.Writer, tickets []*domain.Ticket) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"id", "token", "identity", "date", "hour", "status", "redeemed_at"}); err != nil {
		return err
	}
	for _, t := range tickets {
		issued := t.IssuedAt.In(e.loc)
		redeemed := ""
		if t.RedeemedAt != nil {
			redeemed = t.RedeemedAt.In(e.loc).Format(time.RFC3339)
		}
		record := []string{
			t.ID,
			t.Token,
			string(t.Identity),
			issued.Format(domain.DayFormat),
			issued.Format("15:04"),
			string(t.Status),
			redeemed,
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func (e *csvExporter) ContentType() string {
	return "text/csv; charset=utf-8"
}

func (e *csvExporter) Filename() string {
	return "tickets.csv"
}
