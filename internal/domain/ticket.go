package domain

import (
	"context"
	"errors"
	"io"
	"time"
)

// Sentinel errors for ticket operations.
var (
	ErrDuplicateIssuance = errors.New("ticket already issued for this identity today")
	ErrTicketNotFound    = errors.New("ticket not found")
)

// DayFormat is the bucket key layout for calendar days in the reference timezone.
const DayFormat = "2006-01-02"

// Identity is an opaque key for "who is requesting". The boundary layer decides
// how it is established (signed cookie, remote IP, ...); the core only compares it.
type Identity string

// TicketStatus is the lifecycle state of a ticket. The only legal transition is
// StatusIssued -> StatusRedeemed.
type TicketStatus string

const (
	StatusIssued   TicketStatus = "issued"
	StatusRedeemed TicketStatus = "redeemed"
)

// Ticket represents a single-use voucher.
// swagger:model Ticket
type Ticket struct {
	ID         string       `json:"id"`
	Token      string       `json:"token"`
	Identity   Identity     `json:"identity"`
	IssuedAt   time.Time    `json:"issued_at"`
	Status     TicketStatus `json:"status"`
	RedeemedAt *time.Time   `json:"redeemed_at,omitempty"`
}

// NewTicket returns a new Issued ticket. ID is set by the repository on create.
func NewTicket(token string, identity Identity, issuedAt time.Time) *Ticket {
	return &Ticket{
		Token:    token,
		Identity: identity,
		IssuedAt: issuedAt,
		Status:   StatusIssued,
	}
}

// Redeemed reports whether the ticket has been redeemed.
func (t *Ticket) Redeemed() bool {
	return t.Status == StatusRedeemed
}

// IssuedOn returns the calendar day the ticket was issued on, in the given zone.
func (t *Ticket) IssuedOn(loc *time.Location) string {
	return t.IssuedAt.In(loc).Format(DayFormat)
}

// TicketRepository defines the interface for ticket storage. All mutations are
// atomic: the daily issuance claim and the redemption transition are enforced
// by the store itself, never by a separate read followed by a write.
type TicketRepository interface {
	// Issue persists a new Issued ticket and, in the same transaction, claims
	// the (identity, issuedOn) issuance slot. Returns ErrDuplicateIssuance when
	// the slot is already claimed; no ticket row is created in that case.
	Issue(ctx context.Context, ticket *Ticket, issuedOn string) error
	// Redeem performs the conditional Issued -> Redeemed transition, stamping
	// redeemedAt, and returns (ticket, true, nil) for the winning caller.
	// If the ticket was already redeemed it returns the stored ticket with the
	// original redemption timestamp and redeemedNow=false. Unknown tokens
	// return ErrTicketNotFound.
	Redeem(ctx context.Context, token string, redeemedAt time.Time) (ticket *Ticket, redeemedNow bool, err error)
	GetByToken(ctx context.Context, token string) (*Ticket, error)
	// ListAll returns every ticket ordered by issuance time, then token.
	ListAll(ctx context.Context) ([]*Ticket, error)
}

// TicketService defines the voucher lifecycle operations exposed to the
// delivery layer.
type TicketService interface {
	// Issue mints a token and creates a ticket for the identity, limited to one
	// per identity per calendar day. Returns ErrDuplicateIssuance otherwise.
	Issue(ctx context.Context, identity Identity) (*Ticket, error)
	// Redeem redeems the ticket with the given token exactly once. Returns
	// (ticket, true, nil) when this call won the redemption and
	// (ticket, false, nil) when the ticket had already been redeemed; the
	// ticket then carries the first redemption timestamp.
	Redeem(ctx context.Context, token string) (ticket *Ticket, redeemedNow bool, err error)
	GetByToken(ctx context.Context, token string) (*Ticket, error)
	// StatsSnapshot aggregates all tickets into time-bucketed counts.
	StatsSnapshot(ctx context.Context) (*StatsSnapshot, error)
	// Export returns every ticket record in a stable order for tabular export.
	Export(ctx context.Context) ([]*Ticket, error)
}

// TokenCodec mints redemption tokens and maps them to and from redemption URLs.
// Tokens are high-entropy and unrelated to storage identifiers.
type TokenCodec interface {
	Mint() (string, error)
	RedemptionURL(token string) string
	// TokenFromURL extracts and validates the token from a redemption URL.
	// TokenFromURL(RedemptionURL(t)) == t for every minted token t.
	TokenFromURL(rawURL string) (string, error)
}

// QRRenderer renders a redemption URL as a scannable image (infrastructure port).
type QRRenderer interface {
	RenderPNG(url string, size int) ([]byte, error)
}

// TicketExporter writes an ordered ticket dump in a tabular format
// (infrastructure port; the core only supplies the ordered records).
type TicketExporter interface {
	Write(w io.Writer, tickets []*Ticket) error
	ContentType() string
	Filename() string
}
