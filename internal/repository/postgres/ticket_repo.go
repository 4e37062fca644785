package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"ticketbooth/internal/domain"

	"github.com/lib/pq"
)

// uniqueViolation is the Postgres error code for unique constraint violations.
const uniqueViolation = "23505"

type ticketRepository struct {
	DB *sql.DB
}

// NewTicketRepository returns a domain.TicketRepository implemented with Postgres.
func NewTicketRepository(db *sql.DB) domain.TicketRepository {
	return &ticketRepository{DB: db}
}

// EnsureSchema creates the tickets and issuance_claims tables if they do not
// exist. The (identity, issued_on) primary key is what makes the daily
// issuance claim atomic.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS tickets (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			token TEXT NOT NULL UNIQUE,
			identity TEXT NOT NULL,
			issued_at TIMESTAMPTZ NOT NULL,
			status TEXT NOT NULL DEFAULT 'issued',
			redeemed_at TIMESTAMPTZ
		)`,
		`CREATE TABLE IF NOT EXISTS issuance_claims (
			identity TEXT NOT NULL,
			issued_on DATE NOT NULL,
			PRIMARY KEY (identity, issued_on)
		)`,
	}
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (r *ticketRepository) Issue(ctx context.Context, ticket *domain.Ticket, issuedOn string) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// The claim insert and the ticket insert commit together: either the
	// identity gets its one ticket for the day, or nothing is written.
	claimQuery := `
		INSERT INTO issuance_claims (identity, issued_on)
		VALUES ($1, $2)
	`
	if _, err := tx.ExecContext(ctx, claimQuery, ticket.Identity, issuedOn); err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicateIssuance
		}
		return err
	}

	ticketQuery := `
		INSERT INTO tickets (token, identity, issued_at, status)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`
	if err := tx.QueryRowContext(ctx, ticketQuery, ticket.Token, ticket.Identity, ticket.IssuedAt, ticket.Status).
		Scan(&ticket.ID); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *ticketRepository) Redeem(ctx context.Context, token string, redeemedAt time.Time) (*domain.Ticket, bool, error) {
	// Single conditional transition: only the caller whose UPDATE matches the
	// Issued row wins. Losers fall through to the SELECT below and report the
	// winner's timestamp.
	query := `
		UPDATE tickets
		SET status = $3, redeemed_at = $2
		WHERE token = $1 AND status = $4
		RETURNING id, token, identity, issued_at, status, redeemed_at
	`
	ticket := &domain.Ticket{}
	err := r.DB.QueryRowContext(ctx, query, token, redeemedAt, domain.StatusRedeemed, domain.StatusIssued).
		Scan(&ticket.ID, &ticket.Token, &ticket.Identity, &ticket.IssuedAt, &ticket.Status, &ticket.RedeemedAt)
	if err == nil {
		return ticket, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, err
	}

	// Either the token does not exist or the ticket is already redeemed.
	ticket, err = r.GetByToken(ctx, token)
	if err != nil {
		return nil, false, err
	}
	return ticket, false, nil
}

func (r *ticketRepository) GetByToken(ctx context.Context, token string) (*domain.Ticket, error) {
	query := `
		SELECT id, token, identity, issued_at, status, redeemed_at
		FROM tickets
		WHERE token = $1
	`
	ticket := &domain.Ticket{}
	err := r.DB.QueryRowContext(ctx, query, token).
		Scan(&ticket.ID, &ticket.Token, &ticket.Identity, &ticket.IssuedAt, &ticket.Status, &ticket.RedeemedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrTicketNotFound
		}
		return nil, err
	}
	return ticket, nil
}

func (r *ticketRepository) ListAll(ctx context.Context) ([]*domain.Ticket, error) {
	query := `
		SELECT id, token, identity, issued_at, status, redeemed_at
		FROM tickets
		ORDER BY issued_at, token
	`
	rows, err := r.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tickets []*domain.Ticket
	for rows.Next() {
		ticket := &domain.Ticket{}
		if err := rows.Scan(&ticket.ID, &ticket.Token, &ticket.Identity, &ticket.IssuedAt, &ticket.Status, &ticket.RedeemedAt); err != nil {
			return nil, err
		}
		tickets = append(tickets, ticket)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if tickets == nil {
		tickets = []*domain.Ticket{}
	}
	return tickets, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
