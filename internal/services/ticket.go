package services

import (
	"context"
	"errors"
	"fmt"

	"ticketbooth/internal/domain"
)

type ticketService struct {
	repo  domain.TicketRepository
	codec domain.TokenCodec
	clock domain.Clock
}

// NewTicketService creates a TicketService with the given repository, token
// codec, and reference clock.
func NewTicketService(repo domain.TicketRepository, codec domain.TokenCodec, clock domain.Clock) domain.TicketService {
	return &ticketService{
		repo:  repo,
		codec: codec,
		clock: clock,
	}
}

func (s *ticketService) Issue(ctx context.Context, identity domain.Identity) (*domain.Ticket, error) {
	if identity == "" {
		return nil, fmt.Errorf("identity is required")
	}

	token, err := s.codec.Mint()
	if err != nil {
		return nil, fmt.Errorf("mint token: %w", err)
	}

	ticket := domain.NewTicket(token, identity, s.clock.Now())
	if err := s.repo.Issue(ctx, ticket, ticket.IssuedOn(s.clock.Location())); err != nil {
		if errors.Is(err, domain.ErrDuplicateIssuance) {
			return nil, domain.ErrDuplicateIssuance
		}
		return nil, fmt.Errorf("issue ticket: %w", err)
	}
	return ticket, nil
}

func (s *ticketService) Redeem(ctx context.Context, token string) (*domain.Ticket, bool, error) {
	ticket, redeemedNow, err := s.repo.Redeem(ctx, token, s.clock.Now())
	if err != nil {
		if errors.Is(err, domain.ErrTicketNotFound) {
			return nil, false, domain.ErrTicketNotFound
		}
		return nil, false, fmt.Errorf("redeem ticket: %w", err)
	}
	return ticket, redeemedNow, nil
}

func (s *ticketService) GetByToken(ctx context.Context, token string) (*domain.Ticket, error) {
	ticket, err := s.repo.GetByToken(ctx, token)
	if err != nil {
		if errors.Is(err, domain.ErrTicketNotFound) {
			return nil, domain.ErrTicketNotFound
		}
		return nil, fmt.Errorf("get ticket: %w", err)
	}
	return ticket, nil
}

func (s *ticketService) StatsSnapshot(ctx context.Context) (*domain.StatsSnapshot, error) {
	tickets, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tickets: %w", err)
	}
	return AggregateStats(tickets, s.clock.Location()), nil
}

func (s *ticketService) Export(ctx context.Context) ([]*domain.Ticket, error) {
	tickets, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tickets: %w", err)
	}
	return tickets, nil
}
