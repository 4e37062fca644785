package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"ticketbooth/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock implements domain.Clock with a controllable current time.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(now time.Time) *fakeClock {
	return &fakeClock{now: now}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Location() *time.Location {
	return c.Now().Location()
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeCodec implements domain.TokenCodec with sequential tokens.
type fakeCodec struct {
	mu      sync.Mutex
	n       int
	mintErr error
}

func (c *fakeCodec) Mint() (string, error) {
	if c.mintErr != nil {
		return "", c.mintErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n++
	return fmt.Sprintf("tok-%04d", c.n), nil
}

func (c *fakeCodec) RedemptionURL(token string) string {
	return "http://test/redeem/" + token
}

func (c *fakeCodec) TokenFromURL(rawURL string) (string, error) {
	return rawURL[len("http://test/redeem/"):], nil
}

// fakeTicketRepo implements domain.TicketRepository in memory. The mutex makes
// the claim and the redemption transition atomic, mirroring the database
// uniqueness constraint and conditional update.
type fakeTicketRepo struct {
	mu        sync.Mutex
	claims    map[string]bool
	byToken   map[string]*domain.Ticket
	order     []string
	issueErr  error
	redeemErr error
	listErr   error
}

func newFakeTicketRepo() *fakeTicketRepo {
	return &fakeTicketRepo{
		claims:  make(map[string]bool),
		byToken: make(map[string]*domain.Ticket),
	}
}

func (f *fakeTicketRepo) Issue(_ context.Context, ticket *domain.Ticket, issuedOn string) error {
	if f.issueErr != nil {
		return f.issueErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	key := string(ticket.Identity) + "|" + issuedOn
	if f.claims[key] {
		return domain.ErrDuplicateIssuance
	}
	f.claims[key] = true
	ticket.ID = fmt.Sprintf("id-%d", len(f.order)+1)
	f.byToken[ticket.Token] = ticket
	f.order = append(f.order, ticket.Token)
	return nil
}

func (f *fakeTicketRepo) Redeem(_ context.Context, token string, redeemedAt time.Time) (*domain.Ticket, bool, error) {
	if f.redeemErr != nil {
		return nil, false, f.redeemErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	ticket, ok := f.byToken[token]
	if !ok {
		return nil, false, domain.ErrTicketNotFound
	}
	if ticket.Status == domain.StatusRedeemed {
		cp := *ticket
		return &cp, false, nil
	}
	ticket.Status = domain.StatusRedeemed
	at := redeemedAt
	ticket.RedeemedAt = &at
	cp := *ticket
	return &cp, true, nil
}

func (f *fakeTicketRepo) GetByToken(_ context.Context, token string) (*domain.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ticket, ok := f.byToken[token]
	if !ok {
		return nil, domain.ErrTicketNotFound
	}
	cp := *ticket
	return &cp, nil
}

func (f *fakeTicketRepo) ListAll(_ context.Context) ([]*domain.Ticket, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	tickets := make([]*domain.Ticket, 0, len(f.order))
	for _, token := range f.order {
		cp := *f.byToken[token]
		tickets = append(tickets, &cp)
	}
	return tickets, nil
}

func santiago(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("America/Santiago")
	require.NoError(t, err)
	return loc
}

func newTestService(t *testing.T) (domain.TicketService, *fakeTicketRepo, *fakeClock) {
	t.Helper()
	repo := newFakeTicketRepo()
	clock := newFakeClock(time.Date(2024, 1, 1, 18, 30, 0, 0, santiago(t)))
	return NewTicketService(repo, &fakeCodec{}, clock), repo, clock
}

func TestTicketService_Issue(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	ticket, err := svc.Issue(ctx, "visitor:a")
	require.NoError(t, err)
	assert.NotEmpty(t, ticket.ID)
	assert.NotEmpty(t, ticket.Token)
	assert.Equal(t, domain.Identity("visitor:a"), ticket.Identity)
	assert.Equal(t, domain.StatusIssued, ticket.Status)
	assert.Nil(t, ticket.RedeemedAt)
}

func TestTicketService_Issue_EmptyIdentity(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	_, err := svc.Issue(ctx, "")
	require.Error(t, err)
}

func TestTicketService_Issue_DuplicateSameDay(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	_, err := svc.Issue(ctx, "visitor:a")
	require.NoError(t, err)

	_, err = svc.Issue(ctx, "visitor:a")
	require.ErrorIs(t, err, domain.ErrDuplicateIssuance)

	// Another identity is not throttled by the first.
	_, err = svc.Issue(ctx, "visitor:b")
	require.NoError(t, err)
}

func TestTicketService_Issue_NextDayEligibleAgain(t *testing.T) {
	ctx := context.Background()
	svc, _, clock := newTestService(t)

	_, err := svc.Issue(ctx, "visitor:a")
	require.NoError(t, err)

	clock.advance(24 * time.Hour)
	_, err = svc.Issue(ctx, "visitor:a")
	require.NoError(t, err)
}

func TestTicketService_Issue_ConcurrentSingleWinner(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	const n = 50
	results := make(chan error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Issue(ctx, "visitor:a")
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var succeeded, duplicates int
	for err := range results {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, domain.ErrDuplicateIssuance):
			duplicates++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, n-1, duplicates)
}

func TestTicketService_Issue_StorageError(t *testing.T) {
	ctx := context.Background()
	repo := newFakeTicketRepo()
	repo.issueErr = errors.New("connection refused")
	clock := newFakeClock(time.Date(2024, 1, 1, 18, 30, 0, 0, santiago(t)))
	svc := NewTicketService(repo, &fakeCodec{}, clock)

	_, err := svc.Issue(ctx, "visitor:a")
	require.Error(t, err)
	require.NotErrorIs(t, err, domain.ErrDuplicateIssuance)
}

func TestTicketService_Redeem(t *testing.T) {
	ctx := context.Background()
	svc, _, clock := newTestService(t)

	issued, err := svc.Issue(ctx, "visitor:a")
	require.NoError(t, err)

	clock.advance(30 * time.Minute)
	ticket, redeemedNow, err := svc.Redeem(ctx, issued.Token)
	require.NoError(t, err)
	assert.True(t, redeemedNow)
	assert.Equal(t, domain.StatusRedeemed, ticket.Status)
	require.NotNil(t, ticket.RedeemedAt)
	assert.Equal(t, clock.Now(), *ticket.RedeemedAt)
}

func TestTicketService_Redeem_Twice(t *testing.T) {
	ctx := context.Background()
	svc, _, clock := newTestService(t)

	issued, err := svc.Issue(ctx, "visitor:a")
	require.NoError(t, err)

	first, redeemedNow, err := svc.Redeem(ctx, issued.Token)
	require.NoError(t, err)
	require.True(t, redeemedNow)

	clock.advance(5 * time.Minute)
	second, redeemedNow, err := svc.Redeem(ctx, issued.Token)
	require.NoError(t, err)
	assert.False(t, redeemedNow)
	require.NotNil(t, second.RedeemedAt)
	// The loser reports the winner's timestamp, not its own attempt time.
	assert.Equal(t, *first.RedeemedAt, *second.RedeemedAt)
}

func TestTicketService_Redeem_UnknownToken(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	_, _, err := svc.Redeem(ctx, "tok-forged")
	require.ErrorIs(t, err, domain.ErrTicketNotFound)
}

func TestTicketService_Redeem_ConcurrentSingleWinner(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	issued, err := svc.Issue(ctx, "visitor:a")
	require.NoError(t, err)

	const m = 50
	type outcome struct {
		redeemedNow bool
		redeemedAt  time.Time
		err         error
	}
	results := make(chan outcome, m)
	var wg sync.WaitGroup
	for i := 0; i < m; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ticket, redeemedNow, err := svc.Redeem(ctx, issued.Token)
			o := outcome{redeemedNow: redeemedNow, err: err}
			if err == nil && ticket.RedeemedAt != nil {
				o.redeemedAt = *ticket.RedeemedAt
			}
			results <- o
		}()
	}
	wg.Wait()
	close(results)

	var winners, losers int
	var stamps []time.Time
	for o := range results {
		require.NoError(t, o.err)
		if o.redeemedNow {
			winners++
		} else {
			losers++
		}
		stamps = append(stamps, o.redeemedAt)
	}
	assert.Equal(t, 1, winners)
	assert.Equal(t, m-1, losers)
	for _, stamp := range stamps {
		assert.Equal(t, stamps[0], stamp)
	}
}

func TestTicketService_Lifecycle(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	issued, err := svc.Issue(ctx, "A")
	require.NoError(t, err)

	_, err = svc.Issue(ctx, "A")
	require.ErrorIs(t, err, domain.ErrDuplicateIssuance)

	redeemed, redeemedNow, err := svc.Redeem(ctx, issued.Token)
	require.NoError(t, err)
	require.True(t, redeemedNow)
	require.NotNil(t, redeemed.RedeemedAt)
	first := *redeemed.RedeemedAt

	again, redeemedNow, err := svc.Redeem(ctx, issued.Token)
	require.NoError(t, err)
	assert.False(t, redeemedNow)
	assert.Equal(t, first, *again.RedeemedAt)

	_, _, err = svc.Redeem(ctx, "tok-unknown")
	require.ErrorIs(t, err, domain.ErrTicketNotFound)
}

func TestTicketService_StatsSnapshot_EmptyStore(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	snapshot, err := svc.StatsSnapshot(ctx)
	require.NoError(t, err)
	assert.Empty(t, snapshot.ByDay)
	assert.Empty(t, snapshot.ByDayHour)
	assert.NotNil(t, snapshot.Days)
	assert.Empty(t, snapshot.Days)
	assert.Equal(t, domain.BucketCount{}, snapshot.RedeemedSplit)
}

func TestTicketService_Export_Order(t *testing.T) {
	ctx := context.Background()
	svc, _, clock := newTestService(t)

	first, err := svc.Issue(ctx, "visitor:a")
	require.NoError(t, err)
	clock.advance(time.Hour)
	second, err := svc.Issue(ctx, "visitor:b")
	require.NoError(t, err)

	tickets, err := svc.Export(ctx)
	require.NoError(t, err)
	require.Len(t, tickets, 2)
	assert.Equal(t, first.Token, tickets[0].Token)
	assert.Equal(t, second.Token, tickets[1].Token)
}
