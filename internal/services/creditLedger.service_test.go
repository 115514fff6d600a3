package services

import (
	"context"
	"testing"
	"time"

	. "auxparty/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeIdentityStore is an in-memory IdentityStore. loadErr, when set, is
// returned on every load until cleared.
type fakeIdentityStore struct {
	user    User
	loadErr error
	saveErr error
	loads   int
	saves   int
}

func (f *fakeIdentityStore) LoadCreditFields(ctx context.Context, id uuid.UUID) (*User, error) {
	f.loads++
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	copied := f.user
	return &copied, nil
}

func (f *fakeIdentityStore) SaveCreditFields(ctx context.Context, user *User) error {
	f.saves++
	if f.saveErr != nil {
		return f.saveErr
	}
	f.user = *user
	return nil
}

func newLedgerUser(current, total int, refreshed *time.Time) User {
	user := User{
		DisplayName:    "guest",
		IsActive:       true,
		CurrentCredits: current,
		TotalCredits:   total,
	}
	user.ID = uuid.New()
	user.CreditRefreshDate = refreshed
	return user
}

func TestEnsureDailyCreditsResetsStaleBalance(t *testing.T) {
	yesterday := time.Now().UTC().Add(-24 * time.Hour)
	store := &fakeIdentityStore{user: newLedgerUser(2, 10, &yesterday)}
	ledger := NewCreditLedgerService(store, nil, 10)

	state, err := ledger.EnsureDailyCredits(context.Background(), store.user.ID)
	require.NoError(t, err)

	assert.Equal(t, 10, state.CurrentCredits)
	assert.Equal(t, 10, state.TotalCredits)
	assert.Equal(t, 1, store.saves)
	require.NotNil(t, store.user.CreditRefreshDate)
	assert.False(t, store.user.CreditRefreshDate.Before(
		time.Now().UTC().Truncate(24*time.Hour)))
}

func TestEnsureDailyCreditsNoWriteWhenCurrent(t *testing.T) {
	now := time.Now().UTC()
	store := &fakeIdentityStore{user: newLedgerUser(4, 10, &now)}
	ledger := NewCreditLedgerService(store, nil, 10)

	state, err := ledger.EnsureDailyCredits(context.Background(), store.user.ID)
	require.NoError(t, err)

	assert.Equal(t, 4, state.CurrentCredits)
	assert.Equal(t, 0, store.saves)
}

func TestEnsureDailyCreditsAppliesDefaultTotal(t *testing.T) {
	now := time.Now().UTC()
	store := &fakeIdentityStore{user: newLedgerUser(0, 0, &now)}
	ledger := NewCreditLedgerService(store, nil, 7)

	state, err := ledger.EnsureDailyCredits(context.Background(), store.user.ID)
	require.NoError(t, err)

	assert.Equal(t, 7, state.TotalCredits)
	assert.Equal(t, 1, store.saves)
}

func TestSpendCreditsDeducts(t *testing.T) {
	now := time.Now().UTC()
	store := &fakeIdentityStore{user: newLedgerUser(5, 10, &now)}
	ledger := NewCreditLedgerService(store, nil, 10)

	state, err := ledger.SpendCredits(context.Background(), store.user.ID, 2)
	require.NoError(t, err)

	assert.Equal(t, 3, state.CurrentCredits)
	assert.Equal(t, 3, store.user.CurrentCredits)
}

func TestSpendCreditsInsufficient(t *testing.T) {
	now := time.Now().UTC()
	store := &fakeIdentityStore{user: newLedgerUser(1, 10, &now)}
	ledger := NewCreditLedgerService(store, nil, 10)

	_, err := ledger.SpendCredits(context.Background(), store.user.ID, 2)
	assert.ErrorIs(t, err, ErrInsufficientCredits)
	// Nothing written on a failed spend
	assert.Equal(t, 0, store.saves)
	assert.Equal(t, 1, store.user.CurrentCredits)
}

func TestSpendThenRefundRestoresBalance(t *testing.T) {
	now := time.Now().UTC()
	store := &fakeIdentityStore{user: newLedgerUser(8, 10, &now)}
	ledger := NewCreditLedgerService(store, nil, 10)

	_, err := ledger.SpendCredits(context.Background(), store.user.ID, 3)
	require.NoError(t, err)

	state, err := ledger.AddCredits(context.Background(), store.user.ID, 3)
	require.NoError(t, err)
	assert.Equal(t, 8, state.CurrentCredits)
}

func TestAddCreditsClampsAtTotal(t *testing.T) {
	now := time.Now().UTC()
	store := &fakeIdentityStore{user: newLedgerUser(9, 10, &now)}
	ledger := NewCreditLedgerService(store, nil, 10)

	state, err := ledger.AddCredits(context.Background(), store.user.ID, 5)
	require.NoError(t, err)

	assert.Equal(t, 10, state.CurrentCredits)
}

func TestSetTotalCreditsClampsBalance(t *testing.T) {
	now := time.Now().UTC()
	store := &fakeIdentityStore{user: newLedgerUser(8, 10, &now)}
	ledger := NewCreditLedgerService(store, nil, 10)

	state, err := ledger.SetTotalCredits(context.Background(), store.user.ID, 3)
	require.NoError(t, err)

	assert.Equal(t, 3, state.TotalCredits)
	assert.Equal(t, 3, state.CurrentCredits)
}

func TestLedgerRetriesExhaustToTemporarilyUnavailable(t *testing.T) {
	store := &fakeIdentityStore{
		user:    newLedgerUser(5, 10, nil),
		loadErr: &RateLimitedError{RetryAfter: time.Millisecond},
	}
	ledger := NewCreditLedgerService(store, nil, 10)

	_, err := ledger.SpendCredits(context.Background(), store.user.ID, 1)
	assert.ErrorIs(t, err, ErrTemporarilyUnavailable)
	assert.Equal(t, CreditStoreMaxRetries, store.loads)
}

func TestLedgerNonRateLimitErrorsNotRetried(t *testing.T) {
	store := &fakeIdentityStore{
		user:    newLedgerUser(5, 10, nil),
		loadErr: assert.AnError,
	}
	ledger := NewCreditLedgerService(store, nil, 10)

	_, err := ledger.SpendCredits(context.Background(), store.user.ID, 1)
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, 1, store.loads)
}
