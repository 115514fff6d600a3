package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"auxparty/internal/database"
	"auxparty/internal/logger"
	. "auxparty/internal/models"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// IdentityStore is the slice of the identity record store the ledger needs.
// Loads are always fresh reads; the ledger owns its own caching.
type IdentityStore interface {
	LoadCreditFields(ctx context.Context, id uuid.UUID) (*User, error)
	SaveCreditFields(ctx context.Context, user *User) error
}

// CreditLedgerService keeps per-identity spendable balances consistent against
// a slow, rate-limited identity store. Reads go through a TTL cache with
// single-flight collapse; mutations force a fresh load first, write the full
// record back, then update the cache. Optimistic, not transactional: two
// near-simultaneous spends can still race (accepted, self-healing on the next
// load).
type CreditLedgerService struct {
	store        IdentityStore
	cache        database.CacheClient
	group        singleflight.Group
	defaultTotal int
	log          logger.Logger
}

func NewCreditLedgerService(
	store IdentityStore,
	cache database.CacheClient,
	defaultTotal int,
) *CreditLedgerService {
	return &CreditLedgerService{
		store:        store,
		cache:        cache,
		defaultTotal: defaultTotal,
		log:          logger.New("CreditLedgerService"),
	}
}

// EnsureDailyCredits returns the identity's normalized credit state, resetting
// the balance to the daily allowance when the stored refresh date is older
// than today. The reset happens as a side effect of the read.
func (s *CreditLedgerService) EnsureDailyCredits(
	ctx context.Context,
	userID uuid.UUID,
) (*CreditState, error) {
	if state, found := s.getCached(ctx, userID); found {
		return state, nil
	}

	result, err, _ := s.group.Do(userID.String(), func() (any, error) {
		// Re-check under the flight: a concurrent caller may have populated
		// the cache while we queued.
		if state, found := s.getCached(ctx, userID); found {
			return state, nil
		}
		return s.loadNormalizePersist(ctx, userID)
	})
	if err != nil {
		return nil, err
	}

	return result.(*CreditState), nil
}

// SpendCredits deducts amount from the identity's balance. Fails with
// ErrInsufficientCredits when the normalized balance cannot cover it.
func (s *CreditLedgerService) SpendCredits(
	ctx context.Context,
	userID uuid.UUID,
	amount int,
) (*CreditState, error) {
	log := s.log.Function("SpendCredits")

	if amount <= 0 {
		return nil, log.Error("spend amount must be positive", "amount", amount)
	}

	return s.mutate(ctx, userID, func(user *User) error {
		if user.CurrentCredits < amount {
			return ErrInsufficientCredits
		}
		user.CurrentCredits -= amount
		return nil
	})
}

// AddCredits returns amount to the identity's balance, clamped at the total.
func (s *CreditLedgerService) AddCredits(
	ctx context.Context,
	userID uuid.UUID,
	amount int,
) (*CreditState, error) {
	log := s.log.Function("AddCredits")

	if amount <= 0 {
		return nil, log.Error("credit amount must be positive", "amount", amount)
	}

	return s.mutate(ctx, userID, func(user *User) error {
		user.CurrentCredits += amount
		if user.CurrentCredits > user.TotalCredits {
			user.CurrentCredits = user.TotalCredits
		}
		return nil
	})
}

// SetTotalCredits changes the identity's daily allowance. The spendable
// balance is clamped into the new range but otherwise untouched.
func (s *CreditLedgerService) SetTotalCredits(
	ctx context.Context,
	userID uuid.UUID,
	total int,
) (*CreditState, error) {
	log := s.log.Function("SetTotalCredits")

	if total < 0 {
		return nil, log.Error("total credits cannot be negative", "total", total)
	}

	return s.mutate(ctx, userID, func(user *User) error {
		user.TotalCredits = total
		if user.CurrentCredits > total {
			user.CurrentCredits = total
		}
		return nil
	})
}

// mutate is the shared load-mutate-save path: always a fresh load (bypassing
// the cache to reduce lost-update risk), then a full write-back, then a cache
// update.
func (s *CreditLedgerService) mutate(
	ctx context.Context,
	userID uuid.UUID,
	apply func(*User) error,
) (*CreditState, error) {
	var user *User
	err := s.withRetry(ctx, func() error {
		loaded, loadErr := s.store.LoadCreditFields(ctx, userID)
		if loadErr != nil {
			return loadErr
		}
		user = loaded
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.normalize(user, time.Now())

	if err := apply(user); err != nil {
		return nil, err
	}

	err = s.withRetry(ctx, func() error {
		return s.store.SaveCreditFields(ctx, user)
	})
	if err != nil {
		return nil, err
	}

	state := s.toState(user)
	s.putCache(ctx, state)
	return state, nil
}

func (s *CreditLedgerService) loadNormalizePersist(
	ctx context.Context,
	userID uuid.UUID,
) (*CreditState, error) {
	var user *User
	err := s.withRetry(ctx, func() error {
		loaded, loadErr := s.store.LoadCreditFields(ctx, userID)
		if loadErr != nil {
			return loadErr
		}
		user = loaded
		return nil
	})
	if err != nil {
		return nil, err
	}

	changed := s.normalize(user, time.Now())
	if changed {
		err = s.withRetry(ctx, func() error {
			return s.store.SaveCreditFields(ctx, user)
		})
		if err != nil {
			return nil, err
		}
	}

	state := s.toState(user)
	s.putCache(ctx, state)
	return state, nil
}

// normalize clamps raw store values into the ledger's invariants and applies
// the daily reset. Returns true when the record changed and needs persisting.
func (s *CreditLedgerService) normalize(user *User, now time.Time) bool {
	changed := false

	if user.TotalCredits <= 0 {
		user.TotalCredits = s.defaultTotal
		changed = true
	}
	if user.CurrentCredits < 0 {
		user.CurrentCredits = 0
		changed = true
	}
	if user.CurrentCredits > user.TotalCredits {
		user.CurrentCredits = user.TotalCredits
		changed = true
	}

	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if user.CreditRefreshDate == nil || user.CreditRefreshDate.Before(today) {
		user.CurrentCredits = user.TotalCredits
		refreshed := now.UTC()
		user.CreditRefreshDate = &refreshed
		changed = true
	}

	return changed
}

// withRetry retries rate-limited store operations with backoff, honoring a
// provider-supplied retry-after hint when one is attached. Exhausted retries
// surface as ErrTemporarilyUnavailable.
func (s *CreditLedgerService) withRetry(ctx context.Context, op func() error) error {
	log := s.log.Function("withRetry")

	var err error
	for attempt := 0; attempt < CreditStoreMaxRetries; attempt++ {
		err = op()
		if err == nil || !errors.Is(err, ErrRateLimited) {
			return err
		}

		delay := CreditRetryBaseDelay * time.Duration(1<<attempt)
		var rateLimited *RateLimitedError
		if errors.As(err, &rateLimited) && rateLimited.RetryAfter > 0 {
			delay = rateLimited.RetryAfter
		}

		log.Warn("identity store rate limited, backing off",
			"attempt", attempt+1,
			"delay", delay)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	return fmt.Errorf("%w: %v", ErrTemporarilyUnavailable, err)
}

func (s *CreditLedgerService) toState(user *User) *CreditState {
	return &CreditState{
		UserID:         user.ID,
		TotalCredits:   user.TotalCredits,
		CurrentCredits: user.CurrentCredits,
		RefreshDate:    user.CreditRefreshDate,
	}
}

func (s *CreditLedgerService) getCached(ctx context.Context, userID uuid.UUID) (*CreditState, bool) {
	if s.cache == nil {
		return nil, false
	}

	var state CreditState
	found, err := database.NewCacheBuilder(s.cache, CreditCachePrefix+userID.String()).
		WithContext(ctx).
		Get(&state)
	if err != nil || !found {
		return nil, false
	}

	// A cached state from yesterday must not skip the daily reset.
	if state.RefreshDate != nil {
		now := time.Now()
		today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		if state.RefreshDate.Before(today) {
			return nil, false
		}
	}

	return &state, true
}

func (s *CreditLedgerService) putCache(ctx context.Context, state *CreditState) {
	if s.cache == nil {
		return
	}

	if err := database.NewCacheBuilder(s.cache, CreditCachePrefix+state.UserID.String()).
		WithStruct(state).
		WithTTL(CreditCacheTTL).
		WithContext(ctx).
		Set(); err != nil {
		s.log.Function("putCache").
			Warn("failed to cache credit state", "userID", state.UserID, "error", err)
	}
}
