// internal/repository/memory/store.go
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"bargain-service/internal/domain/bargaining"
	"bargain-service/internal/domain/catalog"
	"bargain-service/internal/domain/membership"
	"bargain-service/internal/domain/store"

	"github.com/jackc/pgx/v5"
)

type settingKey struct {
	productID string
	variantID string
}

// Store keeps every table in process memory. It backs STORAGE_DRIVER=memory
// and the service tests. Transactions are serialized per user and roll back
// the user's memberships and settings when fn fails.
type Store struct {
	mu sync.Mutex

	locksMu sync.Mutex
	locks   map[int64]chan struct{}

	nextID int64
	now    func() time.Time

	plans       []*membership.Plan
	memberships map[int64][]*membership.UserMembership
	history     map[int64][]*membership.HistoryEntry
	events      map[int64][]*membership.BillingEvent
	settings    map[int64]map[settingKey]*bargaining.Setting
	stores      map[int64]*store.Store
	variants    map[int64][]*catalog.Variant
}

func NewStore() *Store {
	s := &Store{
		locks:       make(map[int64]chan struct{}),
		now:         func() time.Time { return time.Now().UTC() },
		memberships: make(map[int64][]*membership.UserMembership),
		history:     make(map[int64][]*membership.HistoryEntry),
		events:      make(map[int64][]*membership.BillingEvent),
		settings:    make(map[int64]map[settingKey]*bargaining.Setting),
		stores:      make(map[int64]*store.Store),
		variants:    make(map[int64][]*catalog.Variant),
	}
	for _, p := range DefaultPlans() {
		s.PutPlan(p)
	}
	return s
}

// DefaultPlans mirrors the plans seeded by the migrations.
func DefaultPlans() []*membership.Plan {
	return []*membership.Plan{
		{Slug: "free", Name: "Free", Price: 0, ProductLimit: 10,
			Features: []string{"Bargaining on up to 10 products", "Standard negotiation behavior"}},
		{Slug: "pro", Name: "Pro", Price: 29, ProductLimit: 100, TrialDays: 7,
			Features: []string{"Bargaining on up to 100 products", "All negotiation behaviors", "Bulk editing"}},
		{Slug: "unlimited", Name: "Unlimited", Price: 79, ProductLimit: 0, TrialDays: 7,
			Features: []string{"Bargaining on every product", "All negotiation behaviors", "Bulk editing", "Priority support"}},
	}
}

// PutPlan adds a plan, or replaces the one with the same slug.
func (s *Store) PutPlan(p *membership.Plan) *membership.Plan {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *p
	for i, existing := range s.plans {
		if existing.Slug == p.Slug {
			cp.ID = existing.ID
			cp.CreatedAt = existing.CreatedAt
			s.plans[i] = &cp
			out := cp
			return &out
		}
	}
	cp.ID = s.id()
	cp.CreatedAt = s.now()
	s.plans = append(s.plans, &cp)
	out := cp
	return &out
}

// PutStore connects (or replaces) a user's storefront.
func (s *Store) PutStore(st *store.Store) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *st
	if cp.ID == 0 {
		cp.ID = s.id()
	}
	if cp.InstalledAt.IsZero() {
		cp.InstalledAt = s.now()
	}
	s.stores[cp.UserID] = &cp
}

// PutVariant adds or replaces a catalog variant snapshot.
func (s *Store) PutVariant(v *catalog.Variant) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *v
	cp.UpdatedAt = s.now()
	list := s.variants[cp.UserID]
	for i, existing := range list {
		if existing.ProductID == cp.ProductID && existing.VariantID == cp.VariantID {
			list[i] = &cp
			return
		}
	}
	s.variants[cp.UserID] = append(list, &cp)
}

// SetClock overrides the timestamp source.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *Store) Plans() *PlanRepository             { return &PlanRepository{s: s} }
func (s *Store) Memberships() *MembershipRepository { return &MembershipRepository{s: s} }
func (s *Store) Audit() *AuditRepository            { return &AuditRepository{s: s} }
func (s *Store) Settings() *SettingRepository       { return &SettingRepository{s: s} }
func (s *Store) Storefront() *StorefrontRepository  { return &StorefrontRepository{s: s} }

// Ping always succeeds.
func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

// ========== Transactions ==========

type txKey struct{}

// txState buffers audit rows until commit and remembers what to restore on
// rollback.
type txState struct {
	userID      int64
	memberships []*membership.UserMembership
	settings    map[settingKey]*bargaining.Setting
	history     []*membership.HistoryEntry
	events      []*membership.BillingEvent
}

// WithUserTx runs fn while holding the user's lock. The tx handed to fn is
// always nil; repositories find the transaction through ctx.
func (s *Store) WithUserTx(ctx context.Context, userID int64, fn func(ctx context.Context, tx pgx.Tx) error) error {
	if err := s.lock(ctx, userID); err != nil {
		return fmt.Errorf("failed to acquire user lock: %w", err)
	}
	defer s.unlock(userID)

	s.mu.Lock()
	state := &txState{
		userID:      userID,
		memberships: copyMemberships(s.memberships[userID]),
		settings:    copySettings(s.settings[userID]),
	}
	s.mu.Unlock()

	if err := fn(context.WithValue(ctx, txKey{}, state), nil); err != nil {
		s.mu.Lock()
		s.memberships[userID] = state.memberships
		s.settings[userID] = state.settings
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, h := range state.history {
		s.history[h.UserID] = append(s.history[h.UserID], h)
	}
	for _, e := range state.events {
		s.events[e.UserID] = append(s.events[e.UserID], e)
	}
	return nil
}

func (s *Store) lock(ctx context.Context, userID int64) error {
	s.locksMu.Lock()
	ch, ok := s.locks[userID]
	if !ok {
		ch = make(chan struct{}, 1)
		s.locks[userID] = ch
	}
	s.locksMu.Unlock()

	select {
	case ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Store) unlock(userID int64) {
	s.locksMu.Lock()
	ch := s.locks[userID]
	s.locksMu.Unlock()
	<-ch
}

func txFrom(ctx context.Context) *txState {
	state, _ := ctx.Value(txKey{}).(*txState)
	return state
}

// id must be called with mu held.
func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

func copyMemberships(in []*membership.UserMembership) []*membership.UserMembership {
	if in == nil {
		return nil
	}
	out := make([]*membership.UserMembership, len(in))
	for i, m := range in {
		out[i] = copyMembership(m)
	}
	return out
}

func copyMembership(m *membership.UserMembership) *membership.UserMembership {
	cp := *m
	cp.BillingDetails = copyDetails(m.BillingDetails)
	return &cp
}

func copySettings(in map[settingKey]*bargaining.Setting) map[settingKey]*bargaining.Setting {
	if in == nil {
		return nil
	}
	out := make(map[settingKey]*bargaining.Setting, len(in))
	for k, v := range in {
		cp := *v
		out[k] = &cp
	}
	return out
}

func copyDetails(in map[string]interface{}) map[string]interface{} {
	if in == nil {
		return nil
	}
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
