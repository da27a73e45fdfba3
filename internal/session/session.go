// Package session is the session-level facade the UI talks to. It owns the
// current profile, customer, cart and online flag, and composes the cart
// engine, checkout processor and sync coordinator. No ambient globals: every
// collaborator is passed in at construction.
package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"lakupos/terminal/internal/cart"
	"lakupos/terminal/internal/checkout"
	"lakupos/terminal/internal/domain"
	"lakupos/terminal/internal/localstore"
	"lakupos/terminal/internal/netmon"
	"lakupos/terminal/internal/syncer"
)

var (
	ErrNotReady        = errors.New("session not initialized")
	ErrUnknownItem     = errors.New("item not in catalog")
	ErrUnknownCustomer = errors.New("customer not in cache")
	ErrBadManagerPIN   = errors.New("manager PIN rejected")
)

type State string

const (
	StateUninitialized State = "uninitialized"
	StateInitializing  State = "initializing"
	StateReady         State = "ready"
)

// Snapshot is the reactive view of session state the UI renders.
type Snapshot struct {
	State            State             `json:"state"`
	IsOffline        bool              `json:"is_offline"`
	IsLoading        bool              `json:"is_loading"`
	Profile          domain.Profile    `json:"profile"`
	Cart             domain.Cart       `json:"cart"`
	SelectedCustomer *domain.Customer  `json:"selected_customer,omitempty"`
	Items            []domain.Item     `json:"items"`
	Customers        []domain.Customer `json:"customers"`
	PendingCount     int               `json:"pending_count"`
}

type Session struct {
	local       localstore.Store
	monitor     *netmon.Monitor
	processor   *checkout.Processor
	coordinator *syncer.Coordinator
	profileName string
	search      func(ctx context.Context, term string) ([]domain.Customer, error)

	mu          sync.Mutex
	state       State
	loading     bool
	profile     domain.Profile
	items       []domain.Item
	customers   []domain.Customer
	cart        domain.Cart
	customer    *domain.Customer
	unsubscribe func()
}

// RemoteSearch is the server-side customer search used before falling back
// to the cached list.
type RemoteSearch func(ctx context.Context, term string) ([]domain.Customer, error)

func New(local localstore.Store, monitor *netmon.Monitor, processor *checkout.Processor, coordinator *syncer.Coordinator, profileName string, search RemoteSearch) *Session {
	return &Session{
		local:       local,
		monitor:     monitor,
		processor:   processor,
		coordinator: coordinator,
		profileName: profileName,
		search:      search,
		state:       StateUninitialized,
		cart:        cart.New(""),
	}
}

// Initialize loads reference data (remote when online, cached otherwise),
// restores the durable session snapshot, and arms the auto-sync trigger on
// the offline-to-online transition.
func (s *Session) Initialize(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateUninitialized {
		s.mu.Unlock()
		return fmt.Errorf("initialize called in state %s", s.state)
	}
	s.state = StateInitializing
	s.loading = true
	s.mu.Unlock()

	if s.monitor.Online() {
		if err := s.refreshFromRemote(ctx); err != nil {
			log.Printf("[session] WARN: remote init failed, falling back to cache: %v", err)
			s.monitor.SetOnline(false)
		}
	}
	if err := s.loadFromCache(ctx); err != nil {
		s.mu.Lock()
		s.state = StateUninitialized
		s.loading = false
		s.mu.Unlock()
		return fmt.Errorf("load cached reference data: %w", err)
	}

	s.restoreSnapshot(ctx)

	s.mu.Lock()
	s.state = StateReady
	s.loading = false
	s.unsubscribe = s.monitor.Subscribe(s.onTransition)
	s.mu.Unlock()
	return nil
}

func (s *Session) refreshFromRemote(ctx context.Context) error {
	// A site neighbor may have fetched the catalog minutes ago.
	if ok, err := s.coordinator.LoadSharedCatalog(ctx); err == nil && ok {
		log.Printf("[session] catalog loaded from site cache")
		return nil
	}
	return s.coordinator.RefreshCatalog(ctx)
}

func (s *Session) loadFromCache(ctx context.Context) error {
	profile, err := s.local.CachedProfile(ctx)
	if err != nil {
		if errors.Is(err, localstore.ErrNotFound) {
			return fmt.Errorf("no cached profile %q: first start requires connectivity", s.profileName)
		}
		return err
	}
	items, err := s.local.CachedItems(ctx)
	if err != nil {
		return err
	}
	customers, err := s.local.CachedCustomers(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.profile = *profile
	s.items = items
	s.customers = customers
	s.mu.Unlock()
	return nil
}

func (s *Session) restoreSnapshot(ctx context.Context) {
	snapshot, err := s.local.LoadSnapshot(ctx)
	if err != nil {
		if !errors.Is(err, localstore.ErrNotFound) {
			log.Printf("[session] WARN: snapshot restore failed: %v", err)
		}
		return
	}
	if snapshot.ProfileName != s.profileName {
		return
	}

	s.mu.Lock()
	s.cart = cart.Recompute(snapshot.Cart)
	if snapshot.CustomerID != "" {
		for i := range s.customers {
			if s.customers[i].ID == snapshot.CustomerID {
				found := s.customers[i]
				s.customer = &found
				break
			}
		}
	}
	s.mu.Unlock()
	log.Printf("[session] restored cart with %d lines", len(snapshot.Cart.Lines))
}

func (s *Session) onTransition(online bool) {
	if !online {
		return
	}
	// Back online: drain whatever queued up while we were away.
	result, err := s.SyncData(context.Background())
	if err != nil {
		if !errors.Is(err, syncer.ErrSyncActive) && !errors.Is(err, syncer.ErrOffline) {
			log.Printf("[session] WARN: auto-sync failed: %v", err)
		}
		return
	}
	log.Printf("[session] auto-sync: %d synced, %d errors", result.SyncedCount, len(result.Errors))
}

// Online reports the session's connectivity flag, which tracks the monitor.
func (s *Session) Online() bool {
	return s.monitor.Online()
}

// SearchItems filters the cached item list. This is explicitly a client-side
// filter, not a server search: item lookups must work mid-sale offline.
func (s *Session) SearchItems(term string) []domain.Item {
	s.mu.Lock()
	defer s.mu.Unlock()

	term = strings.ToLower(strings.TrimSpace(term))
	matches := make([]domain.Item, 0, len(s.items))
	for _, item := range s.items {
		if !item.Active {
			continue
		}
		if term == "" ||
			strings.Contains(strings.ToLower(item.Code), term) ||
			strings.Contains(strings.ToLower(item.Name), term) {
			matches = append(matches, item)
		}
	}
	return matches
}

// SearchCustomers tries the remote search first and falls back to filtering
// the cached list when offline or on any remote failure.
func (s *Session) SearchCustomers(ctx context.Context, term string) ([]domain.Customer, error) {
	if s.monitor.Online() && s.search != nil {
		customers, err := s.search(ctx, term)
		if err == nil {
			return customers, nil
		}
		log.Printf("[session] remote customer search failed, using cache: %v", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	term = strings.ToLower(strings.TrimSpace(term))
	matches := make([]domain.Customer, 0, 8)
	for _, customer := range s.customers {
		if term == "" ||
			strings.Contains(strings.ToLower(customer.Name), term) ||
			strings.Contains(strings.ToLower(customer.Phone), term) {
			matches = append(matches, customer)
		}
	}
	return matches, nil
}

// SelectCustomer binds a cached customer to the cart. An empty id clears
// the selection.
func (s *Session) SelectCustomer(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id == "" {
		s.customer = nil
		s.cart.CustomerID = ""
		return nil
	}
	for i := range s.customers {
		if s.customers[i].ID == id {
			found := s.customers[i]
			s.customer = &found
			s.cart.CustomerID = id
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrUnknownCustomer, id)
}

func (s *Session) AddItemToCart(ctx context.Context, itemCode string, qty int) (domain.Cart, error) {
	s.mu.Lock()
	var item *domain.Item
	for i := range s.items {
		if s.items[i].Code == itemCode {
			item = &s.items[i]
			break
		}
	}
	if item == nil {
		s.mu.Unlock()
		return domain.Cart{}, fmt.Errorf("%w: %s", ErrUnknownItem, itemCode)
	}

	next := cart.AddItem(s.cart, *item, qty)
	next = withItemTax(next, *item)
	s.cart = next
	s.mu.Unlock()

	s.persistCart(ctx)
	return next, nil
}

func (s *Session) UpdateQuantity(ctx context.Context, itemCode string, qty int) domain.Cart {
	s.mu.Lock()
	next := cart.UpdateQuantity(s.cart, itemCode, qty)
	if qty > 0 {
		for i := range s.items {
			if s.items[i].Code == itemCode {
				next = withItemTax(next, s.items[i])
				break
			}
		}
	}
	s.cart = next
	s.mu.Unlock()

	s.persistCart(ctx)
	return next
}

func (s *Session) RemoveItem(ctx context.Context, itemCode string) domain.Cart {
	s.mu.Lock()
	s.cart = cart.RemoveItem(s.cart, itemCode)
	next := s.cart
	s.mu.Unlock()

	s.persistCart(ctx)
	return next
}

func (s *Session) ApplyDiscount(ctx context.Context, value float64, kind cart.DiscountKind) domain.Cart {
	s.mu.Lock()
	s.cart = cart.ApplyDiscount(s.cart, value, kind)
	next := s.cart
	s.mu.Unlock()

	s.persistCart(ctx)
	return next
}

func (s *Session) ClearCart(ctx context.Context) {
	s.mu.Lock()
	s.cart = cart.New("")
	s.customer = nil
	s.mu.Unlock()

	s.persistCart(ctx)
}

// ProcessPayment finalizes the current cart. On success the cart and the
// customer selection are cleared; the returned transaction tells the caller
// whether the sale was committed remotely or queued offline.
func (s *Session) ProcessPayment(ctx context.Context, payments []domain.Payment) (domain.Transaction, error) {
	s.mu.Lock()
	if s.state != StateReady {
		s.mu.Unlock()
		return domain.Transaction{}, ErrNotReady
	}
	current := s.cart
	s.mu.Unlock()

	tx, wentOffline, err := s.processor.ProcessPayment(ctx, current, payments, s.monitor.Online())
	if wentOffline {
		// Stop retrying the network on every checkout until the monitor
		// reports a fresh transition.
		s.monitor.SetOnline(false)
	}
	if err != nil {
		return domain.Transaction{}, err
	}

	s.ClearCart(ctx)
	return tx, nil
}

// SyncData runs one sync cycle. Also wired to the offline-to-online transition.
func (s *Session) SyncData(ctx context.Context) (domain.SyncResult, error) {
	result, err := s.coordinator.SyncData(ctx)
	if err != nil {
		return result, err
	}
	// The cycle refreshed the caches; pick up the new reference data.
	if loadErr := s.loadFromCache(ctx); loadErr != nil {
		log.Printf("[session] WARN: reloading caches after sync failed: %v", loadErr)
	}
	return result, nil
}

// VerifyManagerPIN checks a manager override PIN against the bcrypt hash in
// the cached profile, so overrides keep working with no connectivity.
func (s *Session) VerifyManagerPIN(pin string) error {
	s.mu.Lock()
	hash := s.profile.ManagerPINHash
	s.mu.Unlock()

	if hash == "" {
		return fmt.Errorf("%w: profile has no PIN configured", ErrBadManagerPIN)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(pin)); err != nil {
		return ErrBadManagerPIN
	}
	return nil
}

// Snapshot returns a copy of the current session state for rendering.
func (s *Session) Snapshot(ctx context.Context) Snapshot {
	pending, err := s.local.ListPending(ctx)
	if err != nil {
		log.Printf("[session] WARN: pending count unavailable: %v", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		State:        s.state,
		IsOffline:    !s.monitor.Online(),
		IsLoading:    s.loading,
		Profile:      s.profile,
		Cart:         s.cart,
		Items:        append([]domain.Item(nil), s.items...),
		Customers:    append([]domain.Customer(nil), s.customers...),
		PendingCount: len(pending),
	}
	if s.customer != nil {
		customer := *s.customer
		snap.SelectedCustomer = &customer
	}
	return snap
}

// Close detaches the monitor subscription and persists the session snapshot.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	unsubscribe := s.unsubscribe
	s.unsubscribe = nil
	s.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	return s.saveSnapshot(ctx)
}

func (s *Session) persistCart(ctx context.Context) {
	if err := s.saveSnapshot(ctx); err != nil {
		// Cart edits stay usable in memory even if the medium is flaky;
		// checkout has its own loud failure path.
		log.Printf("[session] WARN: snapshot save failed: %v", err)
	}
}

func (s *Session) saveSnapshot(ctx context.Context) error {
	s.mu.Lock()
	snapshot := domain.SessionSnapshot{
		ProfileName: s.profileName,
		Cart:        s.cart,
		SavedAt:     time.Now().UTC(),
	}
	if s.customer != nil {
		snapshot.CustomerID = s.customer.ID
	}
	s.mu.Unlock()

	return s.local.SaveSnapshot(ctx, snapshot)
}

// withItemTax applies the item's tax rate against its line gross.
func withItemTax(c domain.Cart, item domain.Item) domain.Cart {
	if item.TaxRatePercent == 0 {
		return c
	}
	for _, line := range c.Lines {
		if line.ItemCode == item.Code {
			gross := int64(line.Quantity) * line.UnitRateCents
			tax := int64(float64(gross)*item.TaxRatePercent/100 + 0.5)
			return cart.WithLineTax(c, item.Code, tax)
		}
	}
	return c
}
