package domain

import "time"

// EntityType tags the remote document collections the terminal works with.
type EntityType string

const (
	EntityItem        EntityType = "item"
	EntityCustomer    EntityType = "customer"
	EntityProfile     EntityType = "pos_profile"
	EntityTransaction EntityType = "pos_transaction"
)

// SyncStatus lifecycle of a queued mutation or offline transaction.
// synced is terminal; only pending and error items are sync-eligible.
const (
	SyncPending = "pending"
	SyncSyncing = "syncing"
	SyncSynced  = "synced"
	SyncError   = "error"
)

const (
	MutationCreate = "create"
	MutationUpdate = "update"
	MutationDelete = "delete"
)

type Item struct {
	Code           string  `json:"code"`
	Name           string  `json:"name"`
	Category       string  `json:"category"`
	PriceCents     int64   `json:"price_cents"`
	TaxRatePercent float64 `json:"tax_rate_percent"`
	Active         bool    `json:"active"`
}

type Customer struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

// Profile is the POS profile the terminal operates under. ManagerPINHash is
// a bcrypt hash so manager overrides keep working with no connectivity.
type Profile struct {
	Name           string  `json:"name"`
	StoreID        string  `json:"store_id"`
	CurrencyCode   string  `json:"currency_code"`
	TaxRatePercent float64 `json:"tax_rate_percent"`
	ManagerPINHash string  `json:"manager_pin_hash,omitempty"`
}

type CartLine struct {
	ItemCode      string `json:"item_code"`
	ItemName      string `json:"item_name"`
	Quantity      int    `json:"quantity"`
	UnitRateCents int64  `json:"unit_rate_cents"`
	DiscountCents int64  `json:"discount_cents"`
	TaxCents      int64  `json:"tax_cents"`
	TotalCents    int64  `json:"total_cents"`
}

type Cart struct {
	Lines           []CartLine `json:"lines"`
	DiscountCents   int64      `json:"discount_cents"`
	TaxCents        int64      `json:"tax_cents"`
	SubtotalCents   int64      `json:"subtotal_cents"`
	GrandTotalCents int64      `json:"grand_total_cents"`
	CustomerID      string     `json:"customer_id,omitempty"`
}

type Payment struct {
	Method      string `json:"method"`
	AmountCents int64  `json:"amount_cents"`
	Reference   string `json:"reference,omitempty"`
}

// Transaction is a finalized sale. ID is server-assigned once committed;
// LocalID is set when the sale was recorded offline. Callers distinguish the
// two cases by IsOffline (or the local- id prefix).
type Transaction struct {
	ID              string     `json:"id,omitempty"`
	LocalID         string     `json:"local_id,omitempty"`
	IdempotencyKey  string     `json:"idempotency_key"`
	StoreID         string     `json:"store_id"`
	TerminalID      string     `json:"terminal_id"`
	CustomerID      string     `json:"customer_id,omitempty"`
	Lines           []CartLine `json:"lines"`
	DiscountCents   int64      `json:"discount_cents"`
	TaxCents        int64      `json:"tax_cents"`
	SubtotalCents   int64      `json:"subtotal_cents"`
	GrandTotalCents int64      `json:"grand_total_cents"`
	Payments        []Payment  `json:"payments"`
	PaidCents       int64      `json:"paid_cents"`
	ChangeCents     int64      `json:"change_cents"`
	IsOffline       bool       `json:"is_offline"`
	SyncStatus      string     `json:"sync_status"`
	CreatedAt       time.Time  `json:"created_at"`
}

// PendingMutation is the generalized offline queue entry: a locally recorded
// create/update/delete awaiting confirmation by the remote system.
type PendingMutation struct {
	LocalID        string     `json:"local_id"`
	EntityType     EntityType `json:"entity_type"`
	Operation      string     `json:"operation"`
	Payload        []byte     `json:"payload"`
	IdempotencyKey string     `json:"idempotency_key"`
	EnqueuedAt     time.Time  `json:"enqueued_at"`
	SyncStatus     string     `json:"sync_status"`
	ErrorReason    string     `json:"error_reason,omitempty"`
}

type SyncItemError struct {
	LocalID string `json:"local_id"`
	Reason  string `json:"reason"`
}

type SyncResult struct {
	SyncedCount int             `json:"synced_count"`
	Errors      []SyncItemError `json:"errors"`
}

// Catalog bundles the reference data a terminal needs to operate offline.
type Catalog struct {
	Profile   Profile    `json:"profile"`
	Items     []Item     `json:"items"`
	Customers []Customer `json:"customers"`
	FetchedAt time.Time  `json:"fetched_at"`
}

// SessionSnapshot is the durable subset of session state that survives a
// restart. Everything else is rebuilt from the caches and the pending queue.
type SessionSnapshot struct {
	ProfileName string    `json:"profile_name"`
	CustomerID  string    `json:"customer_id,omitempty"`
	Cart        Cart      `json:"cart"`
	SavedAt     time.Time `json:"saved_at"`
}
