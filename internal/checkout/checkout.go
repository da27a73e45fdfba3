// Package checkout turns a completed cart plus payments into a committed or
// queued transaction. It is single-attempt-then-fallback: one remote try,
// then the local queue. Retrying previously queued sales is the sync
// coordinator's job, never repeated inline, so the cashier-facing operation
// stays bounded in latency.
package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"lakupos/terminal/internal/domain"
	"lakupos/terminal/internal/localstore"
	"lakupos/terminal/internal/remote"
)

var (
	ErrEmptyCart       = errors.New("empty cart")
	ErrPaymentMismatch = errors.New("payments do not cover grand total")
)

type Processor struct {
	remote     remote.Client
	local      localstore.Store
	storeID    string
	terminalID string
}

func New(remoteClient remote.Client, local localstore.Store, storeID string, terminalID string) *Processor {
	return &Processor{
		remote:     remoteClient,
		local:      local,
		storeID:    storeID,
		terminalID: terminalID,
	}
}

// ProcessPayment finalizes the cart. When online it attempts one remote
// commit; on transport failure, or when already offline, the sale is queued
// locally instead. wentOffline tells the session to flip its online flag so
// subsequent checkouts skip the doomed network attempt until the monitor
// reports a fresh transition.
//
// A sale that can be neither committed remotely nor queued locally fails
// loudly: it must not silently disappear.
func (p *Processor) ProcessPayment(ctx context.Context, c domain.Cart, payments []domain.Payment, online bool) (tx domain.Transaction, wentOffline bool, err error) {
	if len(c.Lines) == 0 {
		return domain.Transaction{}, false, ErrEmptyCart
	}

	var paid int64
	for _, payment := range payments {
		paid += payment.AmountCents
	}
	if paid < c.GrandTotalCents {
		return domain.Transaction{}, false, fmt.Errorf("%w: paid %d of %d", ErrPaymentMismatch, paid, c.GrandTotalCents)
	}

	tx = domain.Transaction{
		IdempotencyKey:  uuid.NewString(),
		StoreID:         p.storeID,
		TerminalID:      p.terminalID,
		CustomerID:      c.CustomerID,
		Lines:           c.Lines,
		DiscountCents:   c.DiscountCents,
		TaxCents:        c.TaxCents,
		SubtotalCents:   c.SubtotalCents,
		GrandTotalCents: c.GrandTotalCents,
		Payments:        payments,
		PaidCents:       paid,
		ChangeCents:     paid - c.GrandTotalCents,
		CreatedAt:       time.Now().UTC(),
	}

	if online {
		saved, remoteErr := remote.CreateTransaction(ctx, p.remote, tx)
		if remoteErr == nil {
			saved.SyncStatus = domain.SyncSynced
			return *saved, false, nil
		}
		log.Printf("[checkout] remote commit failed, queuing sale locally: %v", remoteErr)
		wentOffline = true
	}

	payload, err := json.Marshal(tx)
	if err != nil {
		return domain.Transaction{}, wentOffline, fmt.Errorf("encode transaction: %w", err)
	}

	localID, err := p.local.Enqueue(ctx, domain.PendingMutation{
		EntityType:     domain.EntityTransaction,
		Operation:      domain.MutationCreate,
		Payload:        payload,
		IdempotencyKey: tx.IdempotencyKey,
	})
	if err != nil {
		return domain.Transaction{}, wentOffline, fmt.Errorf("queue offline sale: %w", err)
	}

	tx.LocalID = localID
	tx.IsOffline = true
	tx.SyncStatus = domain.SyncPending
	return tx, wentOffline, nil
}
