// Package remote talks to the system of record: a generic document API with
// create/read/update/delete over named entity types. The engine treats every
// transport failure uniformly as "remote unavailable for this attempt";
// ErrRejected means the server understood the request and refused the
// document, which is never worth an automatic retry of the same payload.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"lakupos/terminal/internal/domain"
)

var (
	ErrUnavailable = errors.New("remote unavailable")
	ErrRejected    = errors.New("remote rejected document")
)

// Filters narrow a GetList call, e.g. {"search": term}.
type Filters map[string]string

type Client interface {
	GetList(ctx context.Context, entityType domain.EntityType, filters Filters) ([]json.RawMessage, error)
	GetDoc(ctx context.Context, entityType domain.EntityType, id string) (json.RawMessage, error)
	// SaveDoc creates the document when it has no server id, else updates it.
	SaveDoc(ctx context.Context, entityType domain.EntityType, doc json.RawMessage) (json.RawMessage, error)
	DeleteDoc(ctx context.Context, entityType domain.EntityType, id string) error
	// Ping is a cheap reachability check for the connectivity probe.
	Ping(ctx context.Context) error
}

// FetchItems pulls the full active item list.
func FetchItems(ctx context.Context, c Client) ([]domain.Item, error) {
	raw, err := c.GetList(ctx, domain.EntityItem, nil)
	if err != nil {
		return nil, err
	}
	return decodeList[domain.Item](domain.EntityItem, raw)
}

// FetchCustomers pulls the full customer list.
func FetchCustomers(ctx context.Context, c Client) ([]domain.Customer, error) {
	raw, err := c.GetList(ctx, domain.EntityCustomer, nil)
	if err != nil {
		return nil, err
	}
	return decodeList[domain.Customer](domain.EntityCustomer, raw)
}

// SearchCustomers runs a server-side customer search.
func SearchCustomers(ctx context.Context, c Client, term string) ([]domain.Customer, error) {
	raw, err := c.GetList(ctx, domain.EntityCustomer, Filters{"search": term})
	if err != nil {
		return nil, err
	}
	return decodeList[domain.Customer](domain.EntityCustomer, raw)
}

// FetchProfile reads the POS profile by name.
func FetchProfile(ctx context.Context, c Client, name string) (*domain.Profile, error) {
	raw, err := c.GetDoc(ctx, domain.EntityProfile, name)
	if err != nil {
		return nil, err
	}
	var profile domain.Profile
	if err := json.Unmarshal(raw, &profile); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrRejected, domain.EntityProfile, err)
	}
	return &profile, nil
}

// CreateTransaction commits a finalized sale and returns the server copy
// carrying the server-assigned id.
func CreateTransaction(ctx context.Context, c Client, tx domain.Transaction) (*domain.Transaction, error) {
	// The server assigns the id; the idempotency key travels in the body.
	tx.ID = ""
	payload, err := json.Marshal(tx)
	if err != nil {
		return nil, fmt.Errorf("%w: encode transaction: %v", ErrRejected, err)
	}

	raw, err := c.SaveDoc(ctx, domain.EntityTransaction, payload)
	if err != nil {
		return nil, err
	}
	var saved domain.Transaction
	if err := json.Unmarshal(raw, &saved); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrRejected, domain.EntityTransaction, err)
	}
	return &saved, nil
}

func decodeList[T any](entityType domain.EntityType, raw []json.RawMessage) ([]T, error) {
	out := make([]T, 0, len(raw))
	for _, doc := range raw {
		var v T
		if err := json.Unmarshal(doc, &v); err != nil {
			return nil, fmt.Errorf("%w: decode %s: %v", ErrRejected, entityType, err)
		}
		out = append(out, v)
	}
	return out, nil
}
