// Package guestcart keeps the cart of an unauthenticated visitor. The list is
// loaded from storage once and written back after every mutation.
package guestcart

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/example/aura-storefront/internal/models"
	"github.com/example/aura-storefront/internal/storage"
)

// KeyPrefix namespaces guest cart records in storage.
const KeyPrefix = "guest-cart:"

type persisted struct {
	Items []models.CartItem `json:"items"`
}

// Store is the guest cart of a single visitor.
type Store struct {
	mu      sync.Mutex
	storage storage.Storage
	key     string
	items   []models.CartItem
	newID   func() string
}

// Open loads the cart stored under sessionID. A missing or unreadable record
// yields an empty cart.
func Open(ctx context.Context, st storage.Storage, sessionID string) *Store {
	s := &Store{
		storage: st,
		key:     KeyPrefix + sessionID,
		newID:   func() string { return uuid.NewString() },
	}

	raw, err := st.Get(ctx, s.key)
	switch {
	case errors.Is(err, storage.ErrNotFound):
	case err != nil:
		log.Warn().Err(err).Str("component", "guestcart").Str("key", s.key).Msg("failed to load guest cart")
	default:
		var p persisted
		if err := json.Unmarshal(raw, &p); err != nil {
			log.Warn().Err(err).Str("component", "guestcart").Str("key", s.key).Msg("discarding unreadable guest cart")
		} else {
			s.items = p.Items
		}
	}

	return s
}

// Items returns a copy of the cart lines in insertion order.
func (s *Store) Items() []models.CartItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneItems(s.items)
}

// AddItem merges the product into the line with the same product and variant,
// or appends a new line. Quantities below 1 count as 1.
func (s *Store) AddItem(ctx context.Context, product models.ProductSnapshot, quantity int, variant models.Variant) models.CartItem {
	if quantity < 1 {
		quantity = 1
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	candidate := models.CartItem{Product: product, Variant: variant.Clone()}
	key := candidate.MergeKey()

	for i := range s.items {
		if s.items[i].MergeKey() == key {
			s.items[i].Quantity += quantity
			s.persistLocked(ctx)
			return cloneItem(s.items[i])
		}
	}

	candidate.ID = s.newID()
	candidate.Quantity = quantity
	s.items = append(s.items, candidate)
	s.persistLocked(ctx)
	return cloneItem(candidate)
}

// UpdateItemQuantity sets the quantity verbatim. Zero or negative removes the line.
func (s *Store) UpdateItemQuantity(ctx context.Context, itemID string, quantity int) {
	if quantity <= 0 {
		s.RemoveItem(ctx, itemID)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.items {
		if s.items[i].ID == itemID {
			s.items[i].Quantity = quantity
			break
		}
	}
	s.persistLocked(ctx)
}

// RemoveItem drops the line. Unknown ids are ignored.
func (s *Store) RemoveItem(ctx context.Context, itemID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.items[:0]
	for _, item := range s.items {
		if item.ID != itemID {
			kept = append(kept, item)
		}
	}
	s.items = kept
	s.persistLocked(ctx)
}

// Clear empties the cart and erases the durable record.
func (s *Store) Clear(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = nil
	if err := s.storage.Delete(ctx, s.key); err != nil {
		log.Error().Err(err).Str("component", "guestcart").Str("key", s.key).Msg("failed to erase guest cart")
	}
}

// Totals derives the item count and subtotal from the current lines.
func (s *Store) Totals() models.CartTotals {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Totals(s.items)
}

// Totals computes the totals of an arbitrary item list.
func Totals(items []models.CartItem) models.CartTotals {
	count := 0
	subtotal := decimal.Zero
	for _, item := range items {
		count += item.Quantity
		subtotal = subtotal.Add(item.LineTotal())
	}
	return models.CartTotals{
		ItemCount: count,
		Subtotal:  subtotal.InexactFloat64(),
	}
}

// persistLocked writes the full list. Failures are logged; the in-memory
// state stays authoritative for the current session.
func (s *Store) persistLocked(ctx context.Context) {
	raw, err := json.Marshal(persisted{Items: s.items})
	if err != nil {
		log.Error().Err(err).Str("component", "guestcart").Msg("failed to encode guest cart")
		return
	}
	if err := s.storage.Set(ctx, s.key, raw); err != nil {
		log.Error().Err(err).Str("component", "guestcart").Str("key", s.key).Msg("failed to persist guest cart")
	}
}

func cloneItems(items []models.CartItem) []models.CartItem {
	out := make([]models.CartItem, len(items))
	for i, item := range items {
		out[i] = cloneItem(item)
	}
	return out
}

func cloneItem(item models.CartItem) models.CartItem {
	item.Variant = item.Variant.Clone()
	return item
}
