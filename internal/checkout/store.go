// Package checkout holds the checkout wizard state and assembles the payloads
// sent to the order endpoints.
//
// The store applies no guards of its own: callers check IsShippingValid (and
// whatever else they need) before advancing the wizard.
package checkout

import (
	"fmt"
	"strings"
	"sync"

	"github.com/example/aura-storefront/internal/models"
)

// ShippingField names an inline shipping address field.
type ShippingField string

const (
	FieldFullName     ShippingField = "fullName"
	FieldPhone        ShippingField = "phone"
	FieldAddressLine1 ShippingField = "addressLine1"
	FieldAddressLine2 ShippingField = "addressLine2"
	FieldCity         ShippingField = "city"
	FieldState        ShippingField = "state"
	FieldPostalCode   ShippingField = "postalCode"
	FieldCountry      ShippingField = "country"
)

// Store is the wizard state of one checkout session.
type Store struct {
	mu    sync.RWMutex
	state State
}

// NewStore returns a store in the initial state.
func NewStore() *Store {
	return &Store{state: InitialState()}
}

// State returns a snapshot of the current state.
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.clone()
}

func (s *Store) update(fn func(*State)) {
	s.mu.Lock()
	fn(&s.state)
	s.mu.Unlock()
}

// SetStep moves the wizard to n without clamping.
func (s *Store) SetStep(n Step) {
	s.update(func(st *State) { st.CurrentStep = n })
}

// NextStep advances one step, stopping at Review.
func (s *Store) NextStep() {
	s.update(func(st *State) {
		if st.CurrentStep < StepReview {
			st.CurrentStep++
		}
	})
}

// PrevStep goes back one step, stopping at Shipping.
func (s *Store) PrevStep() {
	s.update(func(st *State) {
		if st.CurrentStep > StepShipping {
			st.CurrentStep--
		}
	})
}

// SetGuestInfo overwrites the non-nil fields of patch.
func (s *Store) SetGuestInfo(patch GuestInfoPatch) {
	s.update(func(st *State) {
		if patch.Email != nil {
			st.GuestInfo.Email = *patch.Email
		}
		if patch.FirstName != nil {
			st.GuestInfo.FirstName = *patch.FirstName
		}
		if patch.LastName != nil {
			st.GuestInfo.LastName = *patch.LastName
		}
		if patch.Phone != nil {
			st.GuestInfo.Phone = *patch.Phone
		}
	})
}

// UpdateShippingField sets one inline address field.
func (s *Store) UpdateShippingField(field ShippingField, value string) error {
	var target *string
	s.mu.Lock()
	defer s.mu.Unlock()

	addr := &s.state.ShippingAddress
	switch field {
	case FieldFullName:
		target = &addr.FullName
	case FieldPhone:
		target = &addr.Phone
	case FieldAddressLine1:
		target = &addr.AddressLine1
	case FieldAddressLine2:
		target = &addr.AddressLine2
	case FieldCity:
		target = &addr.City
	case FieldState:
		target = &addr.State
	case FieldPostalCode:
		target = &addr.PostalCode
	case FieldCountry:
		target = &addr.Country
	default:
		return fmt.Errorf("unknown shipping field %q", field)
	}
	*target = value
	return nil
}

// SetShippingAddress replaces the inline shipping address.
func (s *Store) SetShippingAddress(addr models.Address) {
	s.update(func(st *State) { st.ShippingAddress = addr })
}

// SetShippingAddressID selects a saved address. An empty id deselects it.
func (s *Store) SetShippingAddressID(id string) {
	s.update(func(st *State) { st.ShippingAddressID = id })
}

func (s *Store) SetUseSameAddress(same bool) {
	s.update(func(st *State) { st.UseSameAddress = same })
}

func (s *Store) SetBillingAddress(addr models.Address) {
	s.update(func(st *State) { st.BillingAddress = addr })
}

func (s *Store) SetBillingAddressID(id string) {
	s.update(func(st *State) { st.BillingAddressID = id })
}

func (s *Store) SetShippingMethod(m ShippingMethod) {
	s.update(func(st *State) { st.ShippingMethod = m })
}

func (s *Store) SetPaymentMethod(m PaymentMethod) {
	s.update(func(st *State) { st.PaymentMethod = m })
}

// SetDiscountCode stores the promo input as typed.
func (s *Store) SetDiscountCode(code string) {
	s.update(func(st *State) { st.DiscountCode = code })
}

func (s *Store) SetAppliedDiscount(d AppliedDiscount) {
	s.update(func(st *State) { st.AppliedDiscount = &d })
}

// ClearDiscount drops both the applied discount and the typed code.
func (s *Store) ClearDiscount() {
	s.update(func(st *State) {
		st.AppliedDiscount = nil
		st.DiscountCode = ""
	})
}

func (s *Store) SetCustomerNote(note string) {
	s.update(func(st *State) { st.CustomerNote = note })
}

// IsShippingValid reports whether the contact block is complete and either a
// saved address is selected or the inline address has all required fields.
func (s *Store) IsShippingValid() bool {
	return s.shippingValid(true)
}

// IsGuestShippingValid is IsShippingValid for a guest: the inline address is
// authoritative and a saved address id does not count.
func (s *Store) IsGuestShippingValid() bool {
	return s.shippingValid(false)
}

func (s *Store) shippingValid(savedAllowed bool) bool {
	st := s.State()

	g := st.GuestInfo
	if blank(g.Email) || blank(g.FirstName) || blank(g.LastName) || blank(g.Phone) {
		return false
	}

	if savedAllowed && st.ShippingAddressID != "" {
		return true
	}

	a := st.ShippingAddress
	return !blank(a.FullName) && !blank(a.Phone) && !blank(a.AddressLine1) &&
		!blank(a.City) && !blank(a.PostalCode)
}

// Reset restores the initial state.
func (s *Store) Reset() {
	s.update(func(st *State) { *st = InitialState() })
}

func blank(v string) bool {
	return strings.TrimSpace(v) == ""
}
