package checkout

import (
	"strings"

	"github.com/example/aura-storefront/internal/models"
)

// OrderItemInput is one line of a guest checkout.
type OrderItemInput struct {
	ProductID string         `json:"productId"`
	Quantity  int            `json:"quantity"`
	Variant   models.Variant `json:"variant"`
}

// GuestCheckoutPayload is the body of POST /orders/guest-checkout.
type GuestCheckoutPayload struct {
	Email           string           `json:"email"`
	FirstName       string           `json:"firstName"`
	LastName        string           `json:"lastName"`
	Phone           string           `json:"phone"`
	Items           []OrderItemInput `json:"items"`
	ShippingAddress models.Address   `json:"shippingAddress"`
	BillingAddress  models.Address   `json:"billingAddress"`
	ShippingMethod  ShippingMethod   `json:"shippingMethod"`
	PaymentMethod   PaymentMethod    `json:"paymentMethod"`
	DiscountCode    string           `json:"discountCode"`
	CustomerNote    string           `json:"customerNote"`
	IdempotencyKey  string           `json:"idempotencyKey,omitempty"`
}

// AuthenticatedCheckoutPayload is the body of POST /orders/checkout. Address
// references win over inline addresses; billing is omitted when it mirrors
// shipping.
type AuthenticatedCheckoutPayload struct {
	ShippingAddressID string          `json:"shippingAddressId,omitempty"`
	ShippingAddress   *models.Address `json:"shippingAddress,omitempty"`
	BillingAddressID  string          `json:"billingAddressId,omitempty"`
	BillingAddress    *models.Address `json:"billingAddress,omitempty"`
	ShippingMethod    ShippingMethod  `json:"shippingMethod"`
	PaymentMethod     PaymentMethod   `json:"paymentMethod"`
	DiscountCode      string          `json:"discountCode,omitempty"`
	CustomerNote      string          `json:"customerNote,omitempty"`
	IdempotencyKey    string          `json:"idempotencyKey,omitempty"`
}

// GuestCheckoutData assembles the guest payload for the given cart lines.
func (s *Store) GuestCheckoutData(items []models.CartItem) GuestCheckoutPayload {
	st := s.State()
	g := st.GuestInfo

	shipping := st.ShippingAddress
	if name := strings.TrimSpace(g.FirstName + " " + g.LastName); name != "" {
		shipping.FullName = name
	}
	if g.Phone != "" {
		shipping.Phone = g.Phone
	}

	billing := st.BillingAddress
	if st.UseSameAddress {
		billing = shipping
	}

	lines := make([]OrderItemInput, 0, len(items))
	for _, item := range items {
		lines = append(lines, OrderItemInput{
			ProductID: item.Product.ID,
			Quantity:  item.Quantity,
			Variant:   item.Variant.Clone(),
		})
	}

	return GuestCheckoutPayload{
		Email:           g.Email,
		FirstName:       g.FirstName,
		LastName:        g.LastName,
		Phone:           g.Phone,
		Items:           lines,
		ShippingAddress: shipping,
		BillingAddress:  billing,
		ShippingMethod:  st.ShippingMethod,
		PaymentMethod:   st.PaymentMethod,
		DiscountCode:    appliedCode(st),
		CustomerNote:    st.CustomerNote,
	}
}

// AuthenticatedCheckoutData assembles the payload for a signed-in customer.
// The server cart supplies the lines.
func (s *Store) AuthenticatedCheckoutData() AuthenticatedCheckoutPayload {
	st := s.State()

	payload := AuthenticatedCheckoutPayload{
		ShippingMethod: st.ShippingMethod,
		PaymentMethod:  st.PaymentMethod,
		DiscountCode:   appliedCode(st),
		CustomerNote:   st.CustomerNote,
	}

	if st.ShippingAddressID != "" {
		payload.ShippingAddressID = st.ShippingAddressID
	} else {
		addr := st.ShippingAddress
		payload.ShippingAddress = &addr
	}

	if !st.UseSameAddress {
		if st.BillingAddressID != "" {
			payload.BillingAddressID = st.BillingAddressID
		} else {
			addr := st.BillingAddress
			payload.BillingAddress = &addr
		}
	}

	return payload
}

func appliedCode(st State) string {
	if st.AppliedDiscount == nil {
		return ""
	}
	return st.AppliedDiscount.Code
}
