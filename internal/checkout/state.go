package checkout

import "github.com/example/aura-storefront/internal/models"

// Step is a position in the checkout wizard.
type Step int

const (
	StepShipping Step = 1
	StepPayment  Step = 2
	StepReview   Step = 3
)

func (s Step) String() string {
	switch s {
	case StepShipping:
		return "shipping"
	case StepPayment:
		return "payment"
	case StepReview:
		return "review"
	default:
		return "unknown"
	}
}

// ShippingMethod selects the delivery speed.
type ShippingMethod string

const (
	ShippingStandard ShippingMethod = "standard"
	ShippingExpress  ShippingMethod = "express"
)

// PaymentMethod selects how the order is paid. The zero value means unset.
type PaymentMethod string

const (
	PaymentUnset PaymentMethod = ""
	PaymentCOD   PaymentMethod = "cod"
	PaymentEsewa PaymentMethod = "esewa"
	PaymentCard  PaymentMethod = "card"
)

// Valid reports whether m is a selectable payment method.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCOD, PaymentEsewa, PaymentCard:
		return true
	}
	return false
}

// GuestInfo is the contact block collected on the shipping step.
type GuestInfo struct {
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Phone     string `json:"phone"`
}

// GuestInfoPatch carries the fields to overwrite; nil fields are left alone.
type GuestInfoPatch struct {
	Email     *string `json:"email,omitempty"`
	FirstName *string `json:"firstName,omitempty"`
	LastName  *string `json:"lastName,omitempty"`
	Phone     *string `json:"phone,omitempty"`
}

// AppliedDiscount is the result of a successful promo lookup. Exactly one of
// Percentage or Amount is meaningful.
type AppliedDiscount struct {
	Code       string  `json:"code"`
	Percentage float64 `json:"percentage,omitempty"`
	Amount     float64 `json:"amount,omitempty"`
}

// State is the full wizard state.
type State struct {
	CurrentStep       Step             `json:"currentStep"`
	GuestInfo         GuestInfo        `json:"guestInfo"`
	ShippingAddress   models.Address   `json:"shippingAddress"`
	ShippingAddressID string           `json:"shippingAddressId,omitempty"`
	UseSameAddress    bool             `json:"useSameAddress"`
	BillingAddress    models.Address   `json:"billingAddress"`
	BillingAddressID  string           `json:"billingAddressId,omitempty"`
	ShippingMethod    ShippingMethod   `json:"shippingMethod"`
	PaymentMethod     PaymentMethod    `json:"paymentMethod"`
	DiscountCode      string           `json:"discountCode"`
	AppliedDiscount   *AppliedDiscount `json:"appliedDiscount,omitempty"`
	CustomerNote      string           `json:"customerNote"`
}

// InitialState returns the literal state a fresh checkout starts from.
func InitialState() State {
	return State{
		CurrentStep:    StepShipping,
		UseSameAddress: true,
		ShippingMethod: ShippingStandard,
		PaymentMethod:  PaymentUnset,
	}
}

func (s State) clone() State {
	if s.AppliedDiscount != nil {
		d := *s.AppliedDiscount
		s.AppliedDiscount = &d
	}
	return s
}
