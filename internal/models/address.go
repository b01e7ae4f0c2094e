package models

// Address is a postal address as the upstream API expects it.
type Address struct {
	FullName     string `json:"fullName"`
	Phone        string `json:"phone"`
	AddressLine1 string `json:"addressLine1"`
	AddressLine2 string `json:"addressLine2,omitempty"`
	City         string `json:"city"`
	State        string `json:"state,omitempty"`
	PostalCode   string `json:"postalCode"`
	Country      string `json:"country"`
}

// SavedAddress is an address stored on an authenticated customer's profile.
type SavedAddress struct {
	ID        string `json:"_id"`
	Label     string `json:"label"`
	IsDefault bool   `json:"isDefault"`
	Address
}
