package domain

type ShippingAddress struct {
	Address1    string `json:"address_1"`
	Address2    string `json:"address_2,omitempty"`
	City        string `json:"city"`
	State       string `json:"state"`
	StateCode   string `json:"state_code,omitempty"`
	Country     string `json:"country"`
	CountryCode string `json:"country_code,omitempty"`
	Postcode    string `json:"postcode"`
}


type User struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Company   string `json:"company,omitempty"`
	Phone     string `json:"phone,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	IsActive  bool   `json:"is_active"`
	// OrderPermission is nil when the API did not report it.
	OrderPermission *bool            `json:"can_order,omitempty"`
	ShippingAddress *ShippingAddress `json:"shipping_address,omitempty"`
}

// CanOrder is true unless the account is explicitly barred from ordering.
// A missing user or a missing flag both count as allowed.
func (u *User) CanOrder() bool {
	if u == nil || u.OrderPermission == nil {
		return true
	}
	return *u.OrderPermission
}

// HasShippingAddress reports whether the account has an address on file. An
// address whose lines are blank still counts.
func (u *User) HasShippingAddress() bool {
	return u != nil && u.ShippingAddress != nil
}
