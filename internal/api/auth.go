package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/fjod/go_cart/storefront/internal/domain"
)

// flexBool accepts true/false, 1/0 and their string forms.
type flexBool bool

func (b *flexBool) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(bytes.TrimSpace(data)), `"`)
	if s == "" || s == "null" {
		*b = false
		return nil
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		*b = false
		return nil
	}
	*b = flexBool(v)
	return nil
}

// apiUser is the user record as the API sends it. Field names differ
// between /login and /getUserData.
type apiUser struct {
	MongoID     string    `json:"_id"`
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	CompanyName string    `json:"company_name"`
	Company     string    `json:"company"`
	Phone       string    `json:"phone"`
	FirstName   string    `json:"first_name"`
	LastName    string    `json:"last_name"`
	IsActive    flexBool  `json:"is_active"`
	CanOrder    *flexBool `json:"can_order"`
}

func (u apiUser) toDomain() domain.User {
	user := domain.User{
		ID:        u.MongoID,
		Email:     u.Email,
		Company:   u.CompanyName,
		Phone:     u.Phone,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		IsActive:  bool(u.IsActive),
	}
	if user.ID == "" {
		user.ID = u.ID
	}
	if user.Company == "" {
		user.Company = u.Company
	}
	if u.CanOrder != nil {
		allowed := bool(*u.CanOrder)
		user.OrderPermission = &allowed
	}
	return user
}

type LoginResult struct {
	Token string
	User  domain.User
}

func (c *Client) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	var resp struct {
		Message string `json:"message"`
		Data    *struct {
			Token string  `json:"token"`
			User  apiUser `json:"user"`
		} `json:"data"`
	}
	payload := map[string]string{"email": email, "password": password}
	if err := c.postJSON(ctx, "login", "/login", payload, &resp); err != nil {
		return nil, err
	}

	if resp.Data == nil || resp.Data.Token == "" {
		msg := resp.Message
		if msg == "" {
			msg = "Login failed"
		}
		return nil, fmt.Errorf("%w: %s", ErrLoginFailed, msg)
	}
	return &LoginResult{Token: resp.Data.Token, User: resp.Data.User.toDomain()}, nil
}

// UserData fetches the current account, including the ordering permission
// and shipping address that /login does not return.
func (c *Client) UserData(ctx context.Context) (*domain.User, error) {
	var raw json.RawMessage
	if err := c.getJSON(ctx, "user_data", "/getUserData", nil, &raw); err != nil {
		return nil, err
	}

	var payload struct {
		User            *apiUser        `json:"user"`
		ShippingAddress json.RawMessage `json:"shipping_address"`
	}
	inner := unwrapData(raw, 3)
	if err := json.Unmarshal(inner, &payload); err != nil {
		return nil, fmt.Errorf("decode user data: %w", err)
	}
	if payload.User == nil {
		// some deployments return the user fields at the top level
		var flat apiUser
		if err := json.Unmarshal(inner, &flat); err != nil || (flat.MongoID == "" && flat.ID == "" && flat.Email == "") {
			return nil, fmt.Errorf("decode user data: %w", ErrNoUser)
		}
		payload.User = &flat
	}

	user := payload.User.toDomain()
	// any address object counts, even with blank lines; null, "" and [] do not
	if addr := bytes.TrimSpace(payload.ShippingAddress); len(addr) > 0 && addr[0] == '{' {
		var shipping domain.ShippingAddress
		if err := json.Unmarshal(addr, &shipping); err != nil {
			return nil, fmt.Errorf("decode shipping address: %w", err)
		}
		user.ShippingAddress = &shipping
	}
	return &user, nil
}

type SignupRequest struct {
	FirstName            string                 `json:"first_name"`
	LastName             string                 `json:"last_name"`
	Email                string                 `json:"email"`
	Phone                string                 `json:"phone"`
	Password             string                 `json:"password"`
	PasswordConfirmation string                 `json:"password_confirmation"`
	CompanyName          string                 `json:"company_name"`
	Website              string                 `json:"website"`
	ShippingAddress      domain.ShippingAddress `json:"shipping_address"`
	AgreeMinOrder        bool                   `json:"agree_min_order"`
	AgreeNoPersonalUse   bool                   `json:"agree_no_personal_use"`
	AgreeTerms           bool                   `json:"agree_terms"`
	AgreeNoResell        bool                   `json:"agree_no_resell"`
	Signature            string                 `json:"signature"`
	// SignedAt is YYYY-MM-DD.
	SignedAt string `json:"signed_at"`
}

func (c *Client) Signup(ctx context.Context, req SignupRequest) error {
	return c.postJSON(ctx, "signup", "/signup", req, nil)
}

// ProfileUpdate leaves the password fields empty unless the password is
// being changed; empty fields are not sent.
type ProfileUpdate struct {
	FirstName            string                 `json:"first_name"`
	LastName             string                 `json:"last_name"`
	Email                string                 `json:"email"`
	Phone                string                 `json:"phone"`
	CompanyName          string                 `json:"company_name"`
	Website              *string                `json:"website"`
	ShippingAddress      domain.ShippingAddress `json:"shipping_address"`
	CurrentPassword      string                 `json:"current_password,omitempty"`
	Password             string                 `json:"password,omitempty"`
	PasswordConfirmation string                 `json:"password_confirmation,omitempty"`
}

func (c *Client) UpdateProfile(ctx context.Context, update ProfileUpdate) error {
	return c.postJSON(ctx, "profile_update", "/profile/update", update, nil)
}
