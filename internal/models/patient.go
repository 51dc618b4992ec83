package models

import (
	"time"

	"github.com/google/uuid"
)

type UserRole string

const (
	RolePatient UserRole = "patient"
	RoleAgent   UserRole = "agent"
)

// Patient is a storefront customer. Agents share the same table with a
// distinct role; only patients carry an address.
type Patient struct {
	ID        uuid.UUID `json:"id"`
	Role      UserRole  `json:"role"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone,omitempty"`
	Address   Address   `json:"address,omitzero"`
	CreatedAt time.Time `json:"created_at"`
}

type Address struct {
	Line1      string `json:"line1,omitempty"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city,omitempty"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
}
