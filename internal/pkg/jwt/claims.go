// internal/pkg/jwt/claims.go
package jwt

import (
	"errors"
	"slices"

	"github.com/golang-jwt/jwt/v5"
)

const PurposeAccess = "access"

var (
	errNoUser    = errors.New("token carries no user")
	errNoPurpose = errors.New("token carries no purpose")
)

// Claims is the merchant token minted by the dashboard's identity service.
type Claims struct {
	UserID     int64    `json:"user_id"`
	ShopDomain string   `json:"shop_domain,omitempty"`
	Roles      []string `json:"roles,omitempty"`
	Purpose    string   `json:"purpose"`
	jwt.RegisteredClaims
}

// Validate runs after the registered claims pass the parser's checks.
func (c *Claims) Validate() error {
	if c.UserID <= 0 {
		return errNoUser
	}
	if c.Purpose == "" {
		return errNoPurpose
	}
	return nil
}

func (c *Claims) HasRole(role string) bool {
	return slices.Contains(c.Roles, role)
}
