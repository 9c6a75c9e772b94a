// internal/domain/store/entity.go
package store

import "time"

// Store is the merchant's storefront connection. The access token is what the
// billing provider accepts for charge calls.
type Store struct {
	ID            int64      `json:"id" db:"id"`
	UserID        int64      `json:"user_id" db:"user_id"`
	ShopDomain    string     `json:"shop_domain" db:"shop_domain"`
	AccessToken   string     `json:"-" db:"access_token"`
	InstalledAt   time.Time  `json:"installed_at" db:"installed_at"`
	UninstalledAt *time.Time `json:"uninstalled_at,omitempty" db:"uninstalled_at"`
}

func (s *Store) Connected() bool {
	return s != nil && s.AccessToken != "" && s.ShopDomain != "" && s.UninstalledAt == nil
}
