// internal/pkg/jwt/loader.go
package jwt

import (
	"fmt"
	"time"
)

type Config struct {
	PrivPath string        `env:"PRIVATE_KEY_PATH"`
	PubPath  string        `env:"PUBLIC_KEY_PATH" envDefault:"/app/secrets/jwt_public.pem"`
	Issuer   string        `env:"ISSUER" envDefault:"merchant-identity"`
	Audience string        `env:"AUDIENCE" envDefault:"bargain-service"`
	TTL      time.Duration `env:"TTL" envDefault:"24h"`
	KID      string        `env:"KID"`
}

type Manager struct {
	Generator *Generator
	Verifier  *Verifier
}

// LoadAndBuild loads the public key and, when configured, the private key.
// A service that only verifies tokens runs without a Generator.
func LoadAndBuild(cfg Config) (*Manager, error) {
	pub, err := LoadRSAPublicKeyFromPEM(cfg.PubPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load public key from %s: %w", cfg.PubPath, err)
	}

	m := &Manager{Verifier: NewVerifier(pub, cfg.Issuer, cfg.Audience)}

	if cfg.PrivPath != "" {
		priv, err := LoadRSAPrivateKeyFromPEM(cfg.PrivPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load private key from %s: %w", cfg.PrivPath, err)
		}
		m.Generator = NewGenerator(priv, cfg.Issuer, cfg.Audience, cfg.KID, cfg.TTL)
	}

	return m, nil
}
