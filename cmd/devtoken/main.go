// devtoken issues a merchant access token for local runs against
// STORAGE_DRIVER=memory. It needs JWT_PRIVATE_KEY_PATH.
package main

import (
	"flag"
	"fmt"
	"log"
	"strings"

	"bargain-service/internal/config"
	"bargain-service/internal/pkg/jwt"
)

func main() {
	userID := flag.Int64("user", 1, "merchant user id")
	shop := flag.String("shop", "demo.myshopify.com", "shop domain claim")
	roles := flag.String("roles", "merchant", "comma separated roles")
	flag.Parse()

	cfg, err := config.LoadJWT()
	if err != nil {
		log.Fatalf("[DEVTOKEN] %v", err)
	}
	if cfg.PrivPath == "" {
		log.Fatal("[DEVTOKEN] JWT_PRIVATE_KEY_PATH is required")
	}

	manager, err := jwt.LoadAndBuild(cfg)
	if err != nil {
		log.Fatalf("[DEVTOKEN] %v", err)
	}

	token, jti, err := manager.Generator.GenerateAccessToken(*userID, *shop, strings.Split(*roles, ","))
	if err != nil {
		log.Fatalf("[DEVTOKEN] failed to sign token: %v", err)
	}

	if _, err := manager.Verifier.VerifyAccessToken(token); err != nil {
		log.Fatalf("[DEVTOKEN] issued token does not verify with JWT_PUBLIC_KEY_PATH: %v", err)
	}

	log.Printf("[DEVTOKEN] jti=%s ttl=%s", jti, cfg.TTL)
	fmt.Println(token)
}
