// Package main mints operator JWTs for the StellarStack panel. Handy for
// bootstrapping the first admin session or for scripting against the API
// without going through the login endpoint.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/dcm2610/StellarStack-sub002/internal/auth"
	"github.com/dcm2610/StellarStack-sub002/internal/models"
)

func main() {
	userID := flag.String("user", "admin", "User ID to embed in the token")
	admin := flag.Bool("admin", true, "Grant the admin role")
	secret := flag.String("secret", "", "JWT secret (or set JWT_SECRET env var)")
	expiry := flag.Duration("expiry", 24*365*time.Hour, "Token expiry duration (default: 1 year)")
	flag.Parse()

	jwtSecret := *secret
	if jwtSecret == "" {
		jwtSecret = os.Getenv("JWT_SECRET")
	}
	if jwtSecret == "" {
		fmt.Fprintln(os.Stderr, "Error: JWT secret required. Use -secret flag or set JWT_SECRET env var")
		fmt.Fprintln(os.Stderr, "Example: go run ./cmd/gentoken -secret 'your-secret-at-least-32-chars-long'")
		os.Exit(1)
	}
	if len(jwtSecret) < 32 {
		fmt.Fprintln(os.Stderr, "Error: JWT secret must be at least 32 characters")
		os.Exit(1)
	}

	cfg := &auth.Config{
		JWTSecret:   []byte(jwtSecret),
		TokenExpiry: *expiry,
	}

	svc := auth.NewService(cfg, nil, nil)
	token, err := svc.GenerateToken(&models.User{
		ID:      *userID,
		IsAdmin: *admin,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error generating token: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(token)
}
