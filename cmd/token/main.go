// cmd/token/main.go
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"ridewallet/internal/api/middleware"
	"ridewallet/internal/config"
)

// token mints a bearer token signed with JWT_SECRET for local testing
// against the API. Production tokens come from the identity service.
func main() {
	var (
		userID = flag.Int64("user", 0, "user id to put in the token subject")
		role   = flag.String("role", middleware.RoleRider, "role claim: rider, driver or admin")
		ttl    = flag.Duration("ttl", 24*time.Hour, "token lifetime")
	)
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	tok, err := middleware.NewJWTManager(cfg.JWTSecret).Generate(*userID, *role, *ttl)
	if err != nil {
		slog.Error("Failed to mint token", "error", err)
		os.Exit(2)
	}
	fmt.Println(tok)
}
