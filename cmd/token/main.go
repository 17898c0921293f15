// Command token mints a bearer token for the wallet API using the server's
// JWT configuration.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"wallet-registry/config"
	"wallet-registry/internal/adapter/http/middleware"
	"wallet-registry/internal/service"
)

func main() {
	subject := flag.String("sub", "admin", "token subject")
	authorities := flag.String("auth", middleware.AuthorityUser, "comma-separated authorities")
	flag.Parse()

	cfg, err := config.Load(os.Getenv("WR_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if cfg.Security.JWTSecret == "" {
		fmt.Fprintln(os.Stderr, "security.jwt_secret is not set")
		os.Exit(1)
	}

	svc := service.NewJWTTokenService(cfg.Security.JWTSecret, cfg.Security.JWTExpiry, cfg.Security.JWTIssuer)
	token, expiry, err := svc.Generate(*subject, strings.Split(*authorities, ","))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to sign token: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("%s\n# expires %s\n", token, expiry.Format("2006-01-02T15:04:05Z07:00"))
}
