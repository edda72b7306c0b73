package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"staffpresence/internal/auth"
	"staffpresence/internal/config"
	"staffpresence/internal/directory"
)

// token prints a bearer token for an identifier, signed with the
// configured JWT key.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	identifier := flag.String("id", "", "person identifier")
	role := flag.String("role", "other", "role family: teacher, employee or other")
	ttl := flag.Duration("ttl", cfg.AccessTTL, "token lifetime")
	flag.Parse()

	if *identifier == "" {
		flag.Usage()
		os.Exit(2)
	}

	tok, err := auth.Issue(*identifier, directory.ParseRole(*role), cfg.JWTIssuer, cfg.JWTSigningKey, *ttl)
	if err != nil {
		log.Fatalf("issue token: %v", err)
	}
	fmt.Println(tok.Value)
	fmt.Fprintf(os.Stderr, "expires %s\n", tok.ExpiresAt.Format(time.RFC3339))
}
