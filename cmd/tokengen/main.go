// Package main mints tenant bearer tokens for local use of the issuance API.
// Tokens are signed with the development key unless -key is given and will
// NOT work against a production deployment.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	jwttoken "certifier/internal/jwt_token"
	"certifier/internal/seeder"
	id "certifier/pkg/domain"
)

const (
	// Matches config.FromEnv when JWT_SIGNING_KEY is not set.
	devSigningKey = "dev-secret-key-change-in-production"
	defaultIssuer = "certifier"
	defaultTTL    = 24 * time.Hour
)

type tokenOutput struct {
	Token     string            `json:"token"`
	TenantID  string            `json:"tenant_id"`
	Subject   string            `json:"subject"`
	ExpiresIn string            `json:"expires_in"`
	Usage     map[string]string `json:"usage"`
}

func main() {
	tenantCmd := flag.NewFlagSet("tenant", flag.ExitOnError)
	demoCmd := flag.NewFlagSet("demo", flag.ExitOnError)

	tenantID := tenantCmd.String("tenant-id", "", "Tenant ID (UUID). Required.")
	tenantSubject := tenantCmd.String("subject", "admin@localhost", "Acting admin, recorded as activity actor")
	tenantTTL := tenantCmd.Duration("ttl", defaultTTL, "Token time-to-live")
	tenantKey := tenantCmd.String("key", devSigningKey, "HMAC signing key (JWT_SIGNING_KEY)")
	tenantIssuer := tenantCmd.String("issuer", defaultIssuer, "Token issuer (JWT_ISSUER)")
	tenantJSON := tenantCmd.Bool("json", false, "Output as JSON")

	demoPrepaid := demoCmd.Bool("prepaid", false, "Mint for the prepaid demo tenant instead of the subscription one")
	demoTTL := demoCmd.Duration("ttl", defaultTTL, "Token time-to-live")
	demoJSON := demoCmd.Bool("json", false, "Output as JSON")

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "tenant":
		_ = tenantCmd.Parse(os.Args[2:])
		tid, err := id.ParseTenantID(*tenantID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Invalid -tenant-id: %v\n", err)
			os.Exit(1)
		}
		mint(tid, *tenantSubject, *tenantKey, *tenantIssuer, *tenantTTL, *tenantJSON)
	case "demo":
		_ = demoCmd.Parse(os.Args[2:])
		tid := seeder.DemoSubscriptionTenantID
		if *demoPrepaid {
			tid = seeder.DemoPrepaidTenantID
		}
		mint(tid, "demo-admin", devSigningKey, defaultIssuer, *demoTTL, *demoJSON)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`tokengen - Mint tenant bearer tokens for the certifier API

WARNING: Tokens use the development signing key unless -key is given.

Usage:
  tokengen <command> [flags]

Commands:
  tenant    Mint a token for any tenant ID
  demo      Mint a token for a seeded demo tenant (SEED_DEMO_DATA=true)

Examples:
  tokengen demo
  tokengen demo -prepaid -json
  tokengen tenant -tenant-id 550e8400-e29b-41d4-a716-446655440000 -ttl 1h

Use "tokengen <command> -h" for more information about a command.`)
}

func mint(tenantID id.TenantID, subject, key, issuer string, ttl time.Duration, jsonOutput bool) {
	svc := jwttoken.NewJWTService(key, issuer, ttl)
	token, err := svc.GenerateAccessToken(context.Background(), tenantID, subject)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error generating token: %v\n", err)
		os.Exit(1)
	}

	if jsonOutput {
		printJSON(tokenOutput{
			Token:     token,
			TenantID:  tenantID.String(),
			Subject:   subject,
			ExpiresIn: ttl.String(),
			Usage:     map[string]string{"header": "Authorization: Bearer <token>"},
		})
		return
	}

	fmt.Println("Tenant Access Token (JWT)")
	fmt.Println("=========================")
	fmt.Printf("Tenant ID:   %s\n", tenantID)
	fmt.Printf("Subject:     %s\n", subject)
	fmt.Printf("Expires In:  %s\n", ttl)
	fmt.Println()
	fmt.Println("Token:")
	fmt.Println(token)
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  curl -H \"Authorization: Bearer <token>\" http://localhost:8080/credentials")
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "Error encoding JSON: %v\n", err)
		os.Exit(1)
	}
}
