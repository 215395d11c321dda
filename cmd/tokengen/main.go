// Command tokengen mints JWT bearer tokens for the control API using the
// same secret key and algorithm as the server, for testing and operator
// use outside the WebSocket authenticate handshake.
//
// Usage:
//
//	tokengen --role admin --expiry-hours 72
//	tokengen --role viewer --expiry-hours 24 --secret-key "custom-secret"
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/jvconnected/camera-engine/internal/logging"
	"github.com/jvconnected/camera-engine/internal/security"
)

var (
	role         = flag.String("role", "admin", "User role (viewer, operator, admin)")
	expiryHours  = flag.Int("expiry-hours", 48, "Token expiry in hours")
	secretKey    = flag.String("secret-key", "change-in-production", "JWT secret key")
	userID       = flag.String("user-id", "", "User ID (defaults to test_<role>)")
	outputFormat = flag.String("format", "token", "Output format: token, json")
)

func main() {
	flag.Parse()

	if !security.ValidRoles[*role] {
		fmt.Fprintf(os.Stderr, "Error: Invalid role '%s'. Valid roles: viewer, operator, admin\n", *role)
		os.Exit(1)
	}
	if *expiryHours <= 0 {
		fmt.Fprintf(os.Stderr, "Error: Expiry hours must be positive\n")
		os.Exit(1)
	}
	if *userID == "" {
		*userID = "test_" + *role
	}

	logger := logging.GetLogger("tokengen")

	jwtHandler, err := security.NewJWTHandler(*secretKey, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to create JWT handler: %v\n", err)
		os.Exit(1)
	}

	token, err := jwtHandler.GenerateToken(*userID, *role, *expiryHours)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to generate token: %v\n", err)
		os.Exit(1)
	}

	switch *outputFormat {
	case "json":
		expiresAt := time.Now().Add(time.Duration(*expiryHours) * time.Hour)
		output := fmt.Sprintf(`{
  "token": "%s",
  "user_id": "%s",
  "role": "%s",
  "expires_in_hours": %d,
  "expires_at": "%s",
  "algorithm": "HS256"
}`, token, *userID, *role, *expiryHours, expiresAt.Format(time.RFC3339))
		fmt.Println(output)
	case "token":
		fmt.Println(token)
	default:
		fmt.Fprintf(os.Stderr, "Error: Invalid output format '%s'. Valid formats: token, json\n", *outputFormat)
		os.Exit(1)
	}
}
