package security

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/jvconnected/camera-engine/internal/logging"
)

// JWTClaims carries the control API's authorization identity: which user
// connected and which role governs the methods they may call
// (SPEC_FULL.md §6 Control API).
type JWTClaims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	IAT    int64  `json:"iat"`
	EXP    int64  `json:"exp"`
}

// ValidRoles defines the control API's roles: viewer may only read,
// operator may additionally write parameters and tally maps, admin may
// also edit device config (SPEC_FULL.md §6).
var ValidRoles = map[string]bool{
	"viewer":   true,
	"operator": true,
	"admin":    true,
}

// JWTHandler issues and validates the bearer tokens the control API's
// WebSocket endpoint requires on connect.
type JWTHandler struct {
	secretKey string
	algorithm string
	logger    *logging.Logger
}

// NewJWTHandler builds a JWTHandler. Returns an error if secretKey is
// empty, since an empty secret would make every signature trivially
// forgeable.
func NewJWTHandler(secretKey string, logger *logging.Logger) (*JWTHandler, error) {
	if strings.TrimSpace(secretKey) == "" {
		return nil, fmt.Errorf("secret key must be provided")
	}
	if logger == nil {
		logger = logging.GetLogger("jwt-handler")
	}

	handler := &JWTHandler{
		secretKey: secretKey,
		algorithm: "HS256",
		logger:    logger,
	}
	handler.logger.WithField("algorithm", handler.algorithm).Info("JWT handler initialized")
	return handler, nil
}

// GenerateToken creates a new JWT token with the specified claims.
// Returns the token string and any error encountered during generation.
func (h *JWTHandler) GenerateToken(userID, role string, expiryHours int) (string, error) {
	// Validate input parameters
	if strings.TrimSpace(userID) == "" {
		return "", fmt.Errorf("user ID cannot be empty")
	}

	if !ValidRoles[role] {
		return "", fmt.Errorf("invalid role: %s", role)
	}

	if expiryHours <= 0 {
		expiryHours = 24 // Default to 24 hours
	}

	// Create claims with current timestamp
	now := time.Now().Unix()
	claims := JWTClaims{
		UserID: userID,
		Role:   role,
		IAT:    now,
		EXP:    now + int64(expiryHours*3600),
	}

	// Create JWT token
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": claims.UserID,
		"role":    claims.Role,
		"iat":     claims.IAT,
		"exp":     claims.EXP,
	})

	// Sign the token
	tokenString, err := token.SignedString([]byte(h.secretKey))
	if err != nil {
		h.logger.Errorf("Failed to sign JWT token: %v", err)
		return "", fmt.Errorf("failed to generate token: %w", err)
	}

	h.logger.WithFields(logging.Fields{
		"user_id": userID,
		"role":    role,
		"expires": time.Unix(claims.EXP, 0).Format(time.RFC3339),
	}).Debug("JWT token generated successfully")

	return tokenString, nil
}

// ValidateToken validates a JWT token and extracts claims, restricting
// the accepted signing algorithm to prevent algorithm-confusion attacks.
func (h *JWTHandler) ValidateToken(tokenString string) (*JWTClaims, error) {
	if strings.TrimSpace(tokenString) == "" {
		return nil, fmt.Errorf("token cannot be empty")
	}

	// Use JWT library validation with explicit algorithm restriction (like Python)
	// This prevents algorithm confusion attacks and follows security best practices
	token, err := jwt.ParseWithClaims(tokenString, jwt.MapClaims{}, func(token *jwt.Token) (interface{}, error) {
		// Validate algorithm explicitly (like Python's algorithms=[self.algorithm])
		if token.Method.Alg() != "HS256" {
			h.logger.WithField("algorithm", token.Method.Alg()).Warn("Unsupported signing method detected")
			return nil, fmt.Errorf("unsupported signing method: %v", token.Method.Alg())
		}

		h.logger.WithField("signing_method", token.Method.Alg()).Debug("JWT signing method validated")
		return []byte(h.secretKey), nil
	})

	if err != nil {
		// Log the specific error for security auditing (like Python)
		h.logger.WithError(err).Warn("JWT token validation failed")

		// Return the original error for proper error handling (like Python)
		// Don't mask specific error types that could indicate security issues
		return nil, fmt.Errorf("failed to validate JWT token: %w", err)
	}

	// Extract claims
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		h.logger.Warn("JWT token claims are not MapClaims")
		return nil, fmt.Errorf("invalid token claims")
	}

	if !token.Valid {
		h.logger.Warn("JWT token is not valid")
		return nil, fmt.Errorf("invalid token claims")
	}

	// Validate required fields
	requiredFields := []string{"user_id", "role", "iat", "exp"}
	for _, field := range requiredFields {
		if _, exists := claims[field]; !exists {
			h.logger.Warnf("JWT token missing required field: %s", field)
			return nil, fmt.Errorf("missing required field: %s", field)
		}
	}

	// Validate role
	role, ok := claims["role"].(string)
	if !ok || !ValidRoles[role] {
		h.logger.Warnf("JWT token has invalid role: %v", claims["role"])
		return nil, fmt.Errorf("invalid role: %v", claims["role"])
	}

	// Extract and validate timestamps
	iat, ok := claims["iat"].(float64)
	if !ok {
		return nil, fmt.Errorf("invalid issued at timestamp")
	}

	exp, ok := claims["exp"].(float64)
	if !ok {
		return nil, fmt.Errorf("invalid expiration timestamp")
	}

	// Check if token is expired
	if time.Now().Unix() > int64(exp) {
		h.logger.Warn("JWT token has expired")
		return nil, fmt.Errorf("token has expired")
	}

	// Create JWTClaims structure
	jwtClaims := &JWTClaims{
		UserID: claims["user_id"].(string),
		Role:   role,
		IAT:    int64(iat),
		EXP:    int64(exp),
	}

	h.logger.WithFields(logging.Fields{
		"user_id": jwtClaims.UserID,
		"role":    jwtClaims.Role,
		"expires": time.Unix(jwtClaims.EXP, 0).Format(time.RFC3339),
	}).Debug("JWT token validated successfully")

	return jwtClaims, nil
}

// IsTokenExpired checks if a JWT token is expired without full validation.
// Returns true if the token is expired, false otherwise.
func (h *JWTHandler) IsTokenExpired(tokenString string) bool {
	if strings.TrimSpace(tokenString) == "" {
		return true
	}

	// Parse token without validation to extract claims
	token, _, err := new(jwt.Parser).ParseUnverified(tokenString, jwt.MapClaims{})
	if err != nil {
		h.logger.WithError(err).Debug("Failed to parse token for expiry check")
		return true
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return true
	}

	exp, ok := claims["exp"].(float64)
	if !ok {
		return true
	}

	return time.Now().Unix() > int64(exp)
}

// GetSecretKey returns the secret key used for JWT signing.
// This method is primarily used for testing purposes.
func (h *JWTHandler) GetSecretKey() string {
	return h.secretKey
}

// GetAlgorithm returns the algorithm used for JWT signing.
func (h *JWTHandler) GetAlgorithm() string {
	return h.algorithm
}
