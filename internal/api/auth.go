package api

import (
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
)

// Role defines the access level of a caller.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleOperator Role = "operator"
	RoleReadOnly Role = "readonly"
)

var roleLevel = map[Role]int{
	RoleReadOnly: 1,
	RoleOperator: 2,
	RoleAdmin:    3,
}

// AuthConfig holds authentication configuration.
type AuthConfig struct {
	Mode           string // "api-key", "jwt", "none"
	APIKey         string // grants admin
	ReadOnlyAPIKey string // grants readonly
	JWTSecret      string // HS256 shared secret
}

// Claims is the JWT payload accepted in jwt mode.
type Claims struct {
	Role Role `json:"role"`
	jwt.RegisteredClaims
}

func isProbe(path string) bool {
	return path == "/healthz" || path == "/readyz" || path == "/metrics"
}

// NewAuthMiddleware returns a Fiber middleware that validates the Authorization header.
func NewAuthMiddleware(cfg AuthConfig, logger zerolog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if cfg.Mode == "none" {
			c.Locals("role", RoleAdmin)
			return c.Next()
		}

		path := c.Path()
		if isProbe(path) {
			return c.Next()
		}

		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return problemResponse(c, fiber.StatusUnauthorized,
				"missing_auth", "Unauthorized",
				"Authorization header is required")
		}
		if !strings.HasPrefix(authHeader, "Bearer ") {
			return problemResponse(c, fiber.StatusUnauthorized,
				"invalid_auth_scheme", "Unauthorized",
				"Authorization header must use Bearer scheme")
		}
		token := strings.TrimPrefix(authHeader, "Bearer ")

		var (
			role Role
			err  error
		)
		switch cfg.Mode {
		case "jwt":
			role, err = verifyJWT(token, cfg.JWTSecret)
		default:
			role, err = verifyAPIKey(token, cfg)
		}
		if err != nil {
			logger.Warn().
				Err(err).
				Str("path", path).
				Str("method", c.Method()).
				Msg("unauthorized request")
			return problemResponse(c, fiber.StatusUnauthorized,
				"invalid_credentials", "Unauthorized", err.Error())
		}

		c.Locals("role", role)
		return c.Next()
	}
}

func verifyAPIKey(token string, cfg AuthConfig) (Role, error) {
	switch {
	case cfg.APIKey != "" && token == cfg.APIKey:
		return RoleAdmin, nil
	case cfg.ReadOnlyAPIKey != "" && token == cfg.ReadOnlyAPIKey:
		return RoleReadOnly, nil
	}
	return "", fmt.Errorf("invalid API key")
}

func verifyJWT(raw, secret string) (Role, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return "", fmt.Errorf("invalid token: %w", err)
	}
	if claims.Role == "" {
		return RoleReadOnly, nil
	}
	if _, ok := roleLevel[claims.Role]; !ok {
		return "", fmt.Errorf("unknown role %q", claims.Role)
	}
	return claims.Role, nil
}

// requireRole returns a middleware that enforces a minimum role level.
func requireRole(minRole Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		role, _ := c.Locals("role").(Role)
		if roleLevel[role] < roleLevel[minRole] {
			return problemResponse(c, fiber.StatusForbidden,
				"insufficient_role", "Forbidden",
				"Insufficient permissions for this operation")
		}
		return c.Next()
	}
}
