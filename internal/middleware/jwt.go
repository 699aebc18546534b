package middleware

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/noah-isme/gema-chat/internal/utils"
)

const (
	localUserID   = "user_id"
	localUsername = "username"
)

var errMissingToken = errors.New("missing token")

// Identity is the authenticated caller extracted from a token.
type Identity struct {
	UserID   string
	Username string
}

// JWTProtected returns a middleware that validates JWT bearer tokens.
// Websocket upgrades cannot carry headers from browsers, so a token query
// parameter is accepted when no Authorization header is present.
func JWTProtected(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenString, err := tokenFromRequest(c)
		if err != nil {
			return utils.SendKindError(c, fiber.StatusUnauthorized, "auth", err.Error())
		}

		identity, err := ParseToken(secret, tokenString)
		if err != nil {
			return utils.SendKindError(c, fiber.StatusUnauthorized, "auth", "invalid token")
		}

		c.Locals(localUserID, identity.UserID)
		c.Locals(localUsername, identity.Username)

		return c.Next()
	}
}

// ParseToken verifies an HMAC signed token and returns the identity it carries.
func ParseToken(secret, tokenString string) (Identity, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return Identity{}, fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, fmt.Errorf("invalid token claims")
	}

	identity := Identity{
		UserID:   stringClaim(claims, "sub", "user_id", "id"),
		Username: stringClaim(claims, "username", "name"),
	}
	if identity.UserID == "" {
		return Identity{}, fmt.Errorf("token has no subject")
	}

	return identity, nil
}

// UserID returns the authenticated user id stored by JWTProtected.
func UserID(c *fiber.Ctx) string {
	value, _ := c.Locals(localUserID).(string)
	return value
}

// Username returns the authenticated username stored by JWTProtected.
func Username(c *fiber.Ctx) string {
	value, _ := c.Locals(localUsername).(string)
	return value
}

func tokenFromRequest(c *fiber.Ctx) (string, error) {
	authorization := c.Get("Authorization")
	if authorization == "" {
		if token := strings.TrimSpace(c.Query("token")); token != "" {
			return token, nil
		}
		return "", fmt.Errorf("authorization header missing")
	}

	const bearer = "Bearer "
	if !strings.HasPrefix(strings.ToLower(authorization), strings.ToLower(bearer)) {
		return "", fmt.Errorf("invalid authorization header")
	}

	tokenString := strings.TrimSpace(authorization[len(bearer):])
	if tokenString == "" {
		return "", errMissingToken
	}
	return tokenString, nil
}

func stringClaim(claims jwt.MapClaims, keys ...string) string {
	for _, key := range keys {
		switch v := claims[key].(type) {
		case string:
			if trimmed := strings.TrimSpace(v); trimmed != "" {
				return trimmed
			}
		case float64:
			return fmt.Sprintf("%.0f", v)
		}
	}
	return ""
}
