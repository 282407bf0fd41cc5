package middleware

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	jwtware "github.com/gofiber/jwt/v3"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
)

const (
	RoleStudent = "student"
	RoleTeacher = "teacher"
	RoleAdmin   = "admin"
)

var errBadClaims = errors.New("token is missing user claims")

func Protected(secret string) fiber.Handler {
	return jwtware.New(jwtware.Config{
		SigningKey:   []byte(secret),
		ErrorHandler: jwtError,
	})
}

// ProtectedWebsocket also accepts the token as ?token=, since browsers cannot
// set headers on a websocket upgrade.
func ProtectedWebsocket(secret string) fiber.Handler {
	return jwtware.New(jwtware.Config{
		SigningKey:   []byte(secret),
		TokenLookup:  "header:Authorization,query:token",
		ErrorHandler: jwtError,
	})
}

func jwtError(c *fiber.Ctx, err error) error {
	if err.Error() == "Missing or malformed JWT" {
		return c.Status(fiber.StatusBadRequest).
			JSON(fiber.Map{"status": "error", "message": "Missing or malformed JWT", "data": nil})
	}
	return c.Status(fiber.StatusUnauthorized).
		JSON(fiber.Map{"status": "error", "message": "Invalid or expired JWT", "data": nil})
}

// Claims reads the caller's id and role from the token placed in Locals by Protected.
func Claims(c *fiber.Ctx) (uuid.UUID, string, error) {
	token, ok := c.Locals("user").(*jwt.Token)
	if !ok {
		return uuid.Nil, "", errBadClaims
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return uuid.Nil, "", errBadClaims
	}
	rawID, _ := claims["user_id"].(string)
	id, err := uuid.Parse(rawID)
	if err != nil {
		return uuid.Nil, "", errBadClaims
	}
	role, _ := claims["role"].(string)
	return id, role, nil
}

func requireRole(role, message string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		_, got, err := Claims(c)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": err.Error()})
		}
		if got != role {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": message})
		}
		return c.Next()
	}
}

func AdminRequired() fiber.Handler {
	return requireRole(RoleAdmin, "Forbidden: Admin access required")
}

func TeacherRequired() fiber.Handler {
	return requireRole(RoleTeacher, "Forbidden: Teacher access required")
}

// WebsocketIdentity copies the caller's id into Locals("user_id") so the
// websocket handler can read it after the upgrade.
func WebsocketIdentity() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, _, err := Claims(c)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": err.Error()})
		}
		c.Locals("user_id", id)
		return c.Next()
	}
}
