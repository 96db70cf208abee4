package web

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/havenmind/haven/internal/auth"
)

const claimsKey = "claims"

// requireAuth validates the Authorization bearer token and stores the
// claims on the request context.
func (s *Server) requireAuth(c *fiber.Ctx) error {
	header := c.Get(fiber.HeaderAuthorization)
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return unauthorized(c, "Authentication required.")
	}

	claims, err := s.tokens.Verify(token)
	if err != nil {
		return unauthorized(c, "Invalid or expired session.")
	}

	c.Locals(claimsKey, claims)
	return c.Next()
}

// requireWSAuth authenticates websocket handshakes. The token travels
// as a query parameter because browser websocket clients cannot set
// request headers.
func (s *Server) requireWSAuth(c *fiber.Ctx) error {
	token := c.Query("token")
	if token == "" {
		return unauthorized(c, "Authentication required.")
	}

	claims, err := s.tokens.Verify(token)
	if err != nil {
		return unauthorized(c, "Invalid or expired session.")
	}

	c.Locals(claimsKey, claims)
	return c.Next()
}

// requireRole restricts a route to the given roles. Must run after an
// auth middleware.
func (s *Server) requireRole(roles ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims := claimsFrom(c)
		for _, role := range roles {
			if claims.Role == role {
				return c.Next()
			}
		}
		return forbidden(c, "You do not have permission to do that.")
	}
}

// wsRequireRole is requireRole for websocket routes; it runs during the
// HTTP handshake, before the upgrade.
func (s *Server) wsRequireRole(roles ...string) fiber.Handler {
	return s.requireRole(roles...)
}

func claimsFrom(c *fiber.Ctx) *auth.Claims {
	claims, _ := c.Locals(claimsKey).(*auth.Claims)
	return claims
}

func unauthorized(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
		"success": false,
		"error":   msg,
	})
}

func forbidden(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
		"success": false,
		"error":   msg,
	})
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"success": false,
		"error":   msg,
	})
}

func serverError(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"success": false,
		"error":   msg,
	})
}
