package web

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/havenmind/haven/internal/auth"
	"github.com/havenmind/haven/internal/store"
)

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// handleRegister creates an unverified client account and emails a
// verification link.
func (s *Server) handleRegister(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body.")
	}

	email := strings.TrimSpace(req.Email)
	if email == "" || !strings.Contains(email, "@") {
		return badRequest(c, "A valid email address is required.")
	}
	if err := auth.ValidatePasswordStrength(req.Password); err != nil {
		return badRequest(c, capitalize(err.Error())+".")
	}

	// Self-service signup covers clients and therapists; admin accounts
	// are only created by an existing admin.
	role := req.Role
	switch role {
	case "":
		role = store.RoleClient
	case store.RoleClient, store.RoleTherapist:
	default:
		return badRequest(c, "Unknown role.")
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		s.logger.Error("password hash failed", "error", err)
		return serverError(c, "Registration failed. Please try again.")
	}
	token, err := auth.NewVerificationToken()
	if err != nil {
		s.logger.Error("verification token generation failed", "error", err)
		return serverError(c, "Registration failed. Please try again.")
	}

	user, err := s.store.CreateUser(c.UserContext(), email, hash, role, token)
	if err != nil {
		if errors.Is(err, store.ErrDuplicateEmail) {
			return badRequest(c, "That email address is already registered.")
		}
		s.logger.Error("create user failed", "error", err)
		return serverError(c, "Registration failed. Please try again.")
	}

	// Mail delivery is best effort: the account exists either way and
	// the link can be re-sent by an admin.
	link := fmt.Sprintf("%s/api/auth/verify?token=%s", s.cfg.PublicBaseURL, token)
	if err := s.mailer.Send(c.UserContext(), user.Email, "Verify your haven account",
		"Welcome to haven. Confirm your email address by opening:\n\n"+link); err != nil {
		s.logger.Error("verification mail failed", "user_id", user.ID, "error", err)
	}

	s.audit(c, user.ID, "register", user.Email)

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"message": "Account created. Check your email to verify your address.",
	})
}

// handleVerify consumes an email verification token.
func (s *Server) handleVerify(c *fiber.Ctx) error {
	token := c.Query("token")
	user, err := s.store.VerifyUser(c.UserContext(), token)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrTokenExpired):
			return badRequest(c, "This verification link has expired. Please register again.")
		case errors.Is(err, store.ErrNotFound):
			return badRequest(c, "Invalid or already used verification link.")
		}
		s.logger.Error("verification failed", "error", err)
		return serverError(c, "Verification failed. Please try again.")
	}

	s.audit(c, user.ID, "verify_email", user.Email)

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Email verified. You can now log in.",
	})
}

// handleLogin checks credentials, enforces the lockout policy and
// issues a session token.
func (s *Server) handleLogin(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body.")
	}

	user, err := s.store.UserByEmail(c.UserContext(), req.Email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.audit(c, 0, "login_failure", "unknown email "+strings.ToLower(strings.TrimSpace(req.Email)))
			return unauthorized(c, "Invalid email or password.")
		}
		s.logger.Error("login lookup failed", "error", err)
		return serverError(c, "Login failed. Please try again.")
	}

	if user.Locked {
		s.audit(c, user.ID, "login_rejected", "account locked")
		return forbidden(c, "Account locked after repeated failed logins. Contact support.")
	}
	if !user.Active {
		s.audit(c, user.ID, "login_rejected", "account deactivated")
		return forbidden(c, "This account has been deactivated.")
	}
	if !user.Verified {
		s.audit(c, user.ID, "login_rejected", "email not verified")
		return forbidden(c, "Please verify your email address before logging in.")
	}

	if !auth.CheckPassword(user.PasswordHash, req.Password) {
		failures, locked, ferr := s.store.RecordLoginFailure(c.UserContext(), user.ID, s.cfg.LockoutLimit)
		if ferr != nil {
			s.logger.Error("recording login failure failed", "user_id", user.ID, "error", ferr)
		}
		detail := fmt.Sprintf("failure %d", failures)
		if locked {
			detail = "account locked"
		}
		s.audit(c, user.ID, "login_failure", detail)
		return unauthorized(c, "Invalid email or password.")
	}

	if err := s.store.RecordLoginSuccess(c.UserContext(), user.ID); err != nil {
		s.logger.Error("recording login success failed", "user_id", user.ID, "error", err)
	}

	token, err := s.tokens.Issue(user.ID, user.Role)
	if err != nil {
		s.logger.Error("token issue failed", "user_id", user.ID, "error", err)
		return serverError(c, "Login failed. Please try again.")
	}

	s.audit(c, user.ID, "login_success", user.Email)

	return c.JSON(fiber.Map{
		"success": true,
		"token":   token,
		"user": fiber.Map{
			"id":    user.ID,
			"email": user.Email,
			"role":  user.Role,
		},
	})
}

// handleLogout records the logout. Tokens are stateless, so this is an
// audit event rather than a revocation.
func (s *Server) handleLogout(c *fiber.Ctx) error {
	claims := claimsFrom(c)
	s.audit(c, claims.UserID, "logout", "")
	return c.JSON(fiber.Map{
		"success": true,
		"message": "Logged out.",
	})
}

// audit records a security-relevant action with the request's remote
// address; failures are logged and never surfaced to the caller.
func (s *Server) audit(c *fiber.Ctx, actorID int64, action, detail string) {
	if err := s.store.AppendAudit(c.UserContext(), actorID, action, detail, c.IP()); err != nil {
		s.logger.Error("audit append failed", "action", action, "error", err)
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
