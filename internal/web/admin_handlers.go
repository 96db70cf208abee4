package web

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/havenmind/haven/internal/auth"
	"github.com/havenmind/haven/internal/store"
)

// handleListUsers returns every account for the admin console.
func (s *Server) handleListUsers(c *fiber.Ctx) error {
	users, err := s.store.ListUsers(c.UserContext())
	if err != nil {
		s.logger.Error("list users failed", "error", err)
		return serverError(c, "Could not load users.")
	}

	items := make([]fiber.Map, 0, len(users))
	for _, u := range users {
		item := fiber.Map{
			"id":         u.ID,
			"email":      u.Email,
			"role":       u.Role,
			"active":     u.Active,
			"verified":   u.Verified,
			"locked":     u.Locked,
			"created_at": u.CreatedAt,
		}
		if u.LastLogin != nil {
			item["last_login"] = u.LastLogin
		}
		items = append(items, item)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"users":   items,
	})
}

type updateUserRequest struct {
	Email    string `json:"email"`
	Role     string `json:"role"`
	Password string `json:"password"`
}

// handleUpdateUser changes an account's email, role and optionally its
// password. Admins cannot demote themselves, which would orphan the
// admin console.
func (s *Server) handleUpdateUser(c *fiber.Ctx) error {
	claims := claimsFrom(c)
	id, err := pathID(c)
	if err != nil {
		return badRequest(c, "Invalid user id.")
	}

	var req updateUserRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body.")
	}
	if !validRole(req.Role) {
		return badRequest(c, "Unknown role.")
	}
	if id == claims.UserID && req.Role != store.RoleAdmin {
		return badRequest(c, "You cannot change your own admin role.")
	}

	if err := s.store.UpdateUser(c.UserContext(), id, req.Email, req.Role); err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			return notFound(c, "No such user.")
		case errors.Is(err, store.ErrDuplicateEmail):
			return badRequest(c, "That email address is already registered.")
		}
		s.logger.Error("update user failed", "target_id", id, "error", err)
		return serverError(c, "Could not update the user.")
	}

	if req.Password != "" {
		if err := auth.ValidatePasswordStrength(req.Password); err != nil {
			return badRequest(c, capitalize(err.Error())+".")
		}
		hash, err := auth.HashPassword(req.Password)
		if err != nil {
			s.logger.Error("password hash failed", "error", err)
			return serverError(c, "Could not update the user.")
		}
		if err := s.store.UpdatePassword(c.UserContext(), id, hash); err != nil {
			s.logger.Error("password update failed", "target_id", id, "error", err)
			return serverError(c, "Could not update the user.")
		}
	}

	s.audit(c, claims.UserID, "admin_update_user", fmt.Sprintf("user %d role=%s", id, req.Role))
	return c.JSON(fiber.Map{"success": true})
}

type setActiveRequest struct {
	Active bool `json:"active"`
}

// handleSetActive toggles whether an account can log in. Admins cannot
// deactivate themselves.
func (s *Server) handleSetActive(c *fiber.Ctx) error {
	claims := claimsFrom(c)
	id, err := pathID(c)
	if err != nil {
		return badRequest(c, "Invalid user id.")
	}
	if id == claims.UserID {
		return badRequest(c, "You cannot deactivate your own account.")
	}

	var req setActiveRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body.")
	}

	if err := s.store.SetActive(c.UserContext(), id, req.Active); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return notFound(c, "No such user.")
		}
		s.logger.Error("set active failed", "target_id", id, "error", err)
		return serverError(c, "Could not update the user.")
	}

	s.audit(c, claims.UserID, "admin_set_active", fmt.Sprintf("user %d active=%t", id, req.Active))
	return c.JSON(fiber.Map{"success": true})
}

// handleDeleteUser removes an account and its conversation. Admins
// cannot delete themselves.
func (s *Server) handleDeleteUser(c *fiber.Ctx) error {
	claims := claimsFrom(c)
	id, err := pathID(c)
	if err != nil {
		return badRequest(c, "Invalid user id.")
	}
	if id == claims.UserID {
		return badRequest(c, "You cannot delete your own account.")
	}

	if err := s.store.DeleteUser(c.UserContext(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return notFound(c, "No such user.")
		}
		s.logger.Error("delete user failed", "target_id", id, "error", err)
		return serverError(c, "Could not delete the user.")
	}

	s.audit(c, claims.UserID, "admin_delete_user", fmt.Sprintf("user %d", id))
	return c.JSON(fiber.Map{"success": true})
}

// handleListAudit returns the audit trail, newest first.
func (s *Server) handleListAudit(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 100)

	entries, err := s.store.ListAudit(c.UserContext(), limit)
	if err != nil {
		s.logger.Error("list audit failed", "error", err)
		return serverError(c, "Could not load the audit log.")
	}

	items := make([]fiber.Map, 0, len(entries))
	for _, e := range entries {
		item := fiber.Map{
			"id":        e.ID,
			"action":    e.Action,
			"detail":    e.Detail,
			"origin":    e.Origin,
			"timestamp": e.CreatedAt,
		}
		if e.ActorID != nil {
			item["actor_id"] = *e.ActorID
		}
		items = append(items, item)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"entries": items,
	})
}

type moderateRequest struct {
	Flagged   bool   `json:"flagged"`
	Notes     string `json:"notes"`
	Sentiment string `json:"sentiment"`
}

// handleModerateTurn records a moderation decision on a turn.
func (s *Server) handleModerateTurn(c *fiber.Ctx) error {
	claims := claimsFrom(c)
	id, err := pathID(c)
	if err != nil {
		return badRequest(c, "Invalid turn id.")
	}

	var req moderateRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body.")
	}

	if err := s.store.ModerateTurn(c.UserContext(), id, req.Flagged, req.Notes, req.Sentiment); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return notFound(c, "No such turn.")
		}
		s.logger.Error("moderate turn failed", "turn_id", id, "error", err)
		return serverError(c, "Could not update the turn.")
	}

	s.audit(c, claims.UserID, "moderate_turn", fmt.Sprintf("turn %d flagged=%t", id, req.Flagged))
	return c.JSON(fiber.Map{"success": true})
}

func pathID(c *fiber.Ctx) (int64, error) {
	return strconv.ParseInt(c.Params("id"), 10, 64)
}

func validRole(role string) bool {
	switch role {
	case store.RoleClient, store.RoleTherapist, store.RoleAdmin:
		return true
	}
	return false
}

func notFound(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
		"success": false,
		"error":   msg,
	})
}
