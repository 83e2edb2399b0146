package auth

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/rollcall/internal/apperror"
)

// Handler handles HTTP requests for authentication and account management.
// Handlers are thin: they bind the request, call the service, and write the
// response. No business logic lives here.
type Handler struct {
	service AuthService
	gateway *Gateway
}

// NewHandler creates a new auth handler.
func NewHandler(service AuthService, gateway *Gateway) *Handler {
	return &Handler{service: service, gateway: gateway}
}

// Login authenticates a member (POST /api/auth/login).
func (h *Handler) Login(c echo.Context) error {
	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request body")
	}

	return h.login(c, LoginInput{
		MemberNo: req.MemberNo,
		Password: req.Password,
	})
}

// AdminLogin authenticates an admin (POST /api/admin/login). Only admin
// accounts are looked up; a member's credentials fail as invalid.
func (h *Handler) AdminLogin(c echo.Context) error {
	var req AdminLoginRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request body")
	}

	return h.login(c, LoginInput{
		MemberNo:      req.AdminID,
		Password:      req.Password,
		AdminRequired: true,
	})
}

func (h *Handler) login(c echo.Context, input LoginInput) error {
	input.ClientID = c.RealIP()

	result, err := h.service.Login(c.Request().Context(), input)
	if err != nil {
		return err
	}

	c.SetCookie(h.gateway.SessionCookie(result.Token, result.ExpiresAt))
	return c.JSON(http.StatusOK, map[string]any{
		"message": "login successful",
		"user":    result.User,
	})
}

// Logout clears the session cookie (POST /api/auth/logout). The response is
// identical whether or not a session was present.
func (h *Handler) Logout(c echo.Context) error {
	c.SetCookie(h.gateway.Logout())
	return c.JSON(http.StatusOK, map[string]string{"message": "logged out"})
}

// ChangePassword rotates the caller's secret (PATCH /api/auth/change-password).
func (h *Handler) ChangePassword(c echo.Context) error {
	claims := GetClaims(c)
	if claims == nil {
		return apperror.NewMissingContext()
	}

	var req ChangePasswordRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request body")
	}

	if err := h.service.ChangePassword(c.Request().Context(), claims, req.CurrentPassword, req.NewPassword); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "password updated"})
}

// ResetPassword replaces another user's secret (PATCH /api/admin/reset-password).
func (h *Handler) ResetPassword(c echo.Context) error {
	claims := GetClaims(c)
	if claims == nil {
		return apperror.NewMissingContext()
	}

	var req ResetPasswordRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request body")
	}

	if err := h.service.ResetPassword(c.Request().Context(), claims, req.UserID, req.NewPassword); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "password reset"})
}

// CreateUser provisions an account (POST /api/admin/users).
func (h *Handler) CreateUser(c echo.Context) error {
	claims := GetClaims(c)
	if claims == nil {
		return apperror.NewMissingContext()
	}

	var req CreateUserRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request body")
	}

	user, err := h.service.CreateUser(c.Request().Context(), claims, CreateUserInput{
		MemberNo: req.MemberNo,
		Password: req.Password,
		Name:     req.Name,
		IsAdmin:  req.IsAdmin,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, map[string]any{
		"message": "user created",
		"user":    user,
	})
}
