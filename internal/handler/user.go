package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/stuffr/marketplace/internal/middleware"
	"github.com/stuffr/marketplace/internal/service"
)

type UserHandler struct {
	users *service.UserService
	auth  *service.AuthService
	jar   middleware.CookieJar
}

func NewUserHandler(users *service.UserService, auth *service.AuthService, jar middleware.CookieJar) *UserHandler {
	return &UserHandler{users: users, auth: auth, jar: jar}
}

type loginReq struct {
	Email    string `json:"email" validate:"required,email,max=50"`
	Password string `json:"password" validate:"required,min=8,max=20"`
}

type registerReq struct {
	loginReq
	Name       string  `json:"name" validate:"required,min=3,max=30"`
	SecondName *string `json:"second_name" validate:"omitempty,min=3,max=30"`
	Phone      *string `json:"phone" validate:"omitempty,max=20"`
}

type resetReq struct {
	NewPassword       string `json:"new_password" validate:"required,min=8,max=20"`
	RepeatNewPassword string `json:"repeat_new_password" validate:"required,min=8,max=20"`
}

// Register creates the account and signs the user in.
func (h *UserHandler) Register(c echo.Context) error {
	var req registerReq
	if err := bind(c, &req); err != nil {
		return err
	}
	user, pair, err := h.users.Register(c.Request().Context(), service.RegisterInput{
		Name:       req.Name,
		SecondName: req.SecondName,
		Phone:      req.Phone,
		Email:      req.Email,
		Password:   req.Password,
	})
	if err != nil {
		return err
	}
	h.jar.Set(c, pair)
	return c.JSON(http.StatusCreated, user)
}

func (h *UserHandler) Login(c echo.Context) error {
	var req loginReq
	if err := bind(c, &req); err != nil {
		return err
	}
	user, pair, err := h.users.Login(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return err
	}
	h.jar.Set(c, pair)
	return c.JSON(http.StatusOK, user)
}

// Logout drops the refresh token of this session only.
func (h *UserHandler) Logout(c echo.Context) error {
	user := middleware.CurrentUser(c)
	if err := h.auth.Logout(c.Request().Context(), user.ID, middleware.CurrentRefresh(c)); err != nil {
		return err
	}
	h.jar.Clear(c)
	return c.JSON(http.StatusOK, echo.Map{"message": "logged out"})
}

func (h *UserHandler) ForgotPassword(c echo.Context) error {
	email := c.QueryParam("email")
	if err := c.Echo().Validator.Validate(struct {
		Email string `validate:"required,email,max=50"`
	}{email}); err != nil {
		return err
	}
	if err := h.users.ForgotPassword(c.Request().Context(), email); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, echo.Map{"message": "password reset email sent to " + email})
}

func (h *UserHandler) CheckToken(c echo.Context) error {
	if _, err := h.users.CheckResetToken(c.Request().Context(), c.QueryParam("token")); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"valid": true})
}

func (h *UserHandler) ResetPassword(c echo.Context) error {
	var req resetReq
	if err := bind(c, &req); err != nil {
		return err
	}
	user, err := h.users.ResetPassword(c.Request().Context(), c.QueryParam("token"), req.NewPassword, req.RepeatNewPassword)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, user)
}

func (h *UserHandler) Me(c echo.Context) error {
	return c.JSON(http.StatusOK, middleware.CurrentUser(c))
}
