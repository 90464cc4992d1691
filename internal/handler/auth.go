package handler

import (
	"context"
	"database/sql"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/queuekill/queuekill/internal/config"
	"github.com/queuekill/queuekill/internal/model"
	"github.com/queuekill/queuekill/internal/repository"
	"github.com/queuekill/queuekill/internal/utils"
)

// AuthHandler bundles dependencies for the auth endpoints. It holds
// the raw DB handle because owner registration creates the user and
// the restaurant in one transaction.
type AuthHandler struct {
	Cfg         config.Config
	DB          *sql.DB
	Users       *repository.UserRepo
	Restaurants *repository.RestaurantRepo
}

func NewAuthHandler(cfg config.Config, db *sql.DB, u *repository.UserRepo, r *repository.RestaurantRepo) *AuthHandler {
	return &AuthHandler{Cfg: cfg, DB: db, Users: u, Restaurants: r}
}

// ----- DTOs -----

type registerReq struct {
	Email    string  `json:"email"`
	Password string  `json:"password"`
	Name     string  `json:"name"`
	Phone    *string `json:"phone"`
}

type registerOwnerReq struct {
	registerReq
	RestaurantName    string `json:"restaurantName"`
	RestaurantAddress string `json:"restaurantAddress"`
}

type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userPart struct {
	ID    uint64     `json:"id"`
	Email string     `json:"email"`
	Name  string     `json:"name"`
	Phone *string    `json:"phone,omitempty"`
	Role  model.Role `json:"role"`
}

type authResp struct {
	User       userPart          `json:"user"`
	Token      string            `json:"token"`
	Restaurant *model.Restaurant `json:"restaurant,omitempty"`
}

func (r *registerReq) normalize() {
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
	r.Name = strings.TrimSpace(r.Name)
}

func (r *registerReq) validate() []fieldError {
	var details []fieldError
	if r.Email == "" || !strings.Contains(r.Email, "@") {
		details = append(details, fieldError{Field: "email", Message: "valid email is required"})
	}
	if len(r.Password) < 6 {
		details = append(details, fieldError{Field: "password", Message: "password must be at least 6 characters"})
	}
	if r.Name == "" {
		details = append(details, fieldError{Field: "name", Message: "name is required"})
	}
	return details
}

// RegisterCustomer creates a CUSTOMER account and signs the user in.
func (h *AuthHandler) RegisterCustomer(c echo.Context) error {
	var req registerReq
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid body")
	}
	req.normalize()
	if details := req.validate(); len(details) > 0 {
		return failValidation(c, details)
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	uid, err := h.Users.Create(ctx, req.Email, req.Password, req.Name, req.Phone, model.RoleCustomer, h.Cfg.BcryptCost)
	if err != nil {
		return failFrom(c, err, "create user failed")
	}
	return h.respondWithToken(c, http.StatusCreated, userPart{
		ID: uid, Email: req.Email, Name: req.Name, Phone: req.Phone, Role: model.RoleCustomer,
	})
}

// RegisterOwner creates an OWNER account together with its restaurant.
// Both rows are written in one transaction so a failed restaurant
// insert never leaves an ownerless account behind.
func (h *AuthHandler) RegisterOwner(c echo.Context) error {
	var req registerOwnerReq
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid body")
	}
	req.normalize()
	req.RestaurantName = strings.TrimSpace(req.RestaurantName)
	req.RestaurantAddress = strings.TrimSpace(req.RestaurantAddress)

	details := req.validate()
	if req.RestaurantName == "" {
		details = append(details, fieldError{Field: "restaurantName", Message: "restaurant name is required"})
	}
	if req.RestaurantAddress == "" {
		details = append(details, fieldError{Field: "restaurantAddress", Message: "restaurant address is required"})
	}
	if len(details) > 0 {
		return failValidation(c, details)
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	tx, err := h.DB.BeginTx(ctx, nil)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "create owner failed")
	}
	defer func() { _ = tx.Rollback() }()

	uid, err := h.Users.CreateTx(ctx, tx, req.Email, req.Password, req.Name, req.Phone, model.RoleOwner, h.Cfg.BcryptCost)
	if err != nil {
		return failFrom(c, err, "create owner failed")
	}
	rest := model.Restaurant{OwnerID: uid, Name: req.RestaurantName, Address: req.RestaurantAddress}
	if err := h.Restaurants.CreateTx(ctx, tx, &rest); err != nil {
		return fail(c, http.StatusInternalServerError, "create restaurant failed")
	}
	if err := tx.Commit(); err != nil {
		return fail(c, http.StatusInternalServerError, "create owner failed")
	}

	u := userPart{ID: uid, Email: req.Email, Name: req.Name, Phone: req.Phone, Role: model.RoleOwner}
	access, err := utils.NewAccessToken(h.Cfg.JWTSecret, u.ID, string(u.Role), h.Cfg.AccessTTLMin)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "issue token failed")
	}
	return okData(c, http.StatusCreated, authResp{User: u, Token: access.Token, Restaurant: &rest})
}

// Login verifies credentials and issues a fresh access token.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid body")
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || req.Password == "" {
		return fail(c, http.StatusBadRequest, "email and password are required")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	u, err := h.Users.GetByEmail(ctx, req.Email)
	if err != nil {
		if err == repository.ErrUserNotFound {
			return fail(c, http.StatusUnauthorized, "invalid credentials")
		}
		return fail(c, http.StatusInternalServerError, "login failed")
	}
	if !utils.VerifyPassword(u.PasswordHash, req.Password) {
		return fail(c, http.StatusUnauthorized, "invalid credentials")
	}

	return h.respondWithToken(c, http.StatusOK, userPart{
		ID: u.ID, Email: u.Email, Name: u.Name, Phone: u.Phone, Role: u.Role,
	})
}

// Me returns the authenticated user's profile.
func (h *AuthHandler) Me(c echo.Context) error {
	uid, okAuth := userID(c)
	if !okAuth {
		return fail(c, http.StatusUnauthorized, "missing bearer token")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	u, err := h.Users.GetByID(ctx, uid)
	if err != nil {
		return failFrom(c, err, "load user failed")
	}
	return okData(c, http.StatusOK, userPart{
		ID: u.ID, Email: u.Email, Name: u.Name, Phone: u.Phone, Role: u.Role,
	})
}

func (h *AuthHandler) respondWithToken(c echo.Context, status int, u userPart) error {
	access, err := utils.NewAccessToken(h.Cfg.JWTSecret, u.ID, string(u.Role), h.Cfg.AccessTTLMin)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "issue token failed")
	}
	return okData(c, status, authResp{User: u, Token: access.Token})
}
