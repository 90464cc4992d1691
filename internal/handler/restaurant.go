package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/queuekill/queuekill/internal/repository"
)

const browseLimit = 100

// RestaurantHandler serves the public browse endpoints and the owner's
// profile management.
type RestaurantHandler struct {
	Restaurants *repository.RestaurantRepo
}

func NewRestaurantHandler(r *repository.RestaurantRepo) *RestaurantHandler {
	return &RestaurantHandler{Restaurants: r}
}

// List returns all restaurants with their active queues. Public.
func (h *RestaurantHandler) List(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	out, err := h.Restaurants.ListAll(ctx, browseLimit)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "list restaurants failed")
	}
	return okData(c, http.StatusOK, out)
}

// Search filters restaurants by name or address. An empty query
// behaves like List.
func (h *RestaurantHandler) Search(c echo.Context) error {
	query := strings.TrimSpace(c.QueryParam("q"))

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	var (
		out []repository.RestaurantWithQueues
		err error
	)
	if query == "" {
		out, err = h.Restaurants.ListAll(ctx, browseLimit)
	} else {
		out, err = h.Restaurants.Search(ctx, query, browseLimit)
	}
	if err != nil {
		return fail(c, http.StatusInternalServerError, "search restaurants failed")
	}
	return okData(c, http.StatusOK, out)
}

// Get returns one restaurant with its active queues. Public.
func (h *RestaurantHandler) Get(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return fail(c, http.StatusBadRequest, "invalid restaurant id")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	out, err := h.Restaurants.GetDetail(ctx, id)
	if err != nil {
		return failFrom(c, err, "load restaurant failed")
	}
	return okData(c, http.StatusOK, out)
}

// MyRestaurant returns the authenticated owner's restaurant.
func (h *RestaurantHandler) MyRestaurant(c echo.Context) error {
	uid, okAuth := userID(c)
	if !okAuth {
		return fail(c, http.StatusUnauthorized, "missing bearer token")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	rest, err := h.Restaurants.GetByOwner(ctx, uid)
	if err != nil {
		return failFrom(c, err, "load restaurant failed")
	}
	return okData(c, http.StatusOK, rest)
}

type updateRestaurantReq struct {
	Name            *string `json:"name"`
	Address         *string `json:"address"`
	Type            *string `json:"type"`
	Description     *string `json:"description"`
	LongDescription *string `json:"longDescription"`
	MenuText        *string `json:"menuText"`
}

// UpdateMyRestaurant patches the owner's restaurant profile. Absent
// fields are left unchanged.
func (h *RestaurantHandler) UpdateMyRestaurant(c echo.Context) error {
	uid, okAuth := userID(c)
	if !okAuth {
		return fail(c, http.StatusUnauthorized, "missing bearer token")
	}
	var req updateRestaurantReq
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid body")
	}
	if req.Name != nil && strings.TrimSpace(*req.Name) == "" {
		return failValidation(c, []fieldError{{Field: "name", Message: "name cannot be empty"}})
	}
	if req.Address != nil && strings.TrimSpace(*req.Address) == "" {
		return failValidation(c, []fieldError{{Field: "address", Message: "address cannot be empty"}})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	rest, err := h.Restaurants.GetByOwner(ctx, uid)
	if err != nil {
		return failFrom(c, err, "load restaurant failed")
	}
	updated, err := h.Restaurants.Update(ctx, rest.ID, repository.RestaurantUpdate{
		Name:            req.Name,
		Address:         req.Address,
		Type:            req.Type,
		Description:     req.Description,
		LongDescription: req.LongDescription,
		MenuText:        req.MenuText,
	})
	if err != nil {
		return failFrom(c, err, "update restaurant failed")
	}
	return ok(c, http.StatusOK, "Restaurant updated", updated)
}
