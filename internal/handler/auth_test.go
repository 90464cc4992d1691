package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/queuekill/queuekill/internal/config"
)

func authContext(t *testing.T, body string) (*httptest.ResponseRecorder, echo.Context) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/auth/register", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	return rec, e.NewContext(req, rec)
}

func TestRegisterCustomerValidation(t *testing.T) {
	h := NewAuthHandler(config.Config{}, nil, nil, nil)

	rec, c := authContext(t, `{"email":"not-an-email","password":"123","name":""}`)
	require.NoError(t, h.RegisterCustomer(c))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "Validation failed", body["error"])
	assert.Len(t, body["details"], 3)
}

func TestRegisterOwnerValidation(t *testing.T) {
	h := NewAuthHandler(config.Config{}, nil, nil, nil)

	rec, c := authContext(t, `{"email":"owner@example.com","password":"secret1","name":"Olive","restaurantName":"","restaurantAddress":""}`)
	require.NoError(t, h.RegisterOwner(c))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeBody(t, rec)
	assert.Len(t, body["details"], 2)
}

func TestLoginRequiresCredentials(t *testing.T) {
	h := NewAuthHandler(config.Config{}, nil, nil, nil)

	rec, c := authContext(t, `{"email":"","password":""}`)
	require.NoError(t, h.Login(c))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMeRequiresAuth(t *testing.T) {
	h := NewAuthHandler(config.Config{}, nil, nil, nil)

	rec, c := authContext(t, "")
	require.NoError(t, h.Me(c))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
