// Package router wires the HTTP endpoints to their handlers and
// middleware. All API routes live under /api; the websocket endpoint
// is mounted at /ws.
package router

import (
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/queuekill/queuekill/internal/config"
	"github.com/queuekill/queuekill/internal/handler"
	"github.com/queuekill/queuekill/internal/middleware"
	"github.com/queuekill/queuekill/internal/model"
)

// Deps carries everything the routes need.
type Deps struct {
	Cfg         config.Config
	Redis       *redis.Client
	Auth        *handler.AuthHandler
	Restaurants *handler.RestaurantHandler
	Queues      *handler.QueueHandler
	WS          *handler.WSHandler
}

// Register mounts every route on the Echo instance.
func Register(e *echo.Echo, d Deps) {
	e.GET("/api/health", handler.Health)
	e.GET("/ws", d.WS.Serve)

	api := e.Group("/api")
	api.Use(middleware.NewTokenBucket(config.LoadRateLimitConfig(), d.Redis))

	// Auth.
	auth := api.Group("/auth")
	auth.POST("/register-customer", d.Auth.RegisterCustomer)
	auth.POST("/register-owner", d.Auth.RegisterOwner)
	auth.POST("/login", d.Auth.Login)
	auth.GET("/me", d.Auth.Me, middleware.JWTAuth(d.Cfg.JWTSecret))

	// Public browse, cached.
	browse := api.Group("/restaurants")
	browse.Use(middleware.NewRedisCache(config.LoadCacheConfig(), d.Redis))
	browse.GET("", d.Restaurants.List)
	browse.GET("/search", d.Restaurants.Search)
	browse.GET("/:id", d.Restaurants.Get)

	// Owner restaurant profile.
	ownerRest := api.Group("/restaurants",
		middleware.JWTAuth(d.Cfg.JWTSecret),
		middleware.RequireRole(string(model.RoleOwner)))
	ownerRest.GET("/my-restaurant", d.Restaurants.MyRestaurant)
	ownerRest.PATCH("/my-restaurant", d.Restaurants.UpdateMyRestaurant)

	// Queues: public reads plus the optional-auth join.
	queues := api.Group("/queues")
	queues.GET("/:id", d.Queues.Get)
	queues.GET("/:id/qrcode", d.Queues.QRCode)
	queues.POST("/:id/join", d.Queues.Join, middleware.OptionalJWTAuth(d.Cfg.JWTSecret))

	// Customer entry management. Leaving is customer-only; my-entries
	// only needs a signed-in user.
	customer := api.Group("/queues",
		middleware.JWTAuth(d.Cfg.JWTSecret))
	customer.GET("/my-entries", d.Queues.MyEntries)
	customer.POST("/entry/:entryId/leave", d.Queues.Leave,
		middleware.RequireRole(string(model.RoleCustomer)))

	// Owner queue management.
	owner := api.Group("/queues",
		middleware.JWTAuth(d.Cfg.JWTSecret),
		middleware.RequireRole(string(model.RoleOwner)))
	owner.POST("", d.Queues.Create)
	owner.GET("/my-queues", d.Queues.MyQueues)
	owner.POST("/:id/call-next", d.Queues.CallNext)
	owner.POST("/entry/:entryId/complete", d.Queues.Complete)
	owner.POST("/entry/:entryId/remove", d.Queues.Remove)
	owner.DELETE("/:id", d.Queues.Delete)
}
