package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/queuekill/queuekill/internal/config"
	"github.com/queuekill/queuekill/internal/database"
	"github.com/queuekill/queuekill/internal/events"
	"github.com/queuekill/queuekill/internal/handler"
	"github.com/queuekill/queuekill/internal/realtime"
	"github.com/queuekill/queuekill/internal/repository"
	"github.com/queuekill/queuekill/internal/router"
	"github.com/queuekill/queuekill/internal/service"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Println("redis unavailable, rate limiting and caching disabled")
	}

	hub := realtime.NewHub()
	go hub.Run()

	// Audit trail consumer; reconnects on its own.
	go func() {
		if err := events.StartConsumer(); err != nil {
			log.Printf("queue-consumer: %v", err)
		}
	}()

	users := repository.NewUserRepo(db)
	restaurants := repository.NewRestaurantRepo(db)
	queues := repository.NewQueueRepo(db)
	entries := repository.NewEntryRepo(db)
	svc := service.NewQueueService(restaurants, queues, entries)

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: []string{cfg.CORSOrigin},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{echo.HeaderContentType, echo.HeaderAuthorization},
	}))

	router.Register(e, router.Deps{
		Cfg:         cfg,
		Redis:       rdb,
		Auth:        handler.NewAuthHandler(cfg, db, users, restaurants),
		Restaurants: handler.NewRestaurantHandler(restaurants),
		Queues:      handler.NewQueueHandler(cfg, svc, realtime.NewNotifier(hub), events.Publish),
		WS:          handler.NewWSHandler(hub, cfg.CORSOrigin),
	})

	go func() {
		addr := ":" + cfg.Port
		log.Printf("listening on %s (env=%s)", addr, cfg.Env)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		log.Fatalf("shutdown: %v", err)
	}
}
