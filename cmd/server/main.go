package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"time"

	_ "github.com/lib/pq"

	"ticketbooth/config"
	_ "ticketbooth/docs"
	"ticketbooth/internal/adapters/export"
	"ticketbooth/internal/adapters/qr"
	httpdelivery "ticketbooth/internal/delivery/http"
	"ticketbooth/internal/delivery/http/controllers"
	"ticketbooth/internal/delivery/http/middleware"
	"ticketbooth/internal/repository/postgres"
	"ticketbooth/internal/services"
)

// @title Ticketbooth API
// @version 1.0
// @description Single-use daily ticket issuance and redemption service.
// @BasePath /
func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}
	logger := config.NewLogger()

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		logger.Error("invalid TICKETS_TIMEZONE", "timezone", cfg.Timezone, "err", err)
		os.Exit(1)
	}

	db, err := sql.Open("postgres", cfg.DBUrl)
	if err != nil {
		logger.Error("failed to open database", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		logger.Error("failed to connect to database", "err", err)
		os.Exit(1)
	}
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		logger.Error("failed to ensure schema", "err", err)
		os.Exit(1)
	}

	repo := postgres.NewTicketRepository(db)
	clock := services.NewReferenceClock(loc)
	codec := services.NewTokenCodec(cfg.BaseURL)
	ticketService := services.NewTicketService(repo, codec, clock)

	controller := controllers.NewTicketController(
		logger,
		ticketService,
		codec,
		qr.NewPNGRenderer(),
		export.NewCSVExporter(loc),
	)
	identity := middleware.NewIdentityIssuer(cfg.IdentityCookieSecret, logger)

	router := httpdelivery.NewRouter(controller, identity)
	var handler http.Handler = router
	if len(cfg.CORSAllowedOrigins) > 0 {
		handler = middleware.CORS(cfg.CORSAllowedOrigins, handler)
	}
	handler = middleware.LoggingMiddleware(logger, handler)

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.Info("listening", "port", cfg.Port, "env", cfg.Environment, "timezone", cfg.Timezone)
	if err := server.ListenAndServe(); err != nil {
		logger.Error("server stopped", "err", err)
		os.Exit(1)
	}
}
