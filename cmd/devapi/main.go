// Command devapi serves the in-process fake marathon backend on localhost,
// for running the client without the hosted API.
//
//	DEVAPI_PORT=5000 go run ./cmd/devapi -seed
//	API_BASE_URL=http://localhost:5000 go run ./cmd/marathonctl marathons
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sakif/marathon-client/internal/auth"
	"github.com/sakif/marathon-client/internal/config"
	"github.com/sakif/marathon-client/internal/mockapi"
	"github.com/sakif/marathon-client/internal/model"
)

func main() {
	seed := flag.Bool("seed", false, "load a few demo marathons")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))

	tokens, err := auth.NewTokenService(cfg.DevAPIJWTSecret)
	if err != nil {
		logger.Error("invalid DEVAPI_JWT_SECRET", slog.String("error", err.Error()))
		os.Exit(1)
	}

	api := mockapi.New(tokens, logger)
	if *seed {
		api.SeedMarathons(demoMarathons(time.Now())...)
	}

	if err := serve(api, cfg.DevAPIPort, logger); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// serve runs the HTTP server until SIGINT or SIGTERM, then shuts it down
// gracefully.
func serve(h http.Handler, port int, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("dev API starting",
			slog.Int("port", port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", port)),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	case sig := <-quit:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		logger.Info("server stopped gracefully")
	}
	return nil
}

// demoMarathons returns listings whose windows are placed around now so
// that some are open for registration.
func demoMarathons(now time.Time) []model.Marathon {
	day := func(offset int) model.Date {
		t := now.AddDate(0, 0, offset)
		return model.NewDate(t.Year(), t.Month(), t.Day())
	}
	return []model.Marathon{
		{
			Title: "Dhaka City Marathon", Location: "Dhaka, Bangladesh",
			StartRegistrationDate: day(-10), EndRegistrationDate: day(10), MarathonStartDate: day(30),
			RunningDistance: model.Distance42K, Email: "organizer@example.com",
			Description: "A full marathon through the heart of the capital.",
		},
		{
			Title: "Cox's Bazar Beach Run", Location: "Cox's Bazar, Bangladesh",
			StartRegistrationDate: day(-5), EndRegistrationDate: day(20), MarathonStartDate: day(45),
			RunningDistance: model.Distance10K, Email: "organizer@example.com",
			Description: "Ten kilometres along the longest natural sea beach.",
		},
		{
			Title: "Sylhet Tea Garden 25K", Location: "Sylhet, Bangladesh",
			StartRegistrationDate: day(-40), EndRegistrationDate: day(-20), MarathonStartDate: day(5),
			RunningDistance: model.Distance25K, Email: "runner@example.com",
			Description: "Rolling hills between the tea estates. Registration has closed.",
		},
	}
}
