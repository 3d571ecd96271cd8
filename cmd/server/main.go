package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bij27/hohm.studio/internal/config"
	"github.com/bij27/hohm.studio/internal/database"
	"github.com/bij27/hohm.studio/internal/handlers"
	"github.com/bij27/hohm.studio/internal/session"
)

var httpServer *http.Server

func main() {
	httpPort := flag.String("http-port", "", "HTTP port (overrides HTTP_PORT)")
	noDB := flag.Bool("no-db", false, "run without Postgres persistence")
	flag.Parse()

	cfg := config.LoadConfig()
	if *httpPort != "" {
		cfg.HTTPPort = *httpPort
	}

	log.Println("Starting hohm.studio backend...")
	log.Printf("HTTP port: %s", cfg.HTTPPort)
	log.Printf("Environment: %s", cfg.Environment)

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	// Подключение к Postgres
	if *noDB {
		log.Println("Persistence disabled (--no-db)")
	} else {
		log.Printf("Connecting to Postgres: %s", cfg.DSNForLog())
		if err := database.InitDB(cfg.DSN()); err != nil {
			log.Printf("Postgres unavailable: %v", err)
			log.Println("Continuing without persistence (for testing)")
		} else {
			defer database.CloseDB()
		}
	}

	handlers.SetCORSOrigin(cfg.CORSOrigins)

	preset, err := session.ParseAlertPreset(cfg.AlertPreset)
	if err != nil {
		log.Printf("Invalid ALERT_PRESET %q, using moderate", cfg.AlertPreset)
		preset = session.AlertsModerate
	}
	wsOpts := handlers.WSOptions{
		SnapshotPerSec:   cfg.SnapshotPerSec,
		AlertPreset:      preset,
		MaxMessageSizeKB: cfg.MaxMessageSizeKB,
	}

	rooms := handlers.NewRoomHub(time.Duration(cfg.RoomTTLHours) * time.Hour)
	sweepDone := make(chan struct{})
	go rooms.Sweep(sweepDone)

	log.Println("Starting HTTP server...")
	go startHTTPServer(cfg.HTTPPort, wsOpts, rooms)

	// Ждём сигнала
	<-done
	log.Println("Shutting down...")

	close(sweepDone)

	if httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		log.Println("Stopping HTTP server...")
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("Error shutting down HTTP server: %v", err)
		} else {
			log.Println("HTTP server gracefully stopped")
		}
	}

	log.Println("Closing WebSocket connections...")
	rooms.CloseAll()
	log.Println("All WebSocket connections closed...")

	log.Println("Goodbye!")
}

func startHTTPServer(httpPort string, wsOpts handlers.WSOptions, rooms *handlers.RoomHub) {
	port := httpPort
	if len(port) > 0 && port[0] == ':' {
		port = port[1:]
	}

	mux := http.NewServeMux()

	mux.HandleFunc("/ws/session", handlers.SessionWS(wsOpts))
	mux.HandleFunc("/ws/posture", handlers.PostureWS(wsOpts))
	mux.HandleFunc("/ws/room", rooms.ServeWS)

	mux.HandleFunc("/api/auth/register", handlers.Register)
	mux.HandleFunc("/api/auth/login", handlers.Login)
	mux.HandleFunc("/api/auth/logout", handlers.Logout)
	mux.HandleFunc("/api/auth/me", handlers.GetCurrentUser)

	mux.HandleFunc("/api/sessions", handlers.GetSessions)
	mux.HandleFunc("/api/sessions/review", handlers.SessionReview)
	mux.HandleFunc("/api/sessions/clear", handlers.ClearSessions)

	mux.HandleFunc("/api/poses", handlers.ListPoses)
	mux.HandleFunc("/api/manifest", handlers.GenerateManifest)
	mux.HandleFunc("/api/rooms", rooms.CreateRoom)

	mux.HandleFunc("/api/health", handlers.Health(rooms))
	mux.HandleFunc("/api/metrics", handlers.MetricsHandler(rooms))

	httpServer = &http.Server{
		Addr:         ":" + port,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	log.Printf("HTTP server listening on port %s", port)
	log.Printf("WebSocket:  ws://localhost:%s/ws/session", port)
	log.Printf("REST API:   http://localhost:%s/api/*", port)

	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Failed to serve HTTP: %v", err)
	}
}
