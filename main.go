package main

import (
	"net/http"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/CrowderSoup/tasklist/handlers"
	"github.com/CrowderSoup/tasklist/services"
	"github.com/CrowderSoup/tasklist/store"
)

func main() {
	// .env is optional; environment variables win either way
	_ = LoadEnv(".env")

	cfg, err := LoadConfig()
	if err != nil {
		log.Fatal("load config", "err", err)
	}

	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Prefix:          "tasklist",
	})
	if level, err := log.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	}

	// One store instance for the process, injected into every handler.
	st, err := store.Open(cfg.StoreConfig(), logger)
	if err != nil {
		logger.Fatal("open store", "err", err)
	}
	defer st.Close()

	// WebSocket hub for change notifications
	hub := services.NewHub(logger)
	go hub.Run()

	taskHandler := handlers.NewTaskHandler(st, hub, logger)
	tagHandler := handlers.NewTagHandler(st, hub, logger)
	healthHandler := handlers.NewHealthHandler(st)

	// Setup router
	r := mux.NewRouter()

	api := r.PathPrefix("/api").Subrouter()
	api.Use(handlers.RequestLogger(logger))
	taskHandler.Register(api)
	tagHandler.Register(api)
	api.HandleFunc("/health", healthHandler.Health).Methods("GET")

	// WebSocket route for real-time updates (outside the logged
	// subrouter; the recorder does not support hijacking)
	r.HandleFunc("/ws", hub.ServeWS)

	// Static file server for the demo frontend
	r.PathPrefix("/").Handler(http.FileServer(http.Dir("./static")))

	// Setup CORS
	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"}, // In production, change to your domain
		AllowedMethods:   []string{"GET", "POST", "PATCH", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: true,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      c.Handler(r),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	logger.Info("server starting", "port", cfg.Port, "backend", cfg.Backend)
	logger.Fatal("server stopped", "err", server.ListenAndServe())
}
