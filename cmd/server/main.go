package main

import (
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/mkraft/scrumdeck/internal/api"
	"github.com/mkraft/scrumdeck/internal/auth"
	"github.com/mkraft/scrumdeck/internal/config"
	"github.com/mkraft/scrumdeck/internal/persist"
	"github.com/mkraft/scrumdeck/internal/room"
	"github.com/mkraft/scrumdeck/internal/session"
	"github.com/mkraft/scrumdeck/internal/snapshot"
	"github.com/mkraft/scrumdeck/internal/store"
	"github.com/mkraft/scrumdeck/internal/stored"
	"github.com/mkraft/scrumdeck/internal/ws"
)

func openStore(cfg config.Config) (store.ObjectStore, error) {
	switch cfg.StoreBackend {
	case "sqlite":
		return store.NewSQLiteStore(filepath.Join(cfg.DataDir, "scrumdeck.db"))
	case "badger":
		return store.NewBadgerStore(filepath.Join(cfg.DataDir, "badger"))
	case "ftp":
		return store.NewFTPStore(store.FTPConfig{
			Addr:     cfg.FTPAddr,
			User:     cfg.FTPUser,
			Password: cfg.FTPPassword,
			TLS:      cfg.FTPTLS,
			Timeout:  cfg.FTPTimeout,
		}), nil
	default:
		return store.NewFSStore(cfg.DataDir)
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logrus.SetLevel(level)
	}

	objects, err := openStore(cfg)
	if err != nil {
		logrus.Fatalf("Failed to open %s store: %v", cfg.StoreBackend, err)
	}
	defer objects.Close()

	repo := persist.NewRepository(objects, cfg.BaseDir)
	persistSvc := persist.NewService(repo, auth.NewBcryptHasher())

	snapshotCfg := snapshot.DefaultConfig()
	snapshotCfg.DebounceWindow = cfg.Debounce
	snapshotSvc := snapshot.New(persistSvc, snapshotCfg)
	snapshotSvc.Start()

	core := session.NewRegistry(snapshotSvc)
	core.SetHydrator(func(code string) *room.Room {
		snap, err := persistSvc.Load(code)
		if err != nil {
			logrus.WithError(err).WithField("room", code).Warn("Room warm-up failed, starting empty")
			return nil
		}
		if snap == nil {
			return nil
		}
		warmed := stored.ToLive(snap)
		warmed.DeactivateAll()
		return warmed
	})

	hub := ws.NewHub()
	go hub.Run()
	core.SetSender(hub)

	apiHandler := api.New(hub, core, persistSvc)

	http.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWs(hub, core, w, r)
	})
	http.HandleFunc("/health", apiHandler.HealthHandler)
	http.HandleFunc("/api/stats", apiHandler.StatsHandler)
	http.HandleFunc("/api/rooms", apiHandler.RoomsRouter)
	http.HandleFunc("/api/rooms/", apiHandler.RoomsRouter)

	handler := corsMiddleware(http.DefaultServeMux)

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logrus.Info("Shutting down server...")
		snapshotSvc.Stop()
		objects.Close()
		os.Exit(0)
	}()

	logrus.Infof("🃏 Scrumdeck server starting on :%s", cfg.Port)
	logrus.Infof("📦 Store: %s (%s)", cfg.StoreBackend, cfg.DataDir)
	logrus.Info("Endpoints:")
	logrus.Info("  - WebSocket: /ws?room={code}&name={name}")
	logrus.Info("  - Health:    GET /health")
	logrus.Info("  - Stats:     GET /api/stats")
	logrus.Info("  - Rooms:     GET /api/rooms")
	logrus.Info("  - Room:      GET/DELETE /api/rooms/{code}")
	logrus.Info("  - Password:  POST /api/rooms/{code}/password")
	logrus.Info("  - Verify:    POST /api/rooms/{code}/verify")

	if err := http.ListenAndServe(":"+cfg.Port, handler); err != nil {
		logrus.Fatal("ListenAndServe: ", err)
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
