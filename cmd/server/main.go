package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"eventclient/internal/api"
	"eventclient/internal/bootstrap"
	"eventclient/internal/config"
	"eventclient/internal/dashboard"
	"eventclient/internal/db"
	"eventclient/internal/eventapi"
	"eventclient/internal/nav"
	"eventclient/internal/obs"
	"eventclient/internal/session"
	"eventclient/internal/store"
	"eventclient/internal/version"
)

const (
	janitorInterval = 15 * time.Minute
	viewIdleTTL     = 2 * time.Hour
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	kv, sqdb, closeStore, err := openStore(cfg)
	if err != nil {
		log.Fatalf("session store: %v", err)
	}
	defer closeStore()

	obs.Init()
	info := version.Current()
	obs.InitBuildInfo(info.Version, info.Commit)

	events := eventapi.New(eventapi.Options{
		BaseURL:    cfg.EventsAPIBaseURL,
		EventsPath: cfg.EventsAPIEventsPath,
		LoginPath:  cfg.EventsAPILoginPath,
		Timeout:    cfg.EventsAPITimeout(),
		RPS:        cfg.EventsAPIRPS,
		Burst:      cfg.EventsAPIBurst,
	})
	sessions := session.NewManager(kv, cfg.SessionEncryptKey)
	host := dashboard.NewHost(ctx, events, dashboard.Options{FetchTimeout: cfg.EventsAPITimeout()})

	r := api.NewRouter(cfg, api.Deps{
		Store:      kv,
		Sessions:   sessions,
		Bootstrap:  bootstrap.NewChecker(sessions),
		Table:      nav.DefaultTable(),
		Dashboards: host,
		Events:     events,
	})

	go janitor(ctx, cfg, sqdb, host)

	hsrv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           r,
		ReadTimeout:       time.Duration(cfg.HTTPReadTimeoutSec) * time.Second,
		ReadHeaderTimeout: time.Duration(cfg.HTTPReadHeaderTimeoutSec) * time.Second,
		WriteTimeout:      time.Duration(cfg.HTTPWriteTimeoutSec) * time.Second,
		IdleTimeout:       time.Duration(cfg.HTTPIdleTimeoutSec) * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := hsrv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("shutdown error=%v", err)
		}
	}()

	log.Printf("listening on %s session_store=%s events_api=%s version=%s", cfg.ListenAddr, cfg.SessionStore, cfg.EventsAPIBaseURL, info.Version)
	if err := hsrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("server: %v", err)
	}
	host.Wait()
}

// openStore returns the configured session storage. sqdb is nil unless the
// storage is SQL.
func openStore(cfg config.Config) (store.KV, *sql.DB, func(), error) {
	switch cfg.SessionStore {
	case "memory":
		log.Printf("session_store=memory sessions do not survive restarts")
		return store.NewMemory(), nil, func() {}, nil
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		kv := store.NewRedis(rdb, cfg.SessionMaxAge())
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := kv.Ping(pingCtx); err != nil {
			_ = rdb.Close()
			return nil, nil, nil, err
		}
		return kv, nil, func() { _ = rdb.Close() }, nil
	}

	var (
		sqdb *sql.DB
		err  error
	)
	if cfg.DBDriver == "sqlite" {
		sqdb, err = db.OpenSQLite(cfg.DBPath, cfg.DBMaxOpenConns, cfg.DBMaxIdleConns, cfg.DBConnMaxLifetime)
	} else {
		sqdb, err = db.Open(cfg.DBDriver, cfg.DBDSN, cfg.DBMaxOpenConns, cfg.DBMaxIdleConns, cfg.DBConnMaxLifetime)
	}
	if err != nil {
		return nil, nil, nil, err
	}
	if err := db.ApplyMigrationFile(sqdb, db.MigrationPath("migrations", cfg.DBDriver)); err != nil {
		_ = sqdb.Close()
		return nil, nil, nil, err
	}
	return store.NewSQL(sqdb, cfg.DBDriver), sqdb, func() { _ = sqdb.Close() }, nil
}

// janitor drops idle dashboard views and, for SQL storage, session rows
// older than the cookie lifetime. Redis expires its own keys.
func janitor(ctx context.Context, cfg config.Config, sqdb *sql.DB, host *dashboard.Host) {
	t := time.NewTicker(janitorInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			if n := host.EvictIdle(now.Add(-viewIdleTTL)); n > 0 {
				log.Printf("dashboard_views_evicted count=%d", n)
			}
			if sqdb == nil {
				continue
			}
			st := store.NewSQL(sqdb, cfg.DBDriver)
			n, err := st.CleanupIdleBefore(ctx, now.Add(-cfg.SessionMaxAge()))
			if err != nil {
				log.Printf("session_cleanup_failed error=%v", err)
				continue
			}
			if n > 0 {
				log.Printf("session_cleanup removed=%d", n)
			}
		}
	}
}
