package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lakupos/terminal/internal/cache"
	"lakupos/terminal/internal/checkout"
	"lakupos/terminal/internal/config"
	"lakupos/terminal/internal/domain"
	"lakupos/terminal/internal/localstore"
	"lakupos/terminal/internal/localstore/memory"
	"lakupos/terminal/internal/localstore/sqlite"
	"lakupos/terminal/internal/netmon"
	"lakupos/terminal/internal/remote"
	"lakupos/terminal/internal/session"
	"lakupos/terminal/internal/syncer"
)

func main() {
	cfg := config.Load()
	closers := make([]func() error, 0, 2)

	var local localstore.Store
	if cfg.DataPath != "" {
		db, err := sqlite.Open(cfg.DataPath)
		if err != nil {
			log.Fatalf("local store unavailable at %s: %v", cfg.DataPath, err)
		}
		local = db
		closers = append(closers, db.Close)
		log.Printf("local store: sqlite (%s)", cfg.DataPath)
	} else {
		local = memory.New()
		log.Println("local store: in-memory (set DATA_PATH for durable offline sales)")
	}

	var tokens remote.TokenSource
	switch {
	case cfg.RemoteToken != "":
		tokens = remote.StaticTokenSource(cfg.RemoteToken)
	case cfg.RemoteUsername != "":
		tokens = remote.NewLoginTokenSource(cfg.RemoteBaseURL, cfg.RemoteUsername, cfg.RemotePassword, cfg.RemoteTimeout())
	default:
		log.Println("remote: no credentials configured, requests go out unauthenticated")
	}
	remoteClient := remote.NewHTTPClient(cfg.RemoteBaseURL, tokens, cfg.RemoteTimeout())

	startCtx, cancelStart := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelStart()

	catalogCache := cache.CatalogCache(cache.NoopCatalogCache{})
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisCatalogCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(startCtx); err != nil {
			log.Printf("redis unavailable (%v), using noop catalog cache", err)
		} else {
			catalogCache = redisCache
			closers = append(closers, redisCache.Close)
			log.Println("catalog cache: redis")
		}
	} else {
		log.Println("catalog cache: noop")
	}

	monitor := netmon.New(remoteClient.Ping(startCtx) == nil)
	coordinator := syncer.New(remoteClient, local, monitor, catalogCache,
		cfg.ProfileName, "catalog:"+cfg.StoreID, cfg.CatalogTTL())
	processor := checkout.New(remoteClient, local, cfg.StoreID, cfg.TerminalID)

	search := func(ctx context.Context, term string) ([]domain.Customer, error) {
		return remote.SearchCustomers(ctx, remoteClient, term)
	}
	sess := session.New(local, monitor, processor, coordinator, cfg.ProfileName, search)

	if err := sess.Initialize(startCtx); err != nil {
		log.Fatalf("session initialize failed: %v", err)
	}
	log.Printf("terminal %s ready (store=%s profile=%s online=%t)",
		cfg.TerminalID, cfg.StoreID, cfg.ProfileName, monitor.Online())

	runCtx, cancelRun := context.WithCancel(context.Background())
	go monitor.Run(runCtx, cfg.ProbeInterval(), remoteClient.Ping)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	cancelRun()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 8*time.Second)
	defer cancelShutdown()

	if err := sess.Close(shutdownCtx); err != nil {
		log.Printf("session close error: %v", err)
	}
	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Printf("close error: %v", err)
		}
	}

	log.Println("terminal stopped")
}
