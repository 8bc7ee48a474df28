package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/oatsaysai/collect-in-telegram/internal/admin"
	"github.com/oatsaysai/collect-in-telegram/internal/config"
	"github.com/oatsaysai/collect-in-telegram/internal/db"
	"github.com/oatsaysai/collect-in-telegram/internal/metrics"
	"github.com/oatsaysai/collect-in-telegram/internal/pool"
	"github.com/oatsaysai/collect-in-telegram/internal/store"
	"github.com/oatsaysai/collect-in-telegram/internal/telegram"
	"github.com/oatsaysai/collect-in-telegram/internal/user"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgPool, err := db.Connect(ctx, cfg.PostgreSQL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pgPool.Close()

	if err := db.Migrate(ctx, pgPool); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	mtr := metrics.New()
	userSvc := user.NewService(store.NewUsers(pgPool))
	poolSvc := pool.NewService(store.NewPools(pgPool), cfg.App.Currency)

	bot, err := telegram.New(cfg.Telegram, userSvc, poolSvc, mtr, cfg.App.PageSize)
	if err != nil {
		log.Fatalf("Failed to create Telegram bot: %v", err)
	}

	var adminSrv *admin.Server
	if cfg.Admin.Enabled {
		adminSrv = admin.NewServer(cfg.Admin, store.NewStats(pgPool), mtr)
		adminSrv.Start()
	}

	if err := bot.Run(ctx, cfg.WebhookPathOrDefault()); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("Bot stopped: %v", err)
	}

	if adminSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := adminSrv.Shutdown(shutdownCtx); err != nil {
			log.Printf("Admin server shutdown: %v", err)
		}
	}
	log.Println("Shutdown complete")
}
