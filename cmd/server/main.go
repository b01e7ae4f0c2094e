package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/example/aura-storefront/internal/checkout"
	"github.com/example/aura-storefront/internal/checkoutflow"
	"github.com/example/aura-storefront/internal/config"
	"github.com/example/aura-storefront/internal/database"
	"github.com/example/aura-storefront/internal/handlers"
	"github.com/example/aura-storefront/internal/routes"
	"github.com/example/aura-storefront/internal/services"
	"github.com/example/aura-storefront/internal/session"
	"github.com/example/aura-storefront/internal/storage"
)

func main() {
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger()

	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore := openStorage(ctx, cfg)
	defer closeStore()

	api, err := services.NewAPIClient(cfg.APIBaseURL, cfg.APITimeout)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid API_BASE_URL")
	}
	orders := services.NewOrderService(api)
	account := services.NewAccountService(api)

	var notifier checkoutflow.OrderNotifier
	if cfg.TelegramBotToken != "" && cfg.TelegramAdminChat != "" {
		notifier = services.NewTelegramService(cfg.TelegramBotToken, cfg.TelegramAdminChat)
	}

	registry := session.NewRegistry(session.Deps{
		Storage:   store,
		CartAPI:   services.NewCartService(api),
		Orders:    orders,
		Discounts: account,
		Checkout: checkoutflow.Options{
			SettleDelay: cfg.CheckoutSettleDelay,
			Notifier:    notifier,
			Rates: checkout.Rates{
				TaxRate:               cfg.TaxRate,
				StandardShippingFee:   cfg.StandardShippingFee,
				ExpressShippingFee:    cfg.ExpressShippingFee,
				FreeShippingThreshold: cfg.FreeShippingThreshold,
			},
		},
		IdleAfter: cfg.SessionIdle,
	})
	go registry.Run(ctx, time.Minute)

	app := fiber.New(fiber.Config{
		AppName:      "Aura Storefront",
		ErrorHandler: handlers.ErrorHandler,
	})

	app.Use(recover.New())
	app.Use(logger.New())

	routes.Register(app, cfg, registry, routes.Services{Orders: orders, Account: account})

	go func() {
		<-ctx.Done()
		log.Info().Msg("shutting down")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Error().Err(err).Msg("shutdown failed")
		}
	}()

	log.Info().Str("port", cfg.AppPort).Str("storage", cfg.StorageDriver).Msg("starting server")
	if err := app.Listen(":" + cfg.AppPort); err != nil {
		log.Fatal().Err(err).Msg("fiber.Listen error")
	}
}

// openStorage picks the guest cart backend from STORAGE_DRIVER.
func openStorage(ctx context.Context, cfg *config.Config) (storage.Storage, func()) {
	switch cfg.StorageDriver {
	case "postgres":
		db, err := database.Connect(cfg.DatabaseURL)
		if err != nil {
			log.Fatal().Err(err).Msg("database connection failed")
		}
		st := storage.NewGormStorage(db, cfg.GuestCartTTL)
		go purgeExpired(ctx, st)
		return st, func() {
			if sqlDB, err := db.DB(); err == nil {
				_ = sqlDB.Close()
			}
		}
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		if err := client.Ping(ctx).Err(); err != nil {
			log.Fatal().Err(err).Str("addr", cfg.RedisAddr).Msg("redis connection failed")
		}
		return storage.NewRedisStorage(client, cfg.GuestCartTTL), func() { _ = client.Close() }
	case "", "memory":
		log.Warn().Msg("guest carts are kept in memory and lost on restart")
		return storage.NewMemoryStorage(cfg.GuestCartTTL), func() {}
	default:
		log.Fatal().Str("driver", cfg.StorageDriver).Msg("unknown STORAGE_DRIVER")
		return nil, nil
	}
}

func purgeExpired(ctx context.Context, st *storage.GormStorage) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := st.PurgeExpired(ctx)
			if err != nil {
				log.Warn().Err(err).Msg("guest cart purge failed")
				continue
			}
			if n > 0 {
				log.Info().Int64("removed", n).Msg("purged expired guest carts")
			}
		}
	}
}
