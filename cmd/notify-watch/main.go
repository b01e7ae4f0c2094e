// Command notify-watch connects to the notification socket with a bearer
// token and logs every event it receives.
package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/example/aura-storefront/internal/config"
	"github.com/example/aura-storefront/internal/notifications"
)

func main() {
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).With().Timestamp().Logger()

	cfg := config.Load()
	url := flag.String("url", cfg.WSURL, "notification socket URL")
	token := flag.String("token", os.Getenv("NOTIFY_TOKEN"), "bearer token (defaults to NOTIFY_TOKEN)")
	topic := flag.String("topic", "", "extra topic to subscribe to")
	flag.Parse()

	if *token == "" {
		log.Fatal().Msg("a token is required, pass -token or set NOTIFY_TOKEN")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		client     *notifications.Client
		subscribed bool
	)
	client = notifications.New(notifications.Options{
		URL:       *url,
		Token:     *token,
		Heartbeat: cfg.HeartbeatInterval,
		OnEvent: func(ev notifications.Event) {
			log.Info().
				Str("event", ev.Name).
				RawJSON("data", orEmpty(ev.Data)).
				Int("unread", client.UnreadCount()).
				Msg("received")
			if ev.Name == notifications.EventList && *topic != "" && !subscribed {
				subscribed = client.Subscribe(*topic)
			}
		},
	})

	err := client.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal().Err(err).Msg("notification socket stopped")
	}
}

func orEmpty(raw []byte) []byte {
	if len(raw) == 0 {
		return []byte("null")
	}
	return raw
}
