// The agent is a headless device-side daemon: it runs the coordinator against
// the rendezvous backend, holds the push feed open, and polls as a safety net
// for dropped pushes.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"pulse-link-backend/internal/config"
	"pulse-link-backend/internal/coord"
	"pulse-link-backend/internal/models"
	"pulse-link-backend/internal/store"
)

const (
	pollInterval     = 30 * time.Second
	reconnectBackoff = 5 * time.Second
)

func main() {
	configFile := flag.String("config", "config.yaml", "path to the config file")
	newCode := flag.Bool("new-code", false, "generate a pairing code on startup and log it")
	pairCode := flag.String("pair", "", "redeem a partner's pairing code on startup")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	setupLogger(cfg.Log.Level)

	if cfg.Agent.ServerURL == "" || cfg.Agent.DeviceID == "" || cfg.Agent.Token == "" {
		log.Fatal().Msg("agent.server_url, agent.device_id and agent.token are required")
	}

	st := store.NewHTTPStore(cfg.Agent.ServerURL, cfg.Agent.Token)

	var persist coord.Persister
	if cfg.Agent.StateFile != "" {
		persist = coord.NewStateFile(cfg.Agent.StateFile)
	}

	c, err := coord.New(coord.Options{
		Store:     st,
		Identity:  coord.StaticIdentity(cfg.Agent.DeviceID),
		Persister: persist,
		OnChange: func(s coord.State) {
			log.Debug().
				Str("phase", s.Phase.String()).
				Bool("near_partner", s.IsNearPartner).
				Bool("incoming_voice", s.HasIncomingVoice).
				Str("last_error", s.LastError).
				Msg("state changed")
		},
		Logger: log.Logger,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create coordinator")
	}
	defer c.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	switch {
	case *newCode:
		code, err := c.GeneratePairingCode(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to generate pairing code")
		}
		log.Info().Str("code", code).Msg("share this code with your partner")
	case *pairCode != "":
		if err := c.EnterPairingCode(ctx, *pairCode); err != nil {
			log.Fatal().Err(err).Msg("Failed to redeem pairing code")
		}
		log.Info().Str("partner_id", c.State().PartnerID).Msg("paired")
	}

	go runPushFeed(ctx, cfg.Agent.ServerURL, cfg.Agent.Token, c)
	go runPollLoop(ctx, c)

	log.Info().Str("device_id", cfg.Agent.DeviceID).Msg("Agent started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Agent exiting")
}

// runPushFeed keeps a websocket open to the backend and routes every payload
// into the coordinator. Reconnects forever with a flat backoff.
func runPushFeed(ctx context.Context, serverURL, token string, c *coord.Coordinator) {
	feedURL, err := pushFeedURL(serverURL, token)
	if err != nil {
		log.Error().Err(err).Msg("invalid server URL; push feed disabled")
		return
	}

	for {
		if ctx.Err() != nil {
			return
		}

		conn, _, err := websocket.DefaultDialer.DialContext(ctx, feedURL, nil)
		if err != nil {
			log.Warn().Err(err).Msg("push feed connect failed")
			sleepCtx(ctx, reconnectBackoff)
			continue
		}
		log.Info().Msg("push feed connected")

		readFeed(ctx, conn, c)
		conn.Close()
		sleepCtx(ctx, reconnectBackoff)
	}
}

func readFeed(ctx context.Context, conn *websocket.Conn, c *coord.Coordinator) {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				log.Warn().Err(err).Msg("push feed closed")
			}
			return
		}

		var payload models.PushPayload
		if err := json.Unmarshal(data, &payload); err != nil {
			log.Warn().Err(err).Msg("undecodable push payload")
			continue
		}
		c.HandlePush(ctx, payload)
	}
}

// runPollLoop re-fetches authoritative state on a timer, covering pushes that
// never arrived.
func runPollLoop(ctx context.Context, c *coord.Coordinator) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if err := c.CheckForHeartbeats(ctx); err != nil && !errors.Is(err, coord.ErrNotPaired) {
			log.Warn().Err(err).Msg("heartbeat poll failed")
		}
		if err := c.CheckForIncomingMessages(ctx); err != nil && !errors.Is(err, coord.ErrNotPaired) {
			log.Warn().Err(err).Msg("voice poll failed")
		}
		if c.State().PresenceEnabled {
			if err := c.FetchPartnerLocation(ctx); err != nil && !errors.Is(err, coord.ErrNotPaired) {
				log.Warn().Err(err).Msg("location poll failed")
			}
		}
	}
}

func pushFeedURL(serverURL, token string) (string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// setupLogger configures zerolog logger
func setupLogger(level string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
