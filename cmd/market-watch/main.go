// Command market-watch subscribes to the marketplace notification stream and
// prints every event it receives.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"agent-marketplace/internal/config"
	"agent-marketplace/internal/logging"
	"agent-marketplace/internal/notify"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/sethvargo/go-retry"
	flag "github.com/spf13/pflag"
)

func main() {
	url := flag.String("url", "", "websocket url (overrides WS_URL)")
	raw := flag.Bool("raw", false, "print frames exactly as received")
	flag.Parse()

	logCfg, err := config.LoadLog()
	if err != nil {
		panic(err)
	}
	logCfg.Pretty = true
	logging.Init(logCfg)

	cfg, err := config.LoadWatch()
	if err != nil {
		log.Fatal().Err(err).Msg("load watch config failed")
	}
	if *url != "" {
		cfg.WSURL = *url
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backoff := retry.WithCappedDuration(30*time.Second, retry.NewExponential(time.Second))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := watch(ctx, cfg, *raw)
		if err == nil || ctx.Err() != nil {
			return nil
		}
		log.Warn().Err(err).Str("url", cfg.WSURL).Msg("stream lost; reconnecting")
		return retry.RetryableError(err)
	})
	if err != nil && ctx.Err() == nil {
		log.Fatal().Err(err).Msg("watch failed")
	}
}

func watch(ctx context.Context, cfg config.WatchConfig, raw bool) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, cfg.WSURL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()
	log.Info().Str("url", cfg.WSURL).Msg("connected")

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(cfg.PingInterval)
		defer ticker.Stop()
		ping, _ := json.Marshal(notify.Message{Type: notify.Ping})
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
				_ = conn.Close()
				return
			case <-ticker.C:
				if err := conn.WriteMessage(websocket.TextMessage, ping); err != nil {
					return
				}
			}
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if raw {
			fmt.Println(string(data))
			continue
		}
		var msg struct {
			Type      notify.Kind     `json:"type"`
			Data      json.RawMessage `json:"data"`
			Message   string          `json:"message"`
			Timestamp int64           `json:"timestamp"`
		}
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Warn().Err(err).Msg("undecodable frame")
			continue
		}
		if msg.Type == notify.Pong {
			continue
		}
		at := time.UnixMilli(msg.Timestamp).Format(time.RFC3339)
		switch {
		case msg.Message != "":
			fmt.Printf("%s %-20s %s\n", at, msg.Type, msg.Message)
		default:
			fmt.Printf("%s %-20s %s\n", at, msg.Type, summarize(msg.Data))
		}
	}
}

// summarize picks the identifying fields out of an entity snapshot.
func summarize(data json.RawMessage) string {
	var v map[string]any
	if err := json.Unmarshal(data, &v); err != nil {
		return string(data)
	}
	out := ""
	for _, k := range []string{"listingId", "agentId", "status", "title", "buyer", "price", "reputation"} {
		if val, ok := v[k]; ok && val != "" && val != nil {
			out += fmt.Sprintf("%s=%v ", k, val)
		}
	}
	return out
}
