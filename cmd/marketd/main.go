package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	appagent "agent-marketplace/internal/app/agent"
	"agent-marketplace/internal/chain"
	"agent-marketplace/internal/config"
	"agent-marketplace/internal/indexer"
	"agent-marketplace/internal/logging"
	"agent-marketplace/internal/market"
	"agent-marketplace/internal/notify"
	"agent-marketplace/internal/store"
	httptransport "agent-marketplace/internal/transport/http"

	"github.com/rs/zerolog/log"
	flag "github.com/spf13/pflag"
)

func main() {
	migrateOnly := flag.Bool("migrate-only", false, "apply database migrations and exit")
	skipMigrate := flag.Bool("skip-migrate", false, "start without applying migrations")
	noIndexer := flag.Bool("no-indexer", false, "do not poll the contract for events")
	flag.Parse()

	cfg, err := config.LoadApp()
	if err != nil {
		logging.Init(config.LogConfig{Level: "info"})
		log.Fatal().Err(err).Msg("load config failed")
	}
	logging.Init(cfg.Log)

	st, err := store.New(cfg.Server.PostgresDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("store init failed")
	}
	defer st.Close()
	if err := st.Ping(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("db ping failed")
	}

	if !*skipMigrate || *migrateOnly {
		if err := st.Migrate(context.Background()); err != nil {
			log.Fatal().Err(err).Msg("migrate failed")
		}
	}
	if *migrateOnly {
		log.Info().Msg("migrations applied; exiting")
		return
	}

	hub := notify.NewHub(notify.DefaultQueueSize)
	machine := market.NewMachine(st, hub)

	var (
		rpc        *chain.Client
		reputation appagent.ReputationSource
	)
	if cfg.Indexer.Enabled() {
		rpc = chain.NewClient(cfg.Indexer)
		reputation = rpc
	} else {
		log.Warn().Msg("CONTRACT_ADDRESS not set; chain indexing and reputation sync disabled")
	}

	var poller *indexer.Poller
	pollCtx, cancelPoll := context.WithCancel(context.Background())
	defer cancelPoll()
	if rpc != nil && !*noIndexer {
		poller = indexer.NewPoller(rpc, st, machine, cfg.Indexer)
		if err := poller.Start(pollCtx); err != nil {
			log.Fatal().Err(err).Msg("indexer start failed")
		}
	}

	server := newServer(cfg.Server, httptransport.Deps{
		Repo:       st,
		Machine:    machine,
		Hub:        hub,
		Reputation: reputation,
		Config:     cfg.Server,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Server.HTTPAddr).Bool("ws", cfg.Server.WSEnabled).Bool("indexer", poller != nil).Msg("http listening")
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server stopped")
		}
	case <-ctx.Done():
		log.Info().Msg("shutdown requested")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	shutdown(shutdownCtx, server, poller, cancelPoll)
	log.Info().Msg("stopped")
}

// newServer mounts the router behind an http.Server. Shutdown drops every
// stream subscriber, since streams only end when that happens.
func newServer(cfg config.ServerConfig, deps httptransport.Deps) *http.Server {
	router := httptransport.NewRouter(deps)
	httptransport.LogRoutes(router)

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	server.RegisterOnShutdown(deps.Hub.CloseAll)
	return server
}

// shutdown stops the indexer, then the HTTP server. A tick still running when
// ctx expires is cancelled through cancelPoll.
func shutdown(ctx context.Context, server *http.Server, poller *indexer.Poller, cancelPoll context.CancelFunc) {
	if poller != nil {
		poller.Stop()
		select {
		case <-poller.Done():
		case <-ctx.Done():
			log.Warn().Msg("indexer tick still running at shutdown; cancelling")
			cancelPoll()
		}
	}
	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("http shutdown failed")
	}
}
