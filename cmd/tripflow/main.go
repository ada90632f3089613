// README: Entry point; loads config, wires the orchestrator, starts the realtime listener and the local bridge.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"tripflow/internal/config"
	httpbridge "tripflow/internal/http"
	"tripflow/internal/http/handlers"
	"tripflow/internal/infra"
	"tripflow/internal/maps"
	"tripflow/internal/modules/gateway"
	"tripflow/internal/modules/geo"
	"tripflow/internal/modules/journal"
	"tripflow/internal/modules/realtime"
	"tripflow/internal/modules/schedule"
	"tripflow/internal/modules/trip"
	"tripflow/internal/service"
)

func main() {
	configPath := flag.String("config", "", "path to tripflow.yaml")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.WithError(err).Fatal("load config")
	}
	logger, closeLog, err := infra.NewLogger(cfg.Log)
	if err != nil {
		logrus.WithError(err).Fatal("init logger")
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.WithError(err).Error("tripflow stopped")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *logrus.Logger) error {
	creds := credentials(cfg.Credentials)
	gw := gateway.NewClient(gateway.Config{
		BaseURL:     cfg.API.BaseURL,
		Timeout:     cfg.API.Timeout,
		Credentials: creds,
		Logger:      logger,
	})

	var router geo.Router = geo.StraightLine{}
	var geocoder handlers.Geocoder
	if cfg.Maps.APIKey != "" {
		rs, err := maps.NewRouteService(cfg.Maps.APIKey)
		if err != nil {
			return err
		}
		gc, err := maps.NewGeocoder(cfg.Maps.APIKey)
		if err != nil {
			return err
		}
		router, geocoder = rs, gc
	} else {
		logger.Warn("maps.api_key not set; using straight-line routes and no geocoding")
	}

	var rec journal.Recorder = journal.Nop{}
	if cfg.Journal.DSN != "" {
		db, err := infra.NewDB(ctx, cfg.Journal.DSN)
		if err != nil {
			return err
		}
		defer db.Close()
		store := journal.NewStore(db)
		if cfg.Journal.Migrate {
			if err := store.EnsureSchema(ctx); err != nil {
				return err
			}
		}
		rec = store
	}

	orch := service.New(service.Deps{
		Gateway: gw,
		Routes:  geo.NewAdapter(router),
		Journal: rec,
		Logger:  logger,
		Tick:    cfg.Schedule.Tick,
		Ladders: ladders(cfg.Schedule),
	})

	if _, err := orch.Load(ctx); err != nil {
		logger.WithError(err).Warn("initial load failed; starting idle")
	}

	g, ctx := errgroup.WithContext(ctx)

	if cfg.Realtime.Channel != config.ChannelNone {
		listener, closeChannel, err := newListener(ctx, cfg.Realtime, creds, orch, logger)
		if err != nil {
			return err
		}
		defer closeChannel()
		g.Go(func() error { return listener.Run(ctx) })
	}

	srv := &http.Server{
		Addr: cfg.Bridge.Addr,
		Handler: httpbridge.NewServer(httpbridge.ServerDeps{
			Trips:    orch,
			Geocoder: geocoder,
			Logger:   logger,
			Token:    cfg.Bridge.Token,
		}).Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	g.Go(func() error {
		logger.WithField("addr", cfg.Bridge.Addr).Info("bridge listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func credentials(cfg config.CredentialsConfig) gateway.CredentialSource {
	if cfg.Token != "" {
		return gateway.StaticToken(cfg.Token)
	}
	if cfg.File != "" {
		return gateway.FileCredentials{Path: cfg.File}
	}
	return gateway.StaticToken("")
}

func ladders(cfg config.ScheduleConfig) map[trip.Kind]schedule.Ladder {
	out := map[trip.Kind]schedule.Ladder{
		trip.KindRide:     schedule.RideLadder,
		trip.KindDelivery: schedule.DeliveryLadder,
	}
	if len(cfg.RideLadder) > 0 {
		out[trip.KindRide] = cfg.RideLadder
	}
	if len(cfg.DeliveryLadder) > 0 {
		out[trip.KindDelivery] = cfg.DeliveryLadder
	}
	return out
}

// newListener builds the configured push channel and routes its events into the orchestrator.
func newListener(ctx context.Context, cfg config.RealtimeConfig, creds gateway.CredentialSource, orch *service.Orchestrator, logger *logrus.Logger) (*realtime.Listener, func(), error) {
	token, err := creds.Token(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("realtime needs credentials: %w", err)
	}
	identity, err := gateway.Identity(token)
	if err != nil {
		return nil, nil, err
	}

	closeChannel := func() {}
	var channel realtime.Channel
	switch cfg.Channel {
	case config.ChannelWebsocket:
		channel = &realtime.WebsocketChannel{URL: cfg.WebsocketURL, Token: creds.Token}
	case config.ChannelRedis:
		client, err := infra.NewRedis(ctx, cfg.RedisAddr)
		if err != nil {
			return nil, nil, err
		}
		closeChannel = func() { _ = client.Close() }
		channel = &realtime.RedisChannel{Client: client, Prefix: cfg.RedisPrefix}
	case config.ChannelAMQP:
		channel = &realtime.AMQPChannel{URL: cfg.AMQPURL, Exchange: cfg.AMQPExchange, RoutingPrefix: cfg.RoutingPrefix}
	default:
		return nil, nil, fmt.Errorf("unknown realtime channel %q", cfg.Channel)
	}

	listener := realtime.NewListener(channel, realtime.Config{
		Identity:   identity,
		MinBackoff: cfg.MinBackoff,
		MaxBackoff: cfg.MaxBackoff,
		OnReconnect: func(ctx context.Context) {
			if err := orch.Resync(ctx); err != nil {
				logger.WithError(err).Warn("resync after reconnect failed")
			}
		},
		Logger: logger,
	})
	listener.Subscribe(func(ctx context.Context, ev trip.Event) {
		orch.ApplyRealtimeEvent(ctx, ev)
	})
	return listener, closeChannel, nil
}
