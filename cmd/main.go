package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/keepalive"

	"github.com/cwrk-planet/lofi-relay/config"
	"github.com/cwrk-planet/lofi-relay/internal/badgerdb"
	"github.com/cwrk-planet/lofi-relay/internal/hub"
	"github.com/cwrk-planet/lofi-relay/internal/postgres"
	"github.com/cwrk-planet/lofi-relay/internal/service"
	"github.com/cwrk-planet/lofi-relay/internal/session"
	grpcx "github.com/cwrk-planet/lofi-relay/internal/transport/grpc"
	httpx "github.com/cwrk-planet/lofi-relay/internal/transport/http"
	"github.com/cwrk-planet/lofi-relay/internal/transport/ws"
	"github.com/cwrk-planet/lofi-relay/pkg/logger"
	"github.com/cwrk-planet/lofi-relay/pkg/tracing"
)

func main() {
	// --- config ---
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger.Init(logger.Config{
		Env:       logger.ParseEnv(cfg.Logging.Env),
		Service:   cfg.Logging.Service,
		Version:   cfg.Logging.Version,
		Backend:   logger.Backend(cfg.Logging.Backend),
		Level:     logger.ParseLevel(cfg.Logging.Level),
		AddSource: cfg.Logging.AddSource,
		Debug:     cfg.Logging.Debug,
	})
	slog.Info("starting lofi-relay",
		"env", cfg.Logging.Env, "version", cfg.Logging.Version, "storage", cfg.Storage.Driver)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("lofi-relay stopped with error", "err", err)
		os.Exit(1)
	}
	slog.Info("stopped")
}

func run(ctx context.Context, cfg *config.Config) error {
	// --- tracing ---
	shutdownTracing, err := tracing.Setup(ctx, tracing.Config{
		Endpoint:    cfg.Tracing.Endpoint,
		ServiceName: cfg.Logging.Service,
		Version:     cfg.Logging.Version,
		SampleRatio: cfg.Tracing.SampleRatio,
	})
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer func() {
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shCtx); err != nil {
			slog.Warn("tracing shutdown", "err", err)
		}
	}()

	// --- storage ---
	store, err := openStorage(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.close(); err != nil {
			slog.Warn("storage close", "err", err)
		}
	}()

	// --- hub & services ---
	reg := hub.NewRegistry()
	bc := hub.NewBroadcaster(reg)

	roomSvc := service.NewRoomService(store.rooms, reg)
	chatSvc := service.NewChatService(store.chats)
	chatSvc.SetHistoryLimits(cfg.Chat.HistoryLimit, cfg.Chat.MaxHistoryLimit)
	presenceSvc := service.NewPresenceService(reg)

	ctrl := session.New(reg, bc, chatSvc,
		session.WithMaxMessageLength(cfg.Chat.MaxMessageLength),
		session.WithRequirePersistence(cfg.Chat.RequirePersistence),
	)

	// --- HTTP + WS ---
	wsServer := ws.NewServer(ctrl, ws.Options{
		PingInterval: cfg.Chat.PingInterval,
		WriteTimeout: cfg.Chat.WriteTimeout,
		OutboxSize:   cfg.Chat.OutboundQueue,
	})
	handler := httpx.NewHandler(roomSvc, chatSvc, presenceSvc, bc)
	router := httpx.NewRouter(handler, wsServer.HandleWS, httpx.RouterConfig{
		AllowedOrigins: cfg.CORS.AllowedOrigins,
	})
	httpSrv := httpx.NewServer(httpx.ServerConfig{
		Addr:            cfg.HTTP.Addr,
		ReadTimeout:     cfg.HTTP.ReadTimeout,
		WriteTimeout:    cfg.HTTP.WriteTimeout,
		IdleTimeout:     cfg.HTTP.IdleTimeout,
		ShutdownTimeout: cfg.HTTP.ShutdownTimeout,
	}, router)

	// --- gRPC ---
	var (
		grpcServer *grpc.Server
		grpcLis    net.Listener
	)
	if cfg.GRPC.Addr != "" {
		grpcServer = grpc.NewServer(
			grpc.StatsHandler(otelgrpc.NewServerHandler()),
			grpc.ChainUnaryInterceptor(grpcx.UnaryServerInterceptor(10*time.Second)),
			grpc.ChainStreamInterceptor(grpcx.StreamServerInterceptor()),
			grpc.KeepaliveParams(keepalive.ServerParameters{
				Time:    cfg.Chat.PingInterval,
				Timeout: cfg.Chat.WriteTimeout,
			}),
		)
		grpcx.Register(grpcServer, grpcx.NewServer(ctrl, presenceSvc, cfg.Chat.OutboundQueue))

		grpcLis, err = net.Listen("tcp", cfg.GRPC.Addr)
		if err != nil {
			return fmt.Errorf("grpc listen: %w", err)
		}
	}

	// --- run servers ---
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("http listen", "addr", cfg.HTTP.Addr)
		return httpSrv.Run(gctx)
	})

	if grpcServer != nil {
		g.Go(func() error {
			slog.Info("grpc listen", "addr", cfg.GRPC.Addr)
			return grpcServer.Serve(grpcLis)
		})
		g.Go(func() error {
			<-gctx.Done()
			stopGRPC(grpcServer, cfg.HTTP.ShutdownTimeout)
			return nil
		})
	}

	// --- graceful shutdown ---
	g.Go(func() error {
		<-gctx.Done()
		closeSessions(reg, cfg.HTTP.ShutdownTimeout)
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

type storage struct {
	rooms service.RoomRepository
	chats service.ChatRepository
	close func() error
}

func openStorage(ctx context.Context, cfg *config.Config) (*storage, error) {
	switch cfg.Storage.Driver {
	case config.DriverPostgres:
		db, err := postgres.New(ctx, postgres.Config{
			DSN:               cfg.Postgres.DSN,
			MaxConns:          cfg.Postgres.MaxConns,
			MinConns:          cfg.Postgres.MinConns,
			MaxConnLifetime:   cfg.Postgres.MaxConnLifetime,
			MaxConnIdleTime:   cfg.Postgres.MaxConnIdleTime,
			HealthCheckPeriod: cfg.Postgres.HealthCheckPeriod,
			ApplicationName:   cfg.Postgres.ApplicationName,
		})
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		return &storage{
			rooms: postgres.NewRoomRepository(db.Pool),
			chats: postgres.NewChatRepository(db.Pool),
			close: db.Close,
		}, nil
	default:
		db, err := badgerdb.Open(badgerdb.Config{Path: cfg.Badger.Path, InMemory: cfg.Badger.InMemory})
		if err != nil {
			return nil, err
		}
		return &storage{
			rooms: badgerdb.NewRoomRepository(db),
			chats: badgerdb.NewChatRepository(db),
			close: db.Close,
		}, nil
	}
}

// closeSessions closes every live connection and waits for the sessions to
// deregister, so no message write outlives the storage.
func closeSessions(reg *hub.Registry, timeout time.Duration) {
	occupants := reg.All()
	for _, o := range occupants {
		if err := o.Conn.Close(); err != nil {
			slog.Debug("close session", "user", o.ID, "err", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := reg.WaitEmpty(ctx, 20*time.Millisecond); err != nil {
		slog.Warn("sessions did not drain", "left", reg.Len(), "err", err)
		return
	}
	slog.Info("sessions closed", "count", len(occupants))
}

func stopGRPC(s *grpc.Server, timeout time.Duration) {
	done := make(chan struct{})
	go func() {
		s.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		slog.Warn("grpc graceful stop timed out")
		s.Stop()
	}
}
