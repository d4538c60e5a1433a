package main

import (
	"context"
	"fmt"
	"group-cart/catalog"
	"group-cart/domain"
	"group-cart/infrastructure/grpc/server"
	"group-cart/infrastructure/httpapi"
	"group-cart/internal"
	"group-cart/moderation"
	"group-cart/observability"
	"group-cart/runtime"
	"group-cart/runtime/workers"
	"group-cart/search"
	"group-cart/services"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/database"
	grpc2 "github.com/mama165/sdk-go/grpc"
	"github.com/mama165/sdk-go/logs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Exit codes to provide meaningful status to the operating system or service manager (e.g., systemd).
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Group cart terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run wires every component, serves until a signal arrives, and lets the deferred
// cleanups (search index, store) run before the exit code is returned.
func run() (int, error) {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	if err := config.Validate(); err != nil {
		return exitConfig, err
	}
	logger := logs.GetLoggerFromString(config.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Storage
	opened, err := openStore(ctx, config, logger)
	if err != nil {
		return exitRuntime, err
	}
	defer opened.close()
	store := opened.store

	if config.ProductsFile != "" {
		products, err := catalog.Load(config.ProductsFile)
		if err != nil {
			return exitConfig, err
		}
		if err = catalog.Seed(ctx, store, products, logger); err != nil {
			return exitRuntime, err
		}
	}

	if opened.badger != nil && logger.Enabled(ctx, slog.LevelDebug) {
		url := fmt.Sprintf("http://localhost:%d/inspect", config.DebugPort)
		logger.Info("Debug Badger inspector available", "url", url)
		database.StartDebugServer(opened.badger, config.DebugPort, "/inspect", StoreMapper)
	}

	// 3. Optional moderation and search. Both stay untyped nil when disabled.
	var censor services.Censor
	if config.CensoredWordsDir != "" {
		moderator, err := buildModerator(config, logger)
		if err != nil {
			return exitConfig, err
		}
		censor = moderator
	}

	var index services.MessageIndex
	if !config.DisableSearch {
		searchIndex, err := search.Open(config.SearchIndexPath, logger)
		if err != nil {
			return exitRuntime, err
		}
		defer func() {
			logger.Info("Closing search index...")
			_ = searchIndex.Close()
		}()
		indexed, err := searchIndex.Rebuild(ctx, store)
		if err != nil {
			return exitRuntime, err
		}
		if indexed > 0 {
			logger.Info("Search index rebuilt from stored history", "messages", indexed)
		}
		index = searchIndex
	}

	// 4. Event core
	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := observability.NewMetrics(promRegistry)

	registry := runtime.NewRegistry()
	broadcaster := runtime.NewBroadcaster(logger, registry, metrics)
	router := runtime.NewRouter(logger, registry, broadcaster, metrics, config.EventRate, config.EventBurst)

	members := services.NewMemberService(logger, registry, broadcaster, store, store)
	cart := services.NewCartService(logger, registry, broadcaster, store, store, store)
	service := services.NewService(logger, broadcaster, domain.GroupID(config.DefaultGroupID),
		services.NewChatService(logger, store, broadcaster, index, censor, config.MaxContentLength),
		members,
		cart,
		services.NewInviteService(config.InviteBaseURL, broadcaster),
	)
	service.Register(router)
	gateway := runtime.NewGateway(logger, registry, router, service, metrics, config.OutboxSize, config.WriteTimeout)

	// 5. Transports
	httpServer := &http.Server{
		Addr: config.HTTPAddress(),
		Handler: httpapi.NewRouter(httpapi.RouterDeps{
			Log:            logger,
			Members:        members,
			Products:       cart,
			Gateway:        gateway,
			Gatherer:       promRegistry,
			MaxFrameSize:   config.MaxFrameSize,
			AllowedOrigins: config.Origins(),
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	grpcServer := grpc.NewServer(
		grpc.MaxRecvMsgSize(int(config.MaxFrameSize)),
		grpc.ChainUnaryInterceptor(grpc2.UnaryLoggingInterceptor(logger)),
		grpc.ChainStreamInterceptor(server.StreamLoggingInterceptor(logger)),
	)
	server.RegisterEventStreamServer(grpcServer, server.NewStreamServer(logger, gateway))
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	// 6. Supervision
	sup := workers.NewSupervisor(logger).WithRestartDelay(config.RestartInterval)
	sup.Add(
		workers.NewHTTPServer(logger, httpServer, config.ShutdownTimeout),
		workers.NewGRPCServer(logger, grpcServer, config.GRPCAddress(), config.ShutdownTimeout),
		workers.NewMaintenance(logger, "store", config.MaintenanceCron, store.Maintain),
		workers.NewReporter(logger, registry, config.ReportInterval),
	)

	logger.Info("Group cart starting",
		"http", config.HTTPAddress(),
		"grpc", config.GRPCAddress(),
		"store", config.StoreDriver,
		"search", index != nil,
		"moderation", censor != nil,
		"default_group", config.DefaultGroupID)

	// 7. Block until a signal stops every worker
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	sup.Run(ctx)
	healthServer.Shutdown()

	logger.Info("Program stopped cleanly", "connections_left", registry.Count())
	return exitOK, nil
}

func buildModerator(config internal.Config, logger *slog.Logger) (*moderation.Moderator, error) {
	charReplacement, err := internal.CharacterRune(config.CharReplacement)
	if err != nil {
		return nil, err
	}
	data, err := moderation.NewCensoredLoader(os.DirFS(config.CensoredWordsDir)).LoadAll(".")
	if err != nil {
		return nil, fmt.Errorf("failed to load censored words: %w", err)
	}
	logger.Info("Censored words loaded", "count", len(data.Words), "languages", data.Languages)
	return moderation.NewModerator(data.Words, charReplacement, logger)
}
