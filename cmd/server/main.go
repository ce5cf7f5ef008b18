package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"

	pb "github.com/identra/be-hr-workflows/internal/api/workflowsv1"
	"github.com/identra/be-hr-workflows/internal/client"
	"github.com/identra/be-hr-workflows/internal/common/auth"
	"github.com/identra/be-hr-workflows/internal/common/config"
	"github.com/identra/be-hr-workflows/internal/common/database"
	"github.com/identra/be-hr-workflows/internal/common/logger"
	"github.com/identra/be-hr-workflows/internal/common/middleware"
	"github.com/identra/be-hr-workflows/internal/common/tracing"
	"github.com/identra/be-hr-workflows/internal/domain"
	"github.com/identra/be-hr-workflows/internal/handler"
	"github.com/identra/be-hr-workflows/internal/repository"
	"github.com/identra/be-hr-workflows/internal/repository/memory"
	"github.com/identra/be-hr-workflows/internal/resolver"
	"github.com/identra/be-hr-workflows/internal/service"
)

func main() {
	// Load configuration
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(logger.Config{
		Level:       cfg.Service.LogLevel,
		Environment: cfg.Service.Environment,
		ServiceName: cfg.Service.Name,
		Version:     cfg.Service.Version,
	})

	log.Info().
		Str("service", cfg.Service.Name).
		Str("version", cfg.Service.Version).
		Str("environment", cfg.Service.Environment).
		Msg("Starting HR Workflows Service")

	// Create context
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Tracing.Enabled {
		shutdownTracing, err := tracing.Init(cfg.Service.Name, cfg.Service.Version, nil)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize tracing")
		}
		defer func() { _ = shutdownTracing(context.Background()) }()
	}

	// Initialize stores
	var (
		templates service.TemplateStore
		requests  service.RequestStore
		health    handler.HealthFunc
	)
	switch cfg.Database.Driver {
	case "memory":
		templates = memory.NewTemplateStore()
		requests = memory.NewRequestStore()
		log.Warn().Msg("Using in-memory store; state is lost on restart")
	default:
		db, err := database.New(ctx, database.Config{
			Host:        cfg.Database.Host,
			Port:        cfg.Database.Port,
			User:        cfg.Database.User,
			Password:    cfg.Database.Password,
			Database:    cfg.Database.Database,
			SSLMode:     cfg.Database.SSLMode,
			MaxConns:    cfg.Database.MaxConns,
			MinConns:    cfg.Database.MinConns,
			MaxConnTime: cfg.Database.MaxConnTime,
			MaxIdleTime: cfg.Database.MaxIdleTime,
			HealthCheck: cfg.Database.HealthCheck,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to database")
		}
		defer db.Close()
		log.Info().Msg("Database connection established")

		if cfg.Database.AutoMigrate {
			if err := repository.Migrate(ctx, db); err != nil {
				log.Fatal().Err(err).Msg("Failed to apply migrations")
			}
			log.Info().Msg("Database migrations applied")
		}

		templates = repository.NewTemplateRepository(db)
		requests = repository.NewRequestRepository(db)
		health = db.Ping
	}

	// Initialize directory and approver resolution
	var dir resolver.Directory
	switch cfg.Directory.Driver {
	case "static":
		static, err := client.LoadStaticDirectory(cfg.Directory.StaticFile)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to load static directory")
		}
		dir = static
	default:
		dir = client.NewDirectoryClient(cfg.Directory.BaseURL, cfg.Directory.Timeout)
	}

	router, err := resolver.New(resolver.Config{
		DefaultPolicy: cfg.Resolver.DefaultPolicy,
		Policies:      cfg.Resolver.Policies,
		Fixed:         cfg.Resolver.Fixed,
		ManagerRole:   domain.RoleID(cfg.Resolver.ManagerRole),
	}, dir)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid resolver configuration")
	}
	res := resolver.WithCache(router, cfg.Resolver.CacheTTL)

	log.Info().
		Str("directory", cfg.Directory.Driver).
		Str("default_policy", cfg.Resolver.DefaultPolicy).
		Dur("cache_ttl", cfg.Resolver.CacheTTL).
		Msg("Approver resolution initialized")

	// Initialize notifications
	var notifier service.Notifier
	if cfg.NATS.Enabled {
		nc, js, err := client.ConnectJetStream(ctx, cfg.NATS.URL, cfg.NATS.Stream)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to NATS")
		}
		defer nc.Drain()
		notifier = client.NewNotificationPublisher(js, log.Component("notifications"))
		log.Info().Str("url", cfg.NATS.URL).Str("stream", cfg.NATS.Stream).Msg("Notification publisher initialized")
	}

	// Initialize services
	workflowService := service.NewWorkflowService(templates, requests, res, notifier, log)
	templateService := service.NewTemplateService(templates, log)

	// Setup HTTP routes
	httpHandler := handler.NewHTTPHandler(workflowService, templateService, health, log)

	// Apply middleware
	var h http.Handler = httpHandler.Routes()
	h = auth.HTTPMiddleware(h)
	h = middleware.RateLimit(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst)(h)
	h = middleware.Timeout(cfg.Server.RequestTimeout)(h)
	h = middleware.CORS([]string{"*"})(h)
	h = middleware.Recovery(&log.Logger)(h)
	h = middleware.Logger(&log.Logger)(h)
	h = middleware.RequestID(h)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      h,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("Starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("HTTP server failed")
		}
	}()

	// Start gRPC server
	grpcHandler := handler.NewGRPCHandler(workflowService, templateService, log.Logger)

	grpcServer := grpc.NewServer(grpc.UnaryInterceptor(auth.UnaryServerInterceptor))
	pb.RegisterWorkflowServiceServer(grpcServer, grpcHandler)
	reflection.Register(grpcServer)

	grpcListener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.GRPCPort))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create gRPC listener")
	}

	go func() {
		log.Info().Int("port", cfg.Server.GRPCPort).Msg("Starting gRPC server")
		if err := grpcServer.Serve(grpcListener); err != nil {
			log.Error().Err(err).Msg("gRPC server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	grpcServer.GracefulStop()

	log.Info().Msg("Server stopped")
}
