package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "orders",
		Short: "Weather guaranteed orders service",
		// Sem subcomando sobe o servidor
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(reconcileCmd())
	rootCmd.AddCommand(passCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and the hourly reconciliation",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func reconcileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile [order-id]",
		Short: "Verify one order now, ignoring the schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, cleanup, err := newApp(cmd.Context(), LoadConfig())
			if err != nil {
				return err
			}
			defer cleanup()

			order, err := a.reconciler.ReconcileOrder(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(order)
		},
	}
}

func passCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pass",
		Short: "Run a single reconciliation pass and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, cleanup, err := newApp(cmd.Context(), LoadConfig())
			if err != nil {
				return err
			}
			defer cleanup()

			summary, err := a.reconciler.RunPass(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(summary)
		},
	}
}

// app agrupa as dependências montadas do serviço
type app struct {
	cfg        Config
	orders     *OrderUseCase
	reconciler *Reconciler
}

func newApp(ctx context.Context, cfg Config) (*app, func(), error) {
	// Initialize OpenTelemetry
	tp, err := initTracer(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize tracer: %w", err)
	}
	mp, err := initMetrics(cfg)
	if err != nil {
		_ = tp.Shutdown(context.Background())
		return nil, nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}

	// Initialize database
	pool, err := initDB(ctx, cfg.Database)
	if err != nil {
		_ = mp.Shutdown(context.Background())
		_ = tp.Shutdown(context.Background())
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	cleanup := func() {
		pool.Close()
		if err := mp.Shutdown(context.Background()); err != nil {
			log.Printf("Error shutting down meter provider: %v", err)
		}
		if err := tp.Shutdown(context.Background()); err != nil {
			log.Printf("Error shutting down tracer: %v", err)
		}
	}

	// Setup repositories and use cases
	clock := NewSystemClock()
	orderRepository := NewPostgresOrderRepository(pool)
	settlement := NewHoldsClient(cfg.PaymentsServiceURL, cfg.ExternalCallTimeout)
	forecast := NewOpenWeatherClient(cfg.OpenWeatherBaseURL, cfg.OpenWeatherAPIKey, cfg.ExternalCallTimeout)

	var intake IntakeOrchestrator
	if cfg.DTMServer != "" {
		log.Printf("🔀 Order intake via DTM SAGA (%s)", cfg.DTMServer)
		intake = NewDTMSagaIntake(cfg.DTMServer, cfg.ServiceURL, cfg.PaymentsServiceURL)
	} else {
		log.Printf("➡️  Order intake without coordinator (DTM_SERVER not set)")
		intake = NewDirectIntake(settlement, orderRepository)
	}

	return &app{
		cfg:        cfg,
		orders:     NewOrderUseCase(orderRepository, intake, settlement, clock, cfg.IntakeConfig()),
		reconciler: NewReconciler(orderRepository, forecast, settlement, NewLogAlerter(), clock, cfg.ReconcilerConfig()),
	}, cleanup, nil
}

func runServe(ctx context.Context) error {
	cfg := LoadConfig()
	a, cleanup, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	// Setup Gin router
	r := gin.New()
	r.Use(gin.Logger())
	r.Use(gin.RecoveryWithWriter(gin.DefaultWriter, func(c *gin.Context, recovered interface{}) {
		log.Printf("🚨 PANIC RECOVERED: %v", recovered)
		c.AbortWithStatus(http.StatusInternalServerError)
	}))
	r.Use(otelgin.Middleware(cfg.ServiceName))

	registerRoutes(r, a.orders, a.reconciler, cfg.IntakeConfig().DefaultConditions)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  30 * time.Second,
	}

	schedulerDone := make(chan struct{})
	go func() {
		defer close(schedulerDone)
		NewScheduler(a.reconciler, cfg.ReconcileInterval, cfg.RunPassOnStart).Run(ctx)
	}()

	serverErr := make(chan error, 1)
	go func() {
		log.Printf("🚀 Orders Service listening on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		log.Printf("🛑 Shutting down...")
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Error shutting down HTTP server: %v", err)
	}

	// Espera a passada em andamento terminar
	select {
	case <-schedulerDone:
	case <-shutdownCtx.Done():
		log.Printf("⚠️  Reconciliation pass still running at shutdown deadline")
	}
	return nil
}

func initDB(ctx context.Context, dbCfg DatabaseConfig) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(dbCfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = 30 * time.Minute
	config.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Wait for database to be ready
	for i := 0; i < 30; i++ {
		if err := pool.Ping(ctx); err == nil {
			log.Println("✅ Connected to orders database with connection pool")
			if err := applyMigrations(ctx, pool); err != nil {
				pool.Close()
				return nil, err
			}
			return pool, nil
		}
		log.Printf("⏳ Waiting for database... (%d/30)", i+1)
		select {
		case <-ctx.Done():
			pool.Close()
			return nil, ctx.Err()
		case <-time.After(1 * time.Second):
		}
	}

	pool.Close()
	return nil, fmt.Errorf("failed to connect to database after 30 attempts")
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
