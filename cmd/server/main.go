// Command server runs the workflow orchestration core: the queue worker
// pool that executes node jobs, the recurring-job poll tick, the zombie
// sweeper, and the HTTP/WebSocket surface that accepts inbound triggers
// and serves execution status/progress. Grounded on the teacher's
// cmd/server/main.go wiring order (load config, build logger, connect
// storage/cache, construct application services, mount HTTP routes,
// start background loops, wait for signal, graceful shutdown).
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/flowforge/core/internal/cache"
	"github.com/flowforge/core/internal/checkpoint"
	"github.com/flowforge/core/internal/component"
	"github.com/flowforge/core/internal/config"
	"github.com/flowforge/core/internal/eventbus"
	"github.com/flowforge/core/internal/graphcache"
	"github.com/flowforge/core/internal/httpapi"
	"github.com/flowforge/core/internal/llmprovider"
	"github.com/flowforge/core/internal/logger"
	"github.com/flowforge/core/internal/observerapi"
	"github.com/flowforge/core/internal/orchestrator"
	"github.com/flowforge/core/internal/queue"
	"github.com/flowforge/core/internal/scheduler"
	"github.com/flowforge/core/internal/spawn"
	"github.com/flowforge/core/internal/storage"
	"github.com/flowforge/core/internal/tools"
	"github.com/flowforge/core/internal/trigger"
)

const topologyCacheTTL = 5 * time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load configuration: %v", err)
	}

	appLogger := logger.New(cfg.Logging)
	logger.SetDefault(appLogger)
	appLogger.Info("starting flowcore server")

	db, err := connectDatabase(cfg.Database)
	if err != nil {
		appLogger.Error("connect database failed", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	migrator, err := storage.NewMigrator(db, storage.MigrationFS())
	if err != nil {
		appLogger.Error("build migrator failed", "error", err)
		os.Exit(1)
	}
	ctx := context.Background()
	if err := migrator.Init(ctx); err != nil {
		appLogger.Error("init migration tables failed", "error", err)
		os.Exit(1)
	}
	if err := migrator.Up(ctx); err != nil {
		appLogger.Error("apply migrations failed", "error", err)
		os.Exit(1)
	}

	redisCache, err := cache.NewRedisCache(cfg.Redis)
	if err != nil {
		appLogger.Error("connect redis failed", "error", err)
		os.Exit(1)
	}
	defer redisCache.Close()

	workflows := storage.NewBunWorkflowRepository(db)
	executions := storage.NewBunExecutionRepository(db)
	logs := storage.NewBunExecutionLogRepository(db)
	pendingTasks := storage.NewBunPendingTaskRepository(db)
	scheduledJobs := storage.NewBunScheduledJobRepository(db)
	states := storage.NewBunStateRepository(db)

	topologies := graphcache.New(topologyCacheTTL)
	bus := eventbus.New(redisCache.Client())
	wsHub := eventbus.NewWebSocketHub()
	if err := bus.Subscribe(wsHub); err != nil {
		appLogger.Error("subscribe websocket hub failed", "error", err)
		os.Exit(1)
	}
	q := queue.New(redisCache.Client())
	spawner := spawn.New(executions, workflows, q)
	resolver := trigger.New(workflows)

	registry := component.NewRegistry()
	provider := llmprovider.New(os.Getenv("FLOWCORE_OPENAI_API_KEY"), os.Getenv("FLOWCORE_OPENAI_BASE_URL"))
	toolRegistry := tools.NewRegistry(tools.Dependencies{})
	toolResolver := tools.Resolver(workflows, toolRegistry)
	checkpoints := checkpoint.NewRedisStore(redisCache.Client(), 0)
	if err := component.RegisterDefaults(registry, component.AgentFactory{
		Provider:     provider,
		ToolResolver: toolResolver,
		Checkpoints:  checkpoints,
	}, component.CategorizerFactory{Classifier: provider}); err != nil {
		appLogger.Error("register default components failed", "error", err)
		os.Exit(1)
	}

	orch := orchestrator.New(orchestrator.Deps{
		Workflows:    workflows,
		Executions:   executions,
		Logs:         logs,
		PendingTasks: pendingTasks,
		States:       states,
		Redis:        redisCache,
		Topologies:   topologies,
		Components:   registry,
		Queue:        q,
		Bus:          bus,
		Spawner:      spawner,
		Resolver:     resolver,
		ZombieConfig: cfg.Zombie,
	})

	sched, err := scheduler.New(scheduledJobs, q, "@every "+cfg.Scheduler.PollInterval.String())
	if err != nil {
		appLogger.Error("build scheduler failed", "error", err)
		os.Exit(1)
	}

	pool := queue.NewWorkerPool(q, cfg.Queue.PollInterval, queue.QueueWorkflows, queue.QueueScheduled)
	orch.RegisterHandlers(pool)
	pool.Handle(queue.FuncExecuteScheduledJobTask, func(ctx context.Context, raw json.RawMessage) error {
		var args scheduler.ExecuteArgs
		if err := json.Unmarshal(raw, &args); err != nil {
			return fmt.Errorf("decode execute_scheduled_job_task args: %w", err)
		}
		return sched.ExecuteFire(ctx, args, orch)
	})

	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	pool.Start(workerCtx, cfg.Queue.WorkerCount)
	sched.Start()
	orch.StartZombieSweeper(workerCtx)

	engine := gin.New()
	engine.Use(gin.Recovery())
	if cfg.Server.CORS {
		engine.Use(corsMiddleware(cfg.Server.CORSAllowedOrigins))
	}
	engine.GET("/healthz", func(c *gin.Context) {
		if err := redisCache.Health(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	httpapi.New(orch, executions, appLogger, cfg.Auth.JWTSecret).Register(engine)
	observerapi.New(wsHub, appLogger).Register(engine)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      engine,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		appLogger.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Error("http server failed", "error", err)
			os.Exit(1)
		}
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	<-shutdown
	appLogger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("http server shutdown failed", "error", err)
	}

	sched.Stop()
	cancelWorkers()
	pool.Stop()
}

func connectDatabase(cfg config.DatabaseConfig) (*bun.DB, error) {
	connector := pgdriver.NewConnector(
		pgdriver.WithDSN(cfg.URL),
		pgdriver.WithTimeout(5*time.Second),
	)
	sqldb := sql.OpenDB(connector)
	sqldb.SetMaxOpenConns(cfg.MaxConnections)
	sqldb.SetMaxIdleConns(cfg.MinConnections)
	sqldb.SetConnMaxIdleTime(cfg.MaxIdleTime)
	sqldb.SetConnMaxLifetime(cfg.MaxConnLifetime)

	db := bun.NewDB(sqldb, pgdialect.New())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin != "" && (len(allowed) == 0 || allowed[origin]) {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

