package web

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"gogreen/config"
	dbt "gogreen/db/db"
	"gogreen/db/doc"
	"gogreen/db/mem"
	"gogreen/db/pg"
	"gogreen/db/rds"
	"gogreen/identity"
	"gogreen/ledger"
	"gogreen/mq/gcppubsub"
	"gogreen/mq/goch"
	"gogreen/mq/mq"
	rabbitMQ "gogreen/mq/rabbit"
	"gogreen/routing"
	"gogreen/users"
)

// NewStore opens the repository selected by cfg.Mode.
func NewStore(ctx context.Context, cfg config.StoreConfig) (dbt.GreenDBWrapper, error) {
	switch dbt.Mode(cfg.Mode) {
	case dbt.ModeMemory:
		log.Println("Using in-memory store")
		return mem.NewInMemoryGreenDBWrapper(), nil
	case dbt.ModePostgres:
		gormDB, err := pg.InitPostgresGORM(pg.CreateDSN(cfg.PostgresDSN))
		if err != nil {
			return nil, err
		}
		log.Println("Using PostgreSQL store")
		return pg.NewGORMGreenDBWrapper(gormDB), nil
	case dbt.ModeRedis:
		client, err := rds.ConnectRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, err
		}
		log.Printf("Using Redis store at %s", cfg.RedisAddr)
		return rds.NewRedisGreenDBWrapper(client), nil
	case dbt.ModeMongo:
		client, err := doc.ConnectMongo(ctx, cfg.MongoURI)
		if err != nil {
			return nil, err
		}
		if err := doc.EnsureIndexes(ctx, client.Database(cfg.MongoDatabase)); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, err
		}
		log.Printf("Using MongoDB store, database %s", cfg.MongoDatabase)
		return doc.NewMongoGreenDBWrapper(client, cfg.MongoDatabase), nil
	default:
		return nil, fmt.Errorf("unknown store mode %q", cfg.Mode)
	}
}

// NewQueue opens the score event queue selected by cfg.Mode.
func NewQueue(ctx context.Context, cfg config.MQConfig) (mq.ScoreMessageQueueWrapper, error) {
	switch mq.Mode(cfg.Mode) {
	case mq.ModeGoChan:
		log.Println("Using Go channels for message queue")
		return goch.NewGoChanScoreMessageQueueWrapper(cfg.BufferSize), nil
	case mq.ModeRabbitMQ:
		conn, err := rabbitMQ.NewRabbitConnection(rabbitMQ.CreateAmqpURL(cfg.RabbitURL))
		if err != nil {
			return nil, err
		}
		log.Println("Using RabbitMQ for message queue")
		return rabbitMQ.NewRabbitScoreMessageQueueWrapper(conn)
	case mq.ModeGCPPubSub:
		projectID, err := gcppubsub.GetGCPProjectID(cfg.GCPProjectID)
		if err != nil {
			return nil, err
		}
		log.Printf("Using GCP Pub/Sub for message queue, project %s", projectID)
		return gcppubsub.NewGCPScoreMessageQueueWrapper(ctx, projectID)
	default:
		return nil, fmt.Errorf("unknown message queue mode %q", cfg.Mode)
	}
}

// App holds the services behind the HTTP surface.
type App struct {
	// ctx is done once the server shuts down
	ctx        context.Context
	cfg        *config.Config
	store      dbt.GreenDBWrapper
	queue      mq.ScoreMessageQueueWrapper
	ledger     *ledger.Ledger
	reconciler *ledger.Reconciler
	users      *users.Service
	board      *users.Leaderboard
	planner    *routing.Planner
	deriver    identity.Deriver
	jwtSecret  string
}

// NewApp wires the services on top of an opened store and queue.
func NewApp(cfg *config.Config, store dbt.GreenDBWrapper, queue mq.ScoreMessageQueueWrapper) (*App, error) {
	deriver, err := identity.NewNamespaceDeriver(cfg.Identity.Namespace, cfg.Identity.Version)
	if err != nil {
		return nil, err
	}

	secret := cfg.Auth.JWTSecret
	if secret == "" {
		return nil, errors.New("auth.jwt_secret is required")
	}

	l := ledger.New(store, queue, ledger.Config{
		EnsureUser: cfg.Ledger.EnsureUser,
		Timeout:    cfg.Store.Timeout,
	})
	return &App{
		ctx:        context.Background(),
		cfg:        cfg,
		store:      store,
		queue:      queue,
		ledger:     l,
		reconciler: ledger.NewReconciler(l, queue, cfg.Ledger.ReconcileMaxRetries, cfg.Ledger.ReconcileBaseDelay).
			WithWorkers(cfg.Ledger.ReconcileWorkers),
		users:      users.NewService(store, deriver, cfg.Store.Timeout),
		board:      users.NewLeaderboard(store, cfg.Leaderboard.CacheSize, cfg.Leaderboard.CacheTTL, cfg.Store.Timeout),
		planner:    routing.NewPlanner(routing.NewTomTomClient(cfg.Routing.TomTomKey, cfg.Routing.BaseURL, cfg.Routing.Timeout)),
		deriver:    deriver,
		jwtSecret:  secret,
	}, nil
}

// Start runs the background workers until ctx is done. Open websocket
// streams close with ctx as well.
func (app *App) Start(ctx context.Context) {
	app.ctx = ctx
	go app.reconciler.Run(ctx)
	app.board.Watch(ctx, app.queue)
}

// Router builds the gin engine with every route registered.
func (app *App) Router() *gin.Engine {
	if !app.cfg.Dev {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	setupMiddlewares(r, app.cfg)

	h := &Handler{app: app}
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	api.Use(AuthMiddleware(app.jwtSecret, app.deriver, false))
	api.Use(UserDataLoaderInjectionMiddleware(app.store))
	{
		api.POST("/users/sync", h.SyncUser)
		api.GET("/users/me", h.GetMe)
		api.GET("/users/:id", h.GetUser)
		api.GET("/users/:id/routes", h.ListUserRoutes)

		api.POST("/routes", h.SaveRoute)
		api.GET("/routes/history", h.RouteHistory)
		api.GET("/routes/recent", h.RecentRoutes)
		api.POST("/routes/plan", h.PlanRoute)

		api.POST("/score/quote", h.QuoteScore)
		api.GET("/leaderboard", h.Leaderboard)
	}

	ws := r.Group("/ws")
	ws.Use(AuthMiddleware(app.jwtSecret, app.deriver, true))
	ws.GET("/scores/:id", h.ScoreStream)
	return r
}

// Serve opens the configured backends and serves until SIGINT or SIGTERM.
func Serve(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := NewStore(ctx, cfg.Store)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Printf("Error closing store: %v", err)
		}
	}()

	queue, err := NewQueue(ctx, cfg.MQ)
	if err != nil {
		return fmt.Errorf("failed to open message queue: %w", err)
	}
	defer queue.Close()

	app, err := NewApp(cfg, store, queue)
	if err != nil {
		return err
	}
	app.Start(ctx)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           app.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Printf("Listening on :%s", cfg.Port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Println("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
