package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/boltdb/bolt"
	"github.com/julienschmidt/httprouter"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// startupTimeout bounds the connection to the storage servers at boot.
const startupTimeout = 30 * time.Second

// mirrorPopTimeout is how long the mirror consumer blocks on an empty queue
// before checking whether it was asked to stop.
const mirrorPopTimeout = time.Second

type AppProvider interface {
	Run() error
	Serve() func() error
	Stop(context.Context, context.Context) func() error
}

type App struct {
	logger         *zap.Logger
	config         *Config
	server         *http.Server
	cleanups       []func() error
	queueConsumers []func(context.Context) error
}

// NewApp provides an instance of App.
func NewApp() (AppProvider, error) {
	config, err := LoadAndInitConfigs(GitCommit, GitTag, BuildTime)
	if err != nil {
		return nil, fmt.Errorf("failed to setup app configuration: %s", err)
	}

	// ensure the logs folder exists and Setup the logging module.
	if err = os.MkdirAll(config.LogFolder, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create logging folder: %s", err)
	}
	clock := NewClock(config.IsProduction)
	logWriter := NewRSyncWriter(config, clock)
	logger, flusher := SetupLogging(config, logWriter, NewTickClock(clock))

	app := &App{
		logger: logger,
		config: config,
	}

	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()

	storage, cache, queue, err := app.setupInfra(ctx)
	if err != nil {
		app.Clean()
		_ = flusher()
		_ = logWriter.Close()
		return nil, err
	}
	app.cleanups = append(app.cleanups, flusher, logWriter.Close)

	idsHandler := NewIDsHandler()
	bookService := NewBookService(logger, config, clock, idsHandler, storage, cache, queue)
	apiService := NewAPIHandler(
		logger,
		config,
		&Statistics{
			version:   config.GitTag,
			container: IsAppRunningInDocker(),
			started:   clock.Now(),
			runtime:   runtime.Version(),
			platform:  runtime.GOOS + "/" + runtime.GOARCH,
		},
		clock,
		idsHandler,
		bookService,
	)

	// Use git commit in case the tag is not set.
	if config.GitTag == "" {
		apiService.stats.version = config.GitCommit
	}

	// Build the map of middlewares stacks.
	middlewaresPublic, middlewaresOps := apiService.MiddlewaresStacks()

	// Configure the endpoints with their handlers and middlewares.
	router := apiService.SetupRoutes(httprouter.New(),
		&MiddlewareMap{
			public: middlewaresPublic.Chain,
			ops:    middlewaresOps.Chain,
		},
	)
	// Wrap the router with the default http timeout handler.
	routerWithTimeout := http.TimeoutHandler(
		router,
		config.Server.RequestTimeout,
		"Timeout. Processing taking too long. Please reach out to support.")

	// Build the api server definition.
	app.server = &http.Server{
		Addr:           fmt.Sprintf("%s:%s", config.Server.Host, config.Server.Port),
		Handler:        routerWithTimeout,
		ReadTimeout:    config.Server.ReadTimeout,
		WriteTimeout:   config.Server.WriteTimeout,
		MaxHeaderBytes: 1 << 20, // Max headers size : 1MB
	}

	return app, nil
}

// setupInfra connects to the servers required by the configuration then builds the
// primary storage, the optional cache and the optional mirror queue with its consumer.
// Every opened client is registered for closing during the App cleanup as soon as
// it is opened. The App owns the redis and bolt clients so the storages built on
// them are not closed on their own.
func (app *App) setupInfra(ctx context.Context) (BookStorage, BookCacher, Queuer, error) {
	config, logger := app.config, app.logger

	var redisClient *redis.Client
	if config.NeedsRedis() {
		client, err := GetRedisClient(config)
		if err != nil {
			_ = client.Close()
			return nil, nil, nil, fmt.Errorf("failed to connect to redis server: %s", err)
		}
		redisClient = client
		app.cleanups = append(app.cleanups, redisClient.Close)
	}

	var boltClient *bolt.DB
	if config.NeedsBolt() {
		client, err := GetBoltDBClient(config)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to connect to boltDB server: %s", err)
		}
		boltClient = client
		app.cleanups = append(app.cleanups, boltClient.Close)
	}

	var storage BookStorage
	switch config.Storage.Engine {
	case EngineRedis:
		storage = NewRedisBookStorage(logger, redisClient, config.Redis.TxMaxRetries)
	case EngineBolt:
		storage = NewBoltBookStorage(logger, &config.BoltDB, boltClient)
	case EnginePostgres:
		pool, err := GetPostgresPool(ctx, config)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to connect to postgres server: %s", err)
		}
		storage = NewPostgresBookStorage(logger, pool)
		app.cleanups = append(app.cleanups, storage.Close)
	}

	var cache BookCacher
	if config.Cache.Enable {
		cache = NewRedisBookCache(redisClient, config.Cache.Prefix, config.Cache.TTL)
		// entries may be left from a previous run against another storage state.
		if err := cache.Purge(ctx); err != nil {
			logger.Warn("failed to purge books cache at startup", zap.Error(err))
		}
	}

	var queue Queuer
	if config.Mirror.Enable {
		queue = NewRedisQueue(redisClient, MirrorQueue, mirrorPopTimeout)
		mirror := NewBoltBookMirror(logger, &config.BoltDB, boltClient)
		consumer := NewBoltDBConsumer(logger, queue, mirror)
		app.queueConsumers = append(app.queueConsumers, consumer.Consume)
	}

	return storage, cache, queue, nil
}

// Run starts the api web server and a goroutine which is responsible to stop it.
func (app *App) Run() error {
	defer app.Clean()
	nCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(nCtx)

	g.Go(app.ConsumeQueues(gCtx, g))
	g.Go(app.Serve())
	g.Go(app.Stop(nCtx, gCtx))

	err := g.Wait()
	app.logger.Info("api server stopped",
		zap.String("app.host", app.config.Server.Host),
		zap.String("app.port", app.config.Server.Port),
		zap.Error(err),
	)
	return err
}

// Clean calls all registered cleanups functions in reverse order of registration.
func (app *App) Clean() {
	for i := len(app.cleanups) - 1; i >= 0; i-- {
		if err := app.cleanups[i](); err != nil {
			fmt.Fprintln(os.Stderr, "error during app cleanup:", err)
		}
	}
}

// Serve starts the api web server. It returned error
// will be caught by the errorgroup.
func (app *App) Serve() func() error {
	return func() error {
		app.logger.Info("api server starting",
			zap.String("app.host", app.config.Server.Host),
			zap.String("app.port", app.config.Server.Port),
			zap.String("app.storage", app.config.Storage.Engine),
			zap.Bool("app.cache", app.config.Cache.Enable),
			zap.Bool("app.mirror", app.config.Mirror.Enable),
		)
		err := app.server.ListenAndServe()
		if err == http.ErrServerClosed {
			err = nil
		}
		return err
	}
}

// Stop listens for the group context and triggers the server graceful shutdown.
// It states the reason of its call. We proceed with a brutal shutdown if the
// the graceful did not complete successfully. We explicitly return `nil` to
// allow the errorgroup catches only the `Serve` method result.
func (app *App) Stop(nCtx, gCtx context.Context) func() error {
	return func() error {
		<-gCtx.Done()

		if nCtx.Err() != nil {
			app.logger.Info("api server stopping. reason: requested to stop")
		} else {
			app.logger.Info("api server stopping. reason: errored at running")
		}

		sCtx, cancel := context.WithTimeout(context.Background(), app.config.Server.ShutdownTimeout)
		defer cancel()
		err := app.server.Shutdown(sCtx)
		switch err {
		case nil, http.ErrServerClosed:
			app.logger.Info("api server graceful shutdown succeeded")
		case context.DeadlineExceeded:
			app.logger.Info("api server graceful shutdown timed out")
		default:
			app.logger.Info("api server graceful shutdown failed", zap.Error(err))
		}

		if err != nil && err != http.ErrServerClosed {
			app.logger.Info("api server going to force shutdown", zap.Error(app.server.Close()))
		}
		return nil
	}
}

// ConsumeQueues runs all queue consumers into separate controlled goroutines.
func (app *App) ConsumeQueues(gCtx context.Context, g *errgroup.Group) func() error {
	return func() error {
		for _, consume := range app.queueConsumers {
			consume := consume
			g.Go(func() error {
				return consume(gCtx)
			})
		}
		return nil
	}
}
