// Package server wires the configured stores into the lifecycle API and the
// cleanup worker, and runs them until a termination signal arrives.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/securedrop/internal/logging"
	"github.com/dmitrijs2005/securedrop/internal/server/alerting"
	"github.com/dmitrijs2005/securedrop/internal/server/blobstore"
	"github.com/dmitrijs2005/securedrop/internal/server/capability"
	"github.com/dmitrijs2005/securedrop/internal/server/cleanup"
	"github.com/dmitrijs2005/securedrop/internal/server/config"
	"github.com/dmitrijs2005/securedrop/internal/server/httpapi"
	"github.com/dmitrijs2005/securedrop/internal/server/repositories/memory"
	"github.com/dmitrijs2005/securedrop/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/securedrop/internal/server/services"
	"github.com/dmitrijs2005/securedrop/internal/timex"

	gs "github.com/dmitrijs2005/securedrop/internal/server/grpc"
)

const shutdownTimeout = 10 * time.Second

// ErrDetachedWorker is returned by RunWorker when the blob store lives in
// another process's memory.
var ErrDetachedWorker = errors.New("memory blob backend cannot be served by a separate worker process; use the embedded worker")

type App struct {
	config *config.Config
	logger logging.Logger
	repos  repomanager.RepositoryManager
	blobs  blobstore.Store
	signer *capability.Signer
	shares *services.ShareService

	// httpAddr is set once the HTTP listener is bound.
	httpAddr chan string
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger, err := logging.New(c.LogBackend, c.LogLevel, os.Stdout)
	if err != nil {
		return nil, fmt.Errorf("logger init error: %w", err)
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if backend := processLocalBackend(c); backend != "" && !c.EmbeddedWorker {
		logger.Warn(ctx, "process-local backend requires the embedded worker, enabling it", "backend", backend)
		c.EmbeddedWorker = true
	}

	repos, err := newRepositoryManager(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	if err := repos.RunMigrations(ctx); err != nil {
		_ = repos.Close()
		return nil, fmt.Errorf("migrations error: %w", err)
	}

	signer := capability.NewSigner([]byte(c.CapabilitySecret), c.PublicBaseURL)
	blobs, err := newBlobStore(ctx, c, signer)
	if err != nil {
		_ = repos.Close()
		return nil, fmt.Errorf("blob store init error: %w", err)
	}

	return &App{
		config:   c,
		logger:   logger,
		repos:    repos,
		blobs:    blobs,
		signer:   signer,
		shares:   services.NewShareService(repos, blobs, c, logger),
		httpAddr: make(chan string, 1),
	}, nil
}

// processLocalBackend names the first configured backend whose state lives
// only in this process, or returns "". A separate worker process would see
// an empty copy of it: an empty feed, or a blob store without the blobs.
func processLocalBackend(c *config.Config) string {
	switch {
	case c.MetadataBackend == config.MetadataMemory:
		return "metadata:" + c.MetadataBackend
	case c.BlobBackend == config.BlobMemory:
		return "blob:" + c.BlobBackend
	default:
		return ""
	}
}

func newRepositoryManager(ctx context.Context, c *config.Config) (repomanager.RepositoryManager, error) {
	switch c.MetadataBackend {
	case config.MetadataMemory:
		return repomanager.NewMemoryRepositoryManager(memory.NewStore()), nil
	default:
		return repomanager.NewPostgresRepositoryManager(ctx, c.DatabaseDSN)
	}
}

func newBlobStore(ctx context.Context, c *config.Config, issuer blobstore.Issuer) (blobstore.Store, error) {
	switch c.BlobBackend {
	case config.BlobMemory:
		return blobstore.NewMemoryStore(issuer), nil
	case config.BlobFilesystem:
		return blobstore.NewFilesystemStore(c.BlobRoot, issuer)
	default:
		return blobstore.NewS3Store(ctx, blobstore.S3Options{
			Region:       c.S3Region,
			AccessKey:    c.S3RootUser,
			SecretKey:    c.S3RootPassword,
			BaseEndpoint: c.S3BaseEndpoint,
			Bucket:       c.S3Bucket,
		})
	}
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) router() http.Handler {
	h := httpapi.NewHandler(app.shares, app.config, app.repos.Ping, app.logger)

	var proxy http.Handler
	if opener, ok := app.blobs.(blobstore.Opener); ok {
		proxy = httpapi.NewBlobProxy(app.signer, opener, app.logger)
	}
	return httpapi.NewRouter(h, proxy, app.logger)
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	srv := &http.Server{
		Handler:           app.router(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	listen, err := net.Listen("tcp", app.config.EndpointAddrHTTP)
	if err != nil {
		app.logger.Error(ctx, "http listen failed", "error", err)
		cancelFunc()
		return
	}
	app.httpAddr <- listen.Addr().String()

	go func() {
		<-ctx.Done()
		app.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	app.logger.Info(ctx, "Starting HTTP server", "address", listen.Addr().String())
	if err := srv.Serve(listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
		app.logger.Error(ctx, "http server failed", "error", err)
		cancelFunc()
	}
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc, service string) {
	s := gs.NewGRPCServer(app.config.EndpointAddrGRPC, service, app.logger, app.repos.Ping, app.config.CleanupPollInterval)
	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) startCleanup(ctx context.Context, wg *sync.WaitGroup) {
	worker := cleanup.NewWorker(app.repos.Events(), app.blobs, alerting.NewLogAlerter(app.logger), app.config, app.logger)
	reaper := cleanup.NewReaper(app.repos.Shares(), app.blobs, app.config, app.logger, timex.RealClock{})

	reaper.Start(ctx)

	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = worker.Run(ctx)
		reaper.Stop()
	}()
}

// RunServer serves the HTTP API, plus the cleanup worker when it is
// embedded, until ctx is cancelled or a signal arrives.
func (app *App) RunServer(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...", "metadata", app.config.MetadataBackend, "blobs", app.config.BlobBackend)

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	if app.config.EmbeddedWorker {
		app.startCleanup(ctx, &wg)
	}

	wg.Wait()
	app.close(ctx)
}

// RunWorker runs the cleanup worker, the reaper and the gRPC health
// endpoint until ctx is cancelled or a signal arrives.
func (app *App) RunWorker(ctx context.Context) error {
	if app.config.BlobBackend == config.BlobMemory && app.config.MetadataBackend != config.MetadataMemory {
		// the feed is shared but the blobs are not: every event would be
		// acked against an empty store
		return ErrDetachedWorker
	}

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting worker...", "metadata", app.config.MetadataBackend, "blobs", app.config.BlobBackend)

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startGRPCServer(ctx, cancelFunc, "securedrop.cleanup")
	}()

	app.startCleanup(ctx, &wg)

	wg.Wait()
	app.close(ctx)
	return nil
}

func (app *App) close(ctx context.Context) {
	if err := app.repos.Close(); err != nil {
		app.logger.Error(ctx, "close metadata store", "error", err)
	}
}
