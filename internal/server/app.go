// Package server wires configuration, storage and the auth service together
// and runs the HTTP and gRPC transports until the process is signalled.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dmitrijs2005/tokenkeeper/internal/logging"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/config"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/httpapi"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/services"

	gs "github.com/dmitrijs2005/tokenkeeper/internal/server/grpc"
)

// runner is a transport that serves until its context is cancelled.
type runner interface {
	Run(ctx context.Context) error
}

type App struct {
	config      *config.Config
	logger      logging.Logger
	db          *sql.DB
	authService *services.AuthService
}

// NewApp opens the database, applies migrations and builds the auth service.
// Logs are written to w.
func NewApp(ctx context.Context, c *config.Config, w io.Writer) (*App, error) {
	logger, err := logging.New(c.LogFormat, c.LogLevel, w)
	if err != nil {
		return nil, fmt.Errorf("logger init error: %w", err)
	}

	db, err := repomanager.Open(ctx, c.DatabaseDriver, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm, err := repomanager.NewRepositoryManager(c.DatabaseDriver)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	if err := rm.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	as, err := services.NewAuthService(db, rm, c)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("auth service init error: %w", err)
	}

	return &App{config: c, logger: logger, db: db, authService: as}, nil
}

func (app *App) initSignalHandler(ctx context.Context, cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		defer signal.Stop(sigs)
		select {
		case s := <-sigs:
			app.logger.Info(context.Background(), "Received signal", "signal", s.String())
			cancelFunc()
		case <-ctx.Done():
		}
	}()
}

func (app *App) transports() map[string]runner {
	router := httpapi.NewRouter(app.authService, app.logger, app.config.CORSAllowedOrigins)
	return map[string]runner{
		"http": httpapi.NewHTTPServer(app.config.EndpointAddrHTTP, app.logger, router),
		"grpc": gs.NewGRPCServer(app.config.EndpointAddrGRPC, app.logger, app.authService),
	}
}

// Run serves both transports until ctx is cancelled, a signal arrives or
// one of them fails. The first transport error is returned.
func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(ctx, cancelFunc)

	var (
		wg       sync.WaitGroup
		once     sync.Once
		firstErr error
	)

	for name, r := range app.transports() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := r.Run(ctx); err != nil {
				app.logger.Error(ctx, "transport failed", "transport", name, "error", err.Error())
				once.Do(func() { firstErr = fmt.Errorf("%s: %w", name, err) })
				cancelFunc()
			}
		}()
	}

	wg.Wait()
	app.logger.Info(context.Background(), "App stopped")

	return firstErr
}

func (app *App) Close() error {
	return app.db.Close()
}
