// Package server wires the rideauth server together: storage, token
// signing, SMS delivery, the event stream and the gRPC endpoint. It runs
// until the context is cancelled or a termination signal arrives.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dmitrijs2005/rideauth/internal/cryptox"
	"github.com/dmitrijs2005/rideauth/internal/logging"
	"github.com/dmitrijs2005/rideauth/internal/server/auth"
	"github.com/dmitrijs2005/rideauth/internal/server/config"
	"github.com/dmitrijs2005/rideauth/internal/server/events"
	"github.com/dmitrijs2005/rideauth/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/rideauth/internal/server/services"
	"github.com/dmitrijs2005/rideauth/internal/server/sms"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"

	gs "github.com/dmitrijs2005/rideauth/internal/server/grpc"
)

type App struct {
	config      *config.Config
	logger      logging.Logger
	db          *sql.DB
	redis       *redis.Client
	repomanager repomanager.RepositoryManager
	publisher   events.Publisher
	server      *gs.GRPCServer
}

func NewApp(c *config.Config) (*App, error) {
	logger := logging.New(c.LogLevel, os.Stdout)

	tokens, err := newTokenService(c)
	if err != nil {
		return nil, fmt.Errorf("token service init error: %w", err)
	}

	db, err := sql.Open("pgx", c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	app := &App{config: c, logger: logger, db: db}

	var opts []repomanager.Option
	if c.RedisAddr != "" {
		app.redis = redis.NewClient(&redis.Options{Addr: c.RedisAddr, Password: c.RedisPassword, DB: c.RedisDB})
		opts = append(opts, repomanager.WithRedis(app.redis, 3*c.VerificationCodeInterval, c.RefreshTokenValidityDuration))
	}
	app.repomanager = repomanager.NewPostgresRepositoryManager(opts...)

	app.publisher = events.NopPublisher{}
	if len(c.KafkaBrokers) > 0 {
		app.publisher = events.NewKafkaPublisher(c.KafkaBrokers, c.KafkaTopic, logger.With("module", "events"))
	}

	svc := services.NewAuthService(
		db,
		app.repomanager,
		auth.NewVerifier(c.VerificationCodeInterval),
		cryptox.NewPasswordHasher(cryptox.DefaultArgon2Params),
		tokens,
		sms.NewGatewayClient(c.SMSServiceURL, c.SMSTimeout, c.SMSMaxRetries),
		services.WithLogger(logger.With("module", "auth")),
		services.WithPublisher(app.publisher),
	)

	app.server = gs.NewGRPCServer(c.EndpointAddrGRPC, logger, svc, tokens)
	return app, nil
}

// newTokenService signs with RS256 when a private key is configured and
// falls back to HS256 with the shared secret otherwise.
func newTokenService(c *config.Config) (*auth.TokenService, error) {
	private, public, err := c.RSAKeys()
	switch {
	case err == nil:
		return auth.NewRSATokenService(private, public, c.AccessTokenValidityDuration, c.RefreshTokenValidityDuration)
	case errors.Is(err, config.ErrNoRSAKey):
		return auth.NewHMACTokenService([]byte(c.SecretKey), c.AccessTokenValidityDuration, c.RefreshTokenValidityDuration)
	default:
		return nil, err
	}
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) error {
	if err := app.server.Run(ctx); err != nil {
		app.logger.Error(ctx, "grpc server failed", "error", err)
		cancelFunc()
		return err
	}
	return nil
}

// Run migrates the schema and serves until ctx is cancelled.
func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()
	defer app.close()

	app.logger.Info(ctx, "Starting app...")

	if err := app.repomanager.RunMigrations(ctx, app.db); err != nil {
		return fmt.Errorf("migrations error: %w", err)
	}

	app.initSignalHandler(cancelFunc)

	var (
		wg     sync.WaitGroup
		runErr error
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		runErr = app.startGRPCServer(ctx, cancelFunc)
	}()

	wg.Wait()
	app.logger.Info(ctx, "App stopped")
	return runErr
}

func (app *App) close() {
	if err := app.publisher.Close(); err != nil {
		app.logger.Warn(context.Background(), "event publisher close failed", "error", err)
	}
	if app.redis != nil {
		_ = app.redis.Close()
	}
	_ = app.db.Close()
}
