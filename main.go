package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/spf13/afero"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/example/image-picker/internal/auth"
	"github.com/example/image-picker/internal/config"
	"github.com/example/image-picker/internal/events"
	"github.com/example/image-picker/internal/handlers"
	"github.com/example/image-picker/internal/imagecodec"
	"github.com/example/image-picker/internal/logging"
	"github.com/example/image-picker/internal/permission"
	"github.com/example/image-picker/internal/repository"
	"github.com/example/image-picker/internal/scaler"
	"github.com/example/image-picker/internal/usecase"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	issueToken := flag.String("issue-token", "", "print a bearer token for the given host id and exit")
	flag.Parse()

	logger, err := logging.NewLogger()
	if err != nil {
		panic(err)
	}
	defer logger.Sync() //nolint:errcheck

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	verifier, err := auth.NewVerifier(cfg.Auth.Secret, cfg.Auth.Audience)
	if err != nil {
		logger.Fatal("invalid auth config", zap.Error(err))
	}
	if *issueToken != "" {
		token, err := verifier.Issue(*issueToken, 0)
		if err != nil {
			logger.Fatal("failed to issue token", zap.Error(err))
		}
		fmt.Println(token)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	var opts []usecase.Option
	deps := handlers.Dependencies{ReplyTimeout: cfg.Picker.ReplyTimeout, Logger: logger}

	if cfg.Database.DSN != "" {
		db := initDatabase(ctx, cfg.Database, logger)
		repo := repository.NewRequestRepository(db, logger)
		if err := repo.AutoMigrate(ctx); err != nil {
			logger.Fatal("auto migrate failed", zap.Error(err))
		}
		opts = append(opts, usecase.WithRepository(repo))
		deps.Logs = repo
		deps.Metrics = repo
	} else {
		logger.Info("database not configured; request audit log disabled")
	}

	if cfg.Redis.Addr != "" {
		redisCtx, redisCancel := context.WithTimeout(ctx, 5*time.Second)
		defer redisCancel()
		redisClient := initRedis(redisCtx, cfg.Redis.Addr, logger)
		defer redisClient.Close()

		status := usecase.NewStatusCache(usecase.NewRedisCache(redisClient), cfg.Redis.StatusTTL, logger)
		opts = append(opts, usecase.WithStatusCache(status))
		deps.Status = status
	} else {
		logger.Info("redis not configured; request status cache disabled")
	}

	var publisher interface {
		events.Publisher
		events.ForegroundReporter
	}
	switch cfg.Events.Driver {
	case config.DriverAMQP:
		amqpPublisher, err := events.DialAMQP(cfg.Events.URL, cfg.Events.Queue, logger)
		if err != nil {
			logger.Fatal("failed to connect to event broker", zap.Error(err))
		}
		defer amqpPublisher.Close()
		publisher = amqpPublisher
	default:
		broadcaster := events.NewBroadcaster()
		deps.Stream = broadcaster
		publisher = broadcaster
	}
	deps.Foreground = publisher

	launcher := events.NewLauncher(publisher)
	opts = append(opts, usecase.WithNotifier(launcher), usecase.WithFilesystem(afero.NewOsFs()))

	var gate permission.Gate = permission.Static{}
	if cfg.Platform.RuntimePermissions {
		registry := permission.NewRegistry(launcher, cfg.Platform.ExternalStorageGated)
		gate = registry
		deps.Permissions = registry
	}

	deps.Coordinator = usecase.NewRequestCoordinator(gate, launcher, scaler.New(imagecodec.JPEG{MaxPixels: cfg.Picker.MaxPixels}), logger, opts...)

	r := gin.Default()
	handlers.RegisterRoutes(r, deps, auth.JWTMiddleware(verifier))

	server := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: r,
	}

	logger.Info("image picker bridge listening",
		zap.String("addr", cfg.Server.Addr),
		zap.String("events_driver", cfg.Events.Driver),
		zap.Bool("runtime_permissions", cfg.Platform.RuntimePermissions),
	)
	if err := serveHTTPServer(server, cfg.Server.ShutdownTimeout, logger); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func initDatabase(ctx context.Context, cfg config.Database, zapLogger *zap.Logger) *gorm.DB {
	db, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Warn)})
	if err != nil {
		zapLogger.Fatal("failed to connect to database", zap.Error(err))
	}

	sqlDB, err := db.DB()
	if err != nil {
		zapLogger.Fatal("failed to access db handle", zap.Error(err))
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := sqlDB.PingContext(ctx); err != nil {
		zapLogger.Fatal("database ping failed", zap.Error(err))
	}

	return db
}

func initRedis(ctx context.Context, addr string, zapLogger *zap.Logger) *redis.Client {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		zapLogger.Fatal("redis connection failed", zap.Error(err))
	}
	return client
}

func serveHTTPServer(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger) error {
	return serveHTTPServerWithOptions(server, shutdownTimeout, logger, nil, nil)
}

func serveHTTPServerWithOptions(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger, listener net.Listener, signalCh <-chan os.Signal) error {
	errCh := make(chan error, 1)
	go func() {
		var err error
		if listener != nil {
			err = server.Serve(listener)
		} else {
			err = server.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	var (
		sigCh       <-chan os.Signal
		stopSignals func()
	)

	if signalCh != nil {
		sigCh = signalCh
		stopSignals = func() {}
	} else {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
		sigCh = ch
		stopSignals = func() {
			signal.Stop(ch)
		}
	}
	defer stopSignals()

	select {
	case err := <-errCh:
		return err
	case sig, ok := <-sigCh:
		if !ok {
			return <-errCh
		}
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return <-errCh
	}
}
