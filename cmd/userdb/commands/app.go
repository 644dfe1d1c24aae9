package commands

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/userdb/userdb/internal/config"
	"github.com/userdb/userdb/internal/database"
	"github.com/userdb/userdb/internal/metrics"
	"github.com/userdb/userdb/internal/users"
)

// app bundles what every command needs once the config is loaded
type app struct {
	logger  *zap.Logger
	metrics *metrics.Metrics
	service *users.UserServiceImpl
}

// newApp loads the config, connects to the store and makes sure the users table exists.
// The caller owns the result and must call close.
func newApp(ctx context.Context) (*app, error) {
	if err := config.Load(configPath); err != nil {
		return nil, err
	}

	logger := initLogger()

	storeConfig := config.Store()
	pgConfig := config.Postgres()

	opts := database.Options{
		Driver:             storeConfig.Driver,
		DSN:                pgConfig.DSN(),
		ReadTimeout:        time.Duration(pgConfig.ReadTimeout) * time.Second,
		WriteTimeout:       time.Duration(pgConfig.WriteTimeout) * time.Second,
		Path:               storeConfig.SQLitePath,
		MaxOpenConnections: pgConfig.MaxOpenConnections,
	}

	if storeConfig.Driver == config.DriverPostgres {
		logger.Info("Database configuration",
			zap.String("driver", storeConfig.Driver),
			zap.String("host", pgConfig.Host),
			zap.Int("port", pgConfig.Port),
			zap.String("database", pgConfig.Database),
			zap.String("user", pgConfig.User))
	} else {
		logger.Info("Database configuration",
			zap.String("driver", storeConfig.Driver),
			zap.String("path", storeConfig.SQLitePath))
	}

	store, err := users.Connect(ctx, opts)
	if err != nil {
		logger.Error("Failed to connect to the database", zap.Error(err))
		logger.Sync()
		return nil, err
	}
	logger.Info("Database connection established")

	metricsConfig := config.Metrics()
	m := metrics.New(metricsConfig.Enabled, metricsConfig.Namespace)

	service := users.NewUserService(store, m, logger)
	if err := service.EnsureSchema(ctx); err != nil {
		service.Close()
		logger.Sync()
		return nil, err
	}

	return &app{
		logger:  logger,
		metrics: m,
		service: service,
	}, nil
}

func (a *app) close() {
	a.service.Close()
	a.logger.Sync()
}

func initLogger() *zap.Logger {
	logConfig := config.Logger()

	var config zap.Config
	if logConfig.Format == "json" {
		config = zap.NewProductionConfig()
	} else {
		config = zap.NewDevelopmentConfig()
	}

	// Set log level
	switch logConfig.Level {
	case "debug":
		config.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		config.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		config.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		config.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		config.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := config.Build()
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}

	return logger
}
