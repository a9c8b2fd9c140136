package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"meteo-server/internal/config"
	"meteo-server/internal/db"
	"meteo-server/internal/httpapi"
	"meteo-server/internal/migrate"
	"meteo-server/internal/modules/measures"
	"meteo-server/internal/mqtt"
)

const shutdownTimeout = 10 * time.Second

// Run serves the measures API on cfg.HTTPAddr until ctx is cancelled.
func Run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	ln, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.HTTPAddr, err)
	}
	return run(ctx, cfg, logger, ln)
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger, ln net.Listener) error {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("config loaded",
		"appEnv", cfg.AppEnv,
		"logLevel", cfg.LogLevel.String(),
		"httpAddr", ln.Addr().String(),
		"metricsEnabled", cfg.MetricsEnabled,
		"dbDriver", cfg.Driver,
		"sqlitePath", cfg.Path,
		"dbMaxOpenConns", cfg.MaxOpenConns,
		"dbMaxIdleConns", cfg.MaxIdleConns,
		"dbConnMaxLifetime", cfg.ConnMaxLifetime,
		"dbLogSQL", cfg.LogSQL,
		"mqttBroker", cfg.MQTTBroker,
		"mqttPort", cfg.MQTTPort,
		"mqttTopic", cfg.MQTTTopic,
	)

	dbConn, err := db.Open(ctx, cfg, logger)
	if err != nil {
		_ = ln.Close()
		return err
	}
	defer func() {
		if closeErr := db.Close(dbConn); closeErr != nil {
			logger.Error("db close", "error", closeErr)
		}
	}()

	if err := migrate.Run(ctx, dbConn); err != nil {
		_ = ln.Close()
		return fmt.Errorf("migrate: %w", err)
	}
	logger.Info("database ready")

	// The handler is attached before Connect so that messages the broker
	// sends right after CONNACK are not lost.
	var (
		subscriber *mqtt.Subscriber
		mqttStatus httpapi.ConnectionStatus
		mqttAttach mqtt.MQTTSubscriber
	)
	if cfg.MQTTEnabled() {
		subscriber, err = mqtt.NewSubscriber(cfg, logger)
		if err != nil {
			_ = ln.Close()
			return fmt.Errorf("mqtt: %w", err)
		}
		mqttStatus, mqttAttach = subscriber, subscriber
	} else {
		logger.Info("mqtt disabled (MQTT_BROKER not set)")
	}

	router := httpapi.NewRouter(cfg, dbConn, mqttStatus, logger)
	measures.RegisterFeature(router, dbConn, mqttAttach, logger)

	if subscriber != nil {
		// Connect retries in the background; the HTTP API does not wait for the broker.
		go func() {
			if err := subscriber.Connect(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("mqtt connection failed (continuing without mqtt)", "error", err)
			}
		}()
	}

	srv := httpapi.NewServer(cfg, router)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http listening", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if subscriber != nil {
			subscriber.Disconnect()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if subscriber != nil {
		logger.Info("mqtt disconnecting")
		subscriber.Disconnect()
	}

	logger.Info("http shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	err = <-errCh
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return ctx.Err()
}
