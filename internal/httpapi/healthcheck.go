package httpapi

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"meteo-server/internal/utils"
)

const healthcheckTimeout = 2 * time.Second

// ConnectionStatus reports liveness of an optional dependency.
type ConnectionStatus interface {
	IsConnected() bool
}

type healthchecker interface {
	handleHealthz(w http.ResponseWriter, r *http.Request)
}

type healthcheckerImpl struct {
	db     *sql.DB
	mqtt   ConnectionStatus
	logger *slog.Logger
}

func NewHealthchecker(db *sql.DB, mqtt ConnectionStatus, logger *slog.Logger) healthchecker {
	return &healthcheckerImpl{db: db, mqtt: mqtt, logger: logger}
}

// handleHealthz fails only on the database. MQTT is reported but never
// fails the check, since the HTTP API works without it.
func (h *healthcheckerImpl) handleHealthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthcheckTimeout)
	defer cancel()

	var ok int
	if err := h.db.QueryRowContext(ctx, `SELECT 1`).Scan(&ok); err != nil {
		h.logger.Error("failed to check database connectivity", "error", err)
		utils.WriteError(w, http.StatusServiceUnavailable, "failed to check database connectivity")
		return
	}

	mqttState := "disabled"
	if h.mqtt != nil {
		mqttState = "disconnected"
		if h.mqtt.IsConnected() {
			mqttState = "connected"
		}
	}
	utils.WriteJSON(w, http.StatusOK, map[string]string{
		"status":   "ok",
		"database": "ok",
		"mqtt":     mqttState,
	})
}

func registerHealthcheck(r chi.Router, db *sql.DB, mqtt ConnectionStatus, logger *slog.Logger) {
	healthchecker := NewHealthchecker(db, mqtt, logger)
	r.Get("/healthz", healthchecker.handleHealthz)
}
