package measures

import (
	"database/sql"
	"log/slog"

	"github.com/go-chi/chi/v5"

	"meteo-server/internal/modules/measures/controller"
	"meteo-server/internal/modules/measures/repository"
	"meteo-server/internal/modules/measures/service"
	"meteo-server/internal/mqtt"
)

// RegisterFeature wires the measures module: HTTP routes on r and, when
// subscriber is non-nil, MQTT ingestion.
func RegisterFeature(r chi.Router, db *sql.DB, subscriber mqtt.MQTTSubscriber, logger *slog.Logger) {
	measureRepository := repository.NewRepository(db)

	measureController := controller.NewMeasureController(measureRepository)
	measureController.RegisterRoutes(r)

	if subscriber != nil {
		service.NewService(measureRepository, logger).Register(subscriber)
	}
}
