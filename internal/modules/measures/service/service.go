package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"meteo-server/internal/metrics"
	"meteo-server/internal/modules/measures/repository"
	"meteo-server/internal/modules/measures/types"
	"meteo-server/internal/mqtt"
	"meteo-server/pkg/telemetry"
)

// Service stores measures published by stations over MQTT.
type Service struct {
	repository repository.MeasureRepository
	logger     *slog.Logger
}

func NewService(repository repository.MeasureRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repository: repository, logger: logger}
}

// Register attaches the service to the subscriber. Call it before Connect so
// that messages delivered right after CONNACK are not dropped.
func (s *Service) Register(subscriber mqtt.MQTTSubscriber) {
	subscriber.SetMessageHandler(s.HandleMeasure)
}

// HandleMeasure converts a station payload and inserts it with a
// server-assigned id and timestamp.
func (s *Service) HandleMeasure(ctx context.Context, payload telemetry.Measure) error {
	m, err := toMeasure(payload)
	if err != nil {
		return err
	}

	stored, err := s.repository.Insert(ctx, m)
	if err != nil {
		return fmt.Errorf("insert measure: %w", err)
	}

	metrics.IncMeasuresInserted(stored.Type.String(), metrics.SourceMQTT)
	s.logger.Debug("stored measure",
		"id", stored.ID,
		"station_id", payload.StationID,
		"type", stored.Type,
		"value", stored.Value.StringFixed(types.ValueScale),
	)
	return nil
}

// toMeasure is the only validation point for station payloads; the
// subscriber hands them over as decoded.
func toMeasure(p telemetry.Measure) (types.Measure, error) {
	if p.Type == "" {
		return types.Measure{}, errors.New("type is required")
	}
	measureType, err := types.ParseMeasureType(p.Type)
	if err != nil {
		return types.Measure{}, err
	}
	if p.Unit == "" {
		return types.Measure{}, errors.New("unit is required")
	}
	unit, err := types.ParseMeasureUnit(p.Unit)
	if err != nil {
		return types.Measure{}, err
	}
	if p.Value == nil {
		return types.Measure{}, errors.New("value is required")
	}
	value, err := types.NormalizeValue(*p.Value)
	if err != nil {
		return types.Measure{}, err
	}
	return types.Measure{Type: measureType, Unit: unit, Value: value}, nil
}
