package controller

import (
	"github.com/go-chi/chi/v5"

	"meteo-server/internal/modules/measures/repository"
)

type MeasureController interface {
	RegisterRoutes(r chi.Router)
}

type measureControllerImpl struct {
	repository repository.MeasureRepository
}

func NewMeasureController(repository repository.MeasureRepository) MeasureController {
	return &measureControllerImpl{repository: repository}
}

func (c *measureControllerImpl) RegisterRoutes(r chi.Router) {
	r.Get("/api/measures/last", c.handleLast)
	r.Get("/api/measures/top", c.handleTop)
	r.Get("/api/measures", c.handleList)
	r.Post("/api/measures", c.handleCreate)
}
