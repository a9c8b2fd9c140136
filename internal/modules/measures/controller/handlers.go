package controller

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/shopspring/decimal"

	"meteo-server/internal/metrics"
	"meteo-server/internal/modules/measures/repository"
	"meteo-server/internal/modules/measures/types"
	"meteo-server/internal/utils"
)

// createMeasureRequest is the POST body. Fields are pointers so that a
// missing field can be told apart from a zero value. measureDate is
// accepted on the wire but never read.
type createMeasureRequest struct {
	Type  *types.MeasureType `json:"type"`
	Unit  *types.MeasureUnit `json:"unit"`
	Value *decimal.Decimal   `json:"value"`
}

type findOneFunc func(ctx context.Context, t types.MeasureType) (types.Measure, bool, error)

func (c *measureControllerImpl) handleLast(w http.ResponseWriter, r *http.Request) {
	c.handleFindOne(w, r, "last", c.repository.FindLatest)
}

func (c *measureControllerImpl) handleTop(w http.ResponseWriter, r *http.Request) {
	c.handleFindOne(w, r, "top", c.repository.FindTop)
}

func (c *measureControllerImpl) handleFindOne(w http.ResponseWriter, r *http.Request, op string, find findOneFunc) {
	measureType, err := parseMeasureTypeQuery(r)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	measure, found, err := find(r.Context(), measureType)
	if err != nil {
		writeRepositoryError(w, op, err)
		return
	}
	if !found {
		utils.WriteEmpty(w, http.StatusNotFound)
		return
	}
	utils.WriteJSON(w, http.StatusOK, measure)
}

func (c *measureControllerImpl) handleList(w http.ResponseWriter, r *http.Request) {
	measureType, err := parseMeasureTypeQuery(r)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	start, end, hasRange, err := parseRangeQuery(r)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	var measures []types.Measure
	if hasRange {
		measures, err = c.repository.FindByTypeInRange(r.Context(), measureType, start, end)
	} else {
		measures, err = c.repository.FindAllByType(r.Context(), measureType)
	}
	if err != nil {
		writeRepositoryError(w, "list", err)
		return
	}
	if measures == nil {
		measures = []types.Measure{}
	}
	utils.WriteJSON(w, http.StatusOK, measures)
}

func (c *measureControllerImpl) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createMeasureRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		utils.WriteError(w, http.StatusBadRequest, "invalid request body: trailing data after JSON object")
		return
	}
	switch {
	case req.Type == nil:
		utils.WriteError(w, http.StatusBadRequest, "missing 'type'")
		return
	case req.Unit == nil:
		utils.WriteError(w, http.StatusBadRequest, "missing 'unit'")
		return
	case req.Value == nil:
		utils.WriteError(w, http.StatusBadRequest, "missing 'value'")
		return
	}

	created, err := c.repository.Insert(r.Context(), types.Measure{
		Type:  *req.Type,
		Unit:  *req.Unit,
		Value: *req.Value,
	})
	if err != nil {
		if isValidationError(err) {
			utils.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeRepositoryError(w, "create", err)
		return
	}

	metrics.IncMeasuresInserted(created.Type.String(), metrics.SourceHTTP)
	utils.WriteJSON(w, http.StatusOK, created)
}

func isValidationError(err error) bool {
	return errors.Is(err, types.ErrValueOutOfRange) ||
		errors.Is(err, types.ErrUnknownMeasureType) ||
		errors.Is(err, types.ErrUnknownMeasureUnit)
}

func writeRepositoryError(w http.ResponseWriter, op string, err error) {
	slog.Error("measure repository failed", "op", op, "error", err)
	msg := "internal error"
	if errors.Is(err, repository.ErrStorage) {
		msg = "measure storage unavailable"
	}
	utils.WriteError(w, http.StatusInternalServerError, msg)
}
