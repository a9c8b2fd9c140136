package controller

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"meteo-server/internal/modules/measures/types"
)

const (
	measureTypeParam = "measure-type"
	startDateParam   = "start-date"
	endDateParam     = "end-date"

	// maxBodyBytes caps POST bodies; a measure is a handful of fields.
	maxBodyBytes = 1 << 20
)

// localDateTimeLayout is an ISO-8601 date-time without offset. Fractional
// seconds are accepted on parse even though the layout omits them.
const localDateTimeLayout = "2006-01-02T15:04:05"

func parseMeasureTypeQuery(r *http.Request) (types.MeasureType, error) {
	s := r.URL.Query().Get(measureTypeParam)
	if s == "" {
		return "", fmt.Errorf("missing '%s'", measureTypeParam)
	}
	t, err := types.ParseMeasureType(s)
	if err != nil {
		return "", fmt.Errorf("invalid '%s': %w", measureTypeParam, err)
	}
	return t, nil
}

// parseRangeQuery reads start-date and end-date. ok is false when neither
// is present; supplying only one of them is an error.
func parseRangeQuery(r *http.Request) (start, end time.Time, ok bool, err error) {
	q := r.URL.Query()
	startStr, endStr := q.Get(startDateParam), q.Get(endDateParam)

	if startStr == "" && endStr == "" {
		return time.Time{}, time.Time{}, false, nil
	}
	if startStr == "" || endStr == "" {
		return time.Time{}, time.Time{}, false, fmt.Errorf("'%s' and '%s' must be given together", startDateParam, endDateParam)
	}

	start, err = parseDateTime(startStr)
	if err != nil {
		return time.Time{}, time.Time{}, false, fmt.Errorf("invalid '%s' (expected ISO-8601 date-time)", startDateParam)
	}
	end, err = parseDateTime(endStr)
	if err != nil {
		return time.Time{}, time.Time{}, false, fmt.Errorf("invalid '%s' (expected ISO-8601 date-time)", endDateParam)
	}
	return start, end, true, nil
}

// parseDateTime accepts RFC 3339 with an offset, or a local date-time that is
// taken as UTC.
func parseDateTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation(localDateTimeLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, errors.New("unrecognized date-time")
	}
	return t, nil
}
