package telemetry

import "github.com/shopspring/decimal"

// Measure is the payload a station publishes on the measures topic, e.g.
//
//	{"station_id":"roof","type":"CO2","unit":"PPM","value":412.5}
//
// The server assigns id and timestamp on insert.
type Measure struct {
	StationID string           `json:"station_id,omitempty"`
	Type      string           `json:"type"`
	Unit      string           `json:"unit"`
	Value     *decimal.Decimal `json:"value,omitempty"`
}
