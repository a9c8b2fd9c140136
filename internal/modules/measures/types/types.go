package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrUnknownMeasureType = errors.New("unknown measure type")
	ErrUnknownMeasureUnit = errors.New("unknown measure unit")
	ErrValueOutOfRange    = errors.New("measure value out of range")
)

// ValueScale is the number of fractional digits kept for a measure value.
const ValueScale = 2

// MaxValue is the largest magnitude a value may have once rounded (6 digits, scale 2).
var MaxValue = decimal.New(999999, -ValueScale)

type MeasureType string

const (
	CO2         MeasureType = "CO2"
	Temperature MeasureType = "TEMPERATURE"
	Humidity    MeasureType = "HUMIDITY"
	Pressure    MeasureType = "PRESSURE"
)

var measureTypes = map[string]MeasureType{
	string(CO2):         CO2,
	string(Temperature): Temperature,
	string(Humidity):    Humidity,
	string(Pressure):    Pressure,
}

// ParseMeasureType matches s exactly (case-sensitive) against the known types.
func ParseMeasureType(s string) (MeasureType, error) {
	t, ok := measureTypes[s]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownMeasureType, s)
	}
	return t, nil
}

func (t MeasureType) String() string { return string(t) }

func (t MeasureType) MarshalText() ([]byte, error) {
	if _, ok := measureTypes[string(t)]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMeasureType, string(t))
	}
	return []byte(t), nil
}

func (t *MeasureType) UnmarshalText(b []byte) error {
	parsed, err := ParseMeasureType(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

type MeasureUnit string

const (
	PPM     MeasureUnit = "PPM"
	Celsius MeasureUnit = "CELSIUS"
	Percent MeasureUnit = "PERCENT"
	HPa     MeasureUnit = "HPA"
)

var measureUnits = map[string]MeasureUnit{
	string(PPM):     PPM,
	string(Celsius): Celsius,
	string(Percent): Percent,
	string(HPa):     HPa,
}

// ParseMeasureUnit matches s exactly (case-sensitive) against the known units.
func ParseMeasureUnit(s string) (MeasureUnit, error) {
	u, ok := measureUnits[s]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownMeasureUnit, s)
	}
	return u, nil
}

func (u MeasureUnit) String() string { return string(u) }

func (u MeasureUnit) MarshalText() ([]byte, error) {
	if _, ok := measureUnits[string(u)]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMeasureUnit, string(u))
	}
	return []byte(u), nil
}

func (u *MeasureUnit) UnmarshalText(b []byte) error {
	parsed, err := ParseMeasureUnit(string(b))
	if err != nil {
		return err
	}
	*u = parsed
	return nil
}

// Measure is one stored observation. ID and MeasureDate are assigned on insert.
type Measure struct {
	ID          int64           `json:"id"`
	Type        MeasureType     `json:"type"`
	Unit        MeasureUnit     `json:"unit"`
	Value       decimal.Decimal `json:"value"`
	MeasureDate time.Time       `json:"measureDate"`
}

// MarshalJSON writes value as a bare JSON number with two fractional digits.
func (m Measure) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ID          int64       `json:"id"`
		Type        MeasureType `json:"type"`
		Unit        MeasureUnit `json:"unit"`
		Value       json.Number `json:"value"`
		MeasureDate time.Time   `json:"measureDate"`
	}{
		ID:          m.ID,
		Type:        m.Type,
		Unit:        m.Unit,
		Value:       json.Number(m.Value.StringFixed(ValueScale)),
		MeasureDate: m.MeasureDate,
	})
}

// NormalizeValue rounds v to ValueScale places and checks it fits the column precision.
func NormalizeValue(v decimal.Decimal) (decimal.Decimal, error) {
	rounded := v.Round(ValueScale)
	if rounded.Abs().GreaterThan(MaxValue) {
		return decimal.Decimal{}, fmt.Errorf("%w: %s (max %s)", ErrValueOutOfRange, v.String(), MaxValue.StringFixed(ValueScale))
	}
	return rounded, nil
}

// ValueToCents encodes a normalized value as integer hundredths for storage.
func ValueToCents(v decimal.Decimal) int64 {
	return v.Shift(ValueScale).IntPart()
}

// ValueFromCents decodes integer hundredths back into a decimal value.
func ValueFromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -ValueScale)
}
