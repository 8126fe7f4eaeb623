// Package scenario applies what-if adjustments to a city record before it
// is run through the advisory pipeline.
package scenario

import (
	"fmt"
	"strings"

	"urban-greenery/decision/climate"
	gerrors "urban-greenery/pkg/errors"
	"urban-greenery/pkg/units"
)

// Kind names the adjusted quantity.
type Kind string

const (
	TemperatureIncrease   Kind = "Temperature Increase"
	RainfallChange        Kind = "Rainfall Change"
	GreenCoverImprovement Kind = "Green Cover Improvement"
)

type bounds struct {
	field        climate.Field
	min, max     float64
	defaultDelta float64
	unit         units.Unit
}

var kinds = map[Kind]bounds{
	TemperatureIncrease:   {field: climate.FieldTemperature, min: 0, max: 5, defaultDelta: 2, unit: units.UnitCelsius},
	RainfallChange:        {field: climate.FieldRainfall, min: -20, max: 30, defaultDelta: 10, unit: units.UnitMillimetres},
	GreenCoverImprovement: {field: climate.FieldGreenCover, min: 0, max: 15, defaultDelta: 5, unit: units.UnitPercent},
}

// Kinds lists the supported adjustments in display order.
func Kinds() []Kind {
	return []Kind{TemperatureIncrease, RainfallChange, GreenCoverImprovement}
}

// ParseKind accepts the display name or a short alias such as
// "temperature", "rainfall" or "green_cover".
func ParseKind(s string) (Kind, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.NewReplacer("-", " ", "_", " ").Replace(norm)
	switch norm {
	case "temperature", "temperature increase", "temp", "heat":
		return TemperatureIncrease, nil
	case "rainfall", "rainfall change", "rain":
		return RainfallChange, nil
	case "green cover", "green cover improvement", "greencover", "cover":
		return GreenCoverImprovement, nil
	}
	return "", gerrors.NewInvalidFieldError("scenario", fmt.Sprintf("unknown scenario type %q", s))
}

// Scenario is one adjustment.
type Scenario struct {
	Kind   Kind    `json:"type"`
	Change float64 `json:"change"`
}

// Default returns the scenario with the kind's default change.
func Default(k Kind) Scenario {
	return Scenario{Kind: k, Change: kinds[k].defaultDelta}
}

// Validate checks the kind and that the change is within its range.
func (s Scenario) Validate() error {
	b, ok := kinds[s.Kind]
	if !ok {
		return gerrors.NewInvalidFieldError("scenario", fmt.Sprintf("unknown scenario type %q", s.Kind))
	}
	if s.Change < b.min || s.Change > b.max {
		return gerrors.NewInvalidFieldError("change",
			fmt.Sprintf("%s must be between %g and %g %s, got %g", s.Kind, b.min, b.max, b.unit, s.Change))
	}
	return nil
}

// Apply returns a copy of rec with the adjustment added. rec is not modified.
func (s Scenario) Apply(rec climate.CityRecord) (climate.CityRecord, error) {
	if err := s.Validate(); err != nil {
		return climate.CityRecord{}, err
	}
	b := kinds[s.Kind]
	if !rec.Has(b.field) {
		return climate.CityRecord{}, gerrors.NewMissingFieldError(b.field.Name(), rec.City)
	}
	return rec.With(b.field, rec.Value(b.field)+s.Change), nil
}

// Label describes the scenario for display.
func (s Scenario) Label() string {
	return fmt.Sprintf("Simulating: %s (%+g%s)", s.Kind, s.Change, kinds[s.Kind].unit)
}
