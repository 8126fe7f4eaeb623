package ndvi

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	gerrors "urban-greenery/pkg/errors"
)

// Location is a region the model was trained on.
type Location string

const (
	Panvel          Location = "Panvel"
	Kalyan          Location = "Kalyan"
	Thane           Location = "Thane"
	Tirunveli       Location = "Tirunveli"
	Vilupuram       Location = "Vilupuram"
	Thiruvannamalai Location = "Thiruvannamalai"
	Mandangad       Location = "Mandangad"
)

// Coordinate is a latitude/longitude pair in decimal degrees.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

func dms(deg, minutes, seconds float64) float64 {
	return deg + minutes/60 + seconds/3600
}

// locations maps each known location to its town centre.
var locations = map[Location]Coordinate{
	Panvel:          {dms(18, 56, 34), dms(73, 8, 25)},
	Kalyan:          {dms(19, 12, 54), dms(73, 10, 57)},
	Thane:           {dms(19, 13, 9), dms(72, 54, 47)},
	Tirunveli:       {dms(8, 42, 52), dms(77, 45, 55)},
	Vilupuram:       {dms(11, 56, 22), dms(79, 29, 12)},
	Thiruvannamalai: {dms(12, 13, 30), dms(79, 4, 32)},
	Mandangad:       {dms(18, 1, 24), dms(73, 11, 36)},
}

// Locations lists the known locations.
func Locations() []Location {
	return []Location{Panvel, Kalyan, Thane, Tirunveli, Vilupuram, Thiruvannamalai, Mandangad}
}

// CoordinateOf returns the town centre of a known location.
func CoordinateOf(l Location) (Coordinate, bool) {
	c, ok := locations[l]
	return c, ok
}

// Features is one month of weather for a location.
type Features struct {
	Year             int      `json:"year"`
	Month            int      `json:"month"`
	MinTempC         float64  `json:"min_temp_c"`
	MaxTempC         float64  `json:"max_temp_c"`
	MeanTempC        float64  `json:"mean_temp_c"`
	TotalPrecipMM    float64  `json:"total_precip_mm"`
	TotalSolarRadJM2 float64  `json:"total_solar_rad_j_m2"`
	RainyDays        int      `json:"rainy_days"`
	Location         Location `json:"location"`

	// missing holds the wire names absent from a decoded payload.
	// Values built in code are taken as complete.
	missing string
}

type featuresJSON struct {
	Year             *int      `json:"year"`
	Month            *int      `json:"month"`
	MinTempC         *float64  `json:"min_temp_c"`
	MaxTempC         *float64  `json:"max_temp_c"`
	MeanTempC        *float64  `json:"mean_temp_c"`
	TotalPrecipMM    *float64  `json:"total_precip_mm"`
	TotalSolarRadJM2 *float64  `json:"total_solar_rad_j_m2"`
	RainyDays        *int      `json:"rainy_days"`
	Location         *Location `json:"location"`
}

// UnmarshalJSON records which fields were absent from the payload.
func (f *Features) UnmarshalJSON(data []byte) error {
	var raw featuresJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*f = Features{}
	var missing []string
	setInt := func(dst *int, v *int, name string) {
		if v == nil {
			missing = append(missing, name)
			return
		}
		*dst = *v
	}
	setFloat := func(dst *float64, v *float64, name string) {
		if v == nil {
			missing = append(missing, name)
			return
		}
		*dst = *v
	}
	setInt(&f.Year, raw.Year, "year")
	setInt(&f.Month, raw.Month, "month")
	setFloat(&f.MinTempC, raw.MinTempC, "min_temp_c")
	setFloat(&f.MaxTempC, raw.MaxTempC, "max_temp_c")
	setFloat(&f.MeanTempC, raw.MeanTempC, "mean_temp_c")
	setFloat(&f.TotalPrecipMM, raw.TotalPrecipMM, "total_precip_mm")
	setFloat(&f.TotalSolarRadJM2, raw.TotalSolarRadJM2, "total_solar_rad_j_m2")
	setInt(&f.RainyDays, raw.RainyDays, "rainy_days")
	if raw.Location == nil {
		missing = append(missing, "location")
	} else {
		f.Location = *raw.Location
	}
	f.missing = strings.Join(missing, ",")
	return nil
}

// Missing lists the fields absent from a decoded payload.
func (f Features) Missing() []string {
	if f.missing == "" {
		return nil
	}
	return strings.Split(f.missing, ",")
}

func (f Features) numeric() map[string]float64 {
	return map[string]float64{
		"year":                 float64(f.Year),
		"month":                float64(f.Month),
		"min_temp_c":           f.MinTempC,
		"max_temp_c":           f.MaxTempC,
		"mean_temp_c":          f.MeanTempC,
		"total_precip_mm":      f.TotalPrecipMM,
		"total_solar_rad_j_m2": f.TotalSolarRadJM2,
		"rainy_days":           float64(f.RainyDays),
	}
}

// Validate checks presence and the ranges that do not depend on the model.
// The location must be one of Locations; whether the model was trained on
// it is checked by Row.
func (f Features) Validate() error {
	if missing := f.Missing(); len(missing) > 0 {
		return gerrors.NewMissingFieldError(missing[0], "")
	}
	if f.Location == "" {
		return gerrors.NewMissingFieldError("location", "")
	}
	if _, ok := CoordinateOf(f.Location); !ok {
		names := make([]string, 0, len(locations))
		for _, l := range Locations() {
			names = append(names, string(l))
		}
		return gerrors.NewInvalidFieldError("location",
			fmt.Sprintf("%q is not one of %s", f.Location, strings.Join(names, ", ")))
	}
	if f.Month < 1 || f.Month > 12 {
		return gerrors.NewInvalidFieldError("month", fmt.Sprintf("must be 1-12, got %d", f.Month))
	}
	if f.RainyDays < 0 || f.RainyDays > 31 {
		return gerrors.NewInvalidFieldError("rainy_days", fmt.Sprintf("must be 0-31, got %d", f.RainyDays))
	}
	return nil
}

// Prediction is the predictor's answer.
type Prediction struct {
	PredictedAvgNDVI float64 `json:"predicted_avg_ndvi"`
}

// Predictor shapes features into the model's row layout.
type Predictor struct {
	model   Regressor
	columns map[string]int
}

// NewPredictor wraps a loaded model.
func NewPredictor(model Regressor) (*Predictor, error) {
	if model == nil {
		return nil, gerrors.New(gerrors.ErrCodeModelLoadFailed, gerrors.SeverityFatal, "no model supplied")
	}
	names := model.FeatureNames()
	columns := make(map[string]int, len(names))
	for i, n := range names {
		columns[n] = i
	}
	return &Predictor{model: model, columns: columns}, nil
}

// LocationColumn is the one-hot column name for l.
func LocationColumn(l Location) string {
	return "loc_" + string(l)
}

// Row builds the model input: zeros, then the numeric features the model
// knows, then a 1 in the location's one-hot column.
func (p *Predictor) Row(f Features) ([]float64, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	row := make([]float64, len(p.columns))
	for name, v := range f.numeric() {
		if i, ok := p.columns[name]; ok {
			row[i] = v
		}
	}
	i, ok := p.columns[LocationColumn(f.Location)]
	if !ok {
		return nil, gerrors.NewUnknownLocationError(string(f.Location))
	}
	row[i] = 1
	return row, nil
}

// Predict returns the predicted monthly average NDVI.
func (p *Predictor) Predict(ctx context.Context, f Features) (Prediction, error) {
	if err := ctx.Err(); err != nil {
		return Prediction{}, err
	}
	row, err := p.Row(f)
	if err != nil {
		return Prediction{}, err
	}
	y, err := p.model.PredictRow(row)
	if err != nil {
		return Prediction{}, gerrors.New(gerrors.ErrCodePredictionFailed, gerrors.SeverityError,
			"an error occurred during prediction: %v", err)
	}
	return Prediction{PredictedAvgNDVI: y}, nil
}
