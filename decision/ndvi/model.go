// Package ndvi predicts monthly average vegetation index from weather
// features and locates NDVI imagery tiles by coordinate.
package ndvi

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"

	gerrors "urban-greenery/pkg/errors"
)

// Regressor is a trained model over a fixed, ordered feature list.
type Regressor interface {
	FeatureNames() []string
	PredictRow(row []float64) (float64, error)
}

// LinearModel is a linear regression exported as JSON:
//
//	{"features": ["year", ...], "intercept": 0.12, "coefficients": [0.001, ...]}
type LinearModel struct {
	Features     []string  `json:"features"`
	Intercept    float64   `json:"intercept"`
	Coefficients []float64 `json:"coefficients"`
}

// LoadModel reads a model artifact from disk.
func LoadModel(path string) (*LinearModel, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, gerrors.New(gerrors.ErrCodeModelLoadFailed, gerrors.SeverityFatal,
			"could not load the model from %s: %v", path, err)
	}
	defer f.Close()
	return ParseModel(f)
}

// ParseModel decodes and validates a model artifact.
func ParseModel(r io.Reader) (*LinearModel, error) {
	var m LinearModel
	if err := json.NewDecoder(r).Decode(&m); err != nil {
		return nil, gerrors.New(gerrors.ErrCodeModelLoadFailed, gerrors.SeverityFatal, "decode model: %v", err)
	}
	if err := m.validate(); err != nil {
		return nil, gerrors.New(gerrors.ErrCodeModelLoadFailed, gerrors.SeverityFatal, "invalid model: %v", err)
	}
	return &m, nil
}

func (m *LinearModel) validate() error {
	if len(m.Features) == 0 {
		return fmt.Errorf("no features")
	}
	if len(m.Features) != len(m.Coefficients) {
		return fmt.Errorf("%d features but %d coefficients", len(m.Features), len(m.Coefficients))
	}
	seen := make(map[string]struct{}, len(m.Features))
	for _, name := range m.Features {
		if _, dup := seen[name]; dup {
			return fmt.Errorf("duplicate feature %q", name)
		}
		seen[name] = struct{}{}
	}
	return nil
}

func (m *LinearModel) FeatureNames() []string {
	return append([]string(nil), m.Features...)
}

func (m *LinearModel) PredictRow(row []float64) (float64, error) {
	if len(row) != len(m.Coefficients) {
		return 0, fmt.Errorf("row has %d values, model expects %d", len(row), len(m.Coefficients))
	}
	y := m.Intercept
	for i, x := range row {
		y += m.Coefficients[i] * x
	}
	if math.IsNaN(y) || math.IsInf(y, 0) {
		return 0, fmt.Errorf("non-finite prediction")
	}
	return y, nil
}
