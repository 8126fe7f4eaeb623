package climate

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Field identifies a numeric CityRecord field.
type Field uint8

const (
	FieldTemperature Field = 1 << iota
	FieldHumidity
	FieldRainfall
	FieldGreenCover
)

const allFields = FieldTemperature | FieldHumidity | FieldRainfall | FieldGreenCover

// Name returns the field's wire name.
func (f Field) Name() string {
	switch f {
	case FieldTemperature:
		return "temperature"
	case FieldHumidity:
		return "humidity"
	case FieldRainfall:
		return "rainfall"
	case FieldGreenCover:
		return "green_cover"
	default:
		return "unknown"
	}
}

// CityRecord is one city's weather and green-cover observation.
// Values carry no range validation; implausible inputs flow through the
// arithmetic unchanged.
type CityRecord struct {
	City        string  `json:"city"`
	Lat         float64 `json:"lat,omitempty"`
	Lon         float64 `json:"lon,omitempty"`
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
	Rainfall    float64 `json:"rainfall"`
	GreenCover  float64 `json:"green_cover"`

	present Field
}

// NewCityRecord returns a record with every numeric field present.
func NewCityRecord(city string, temperature, humidity, rainfall, greenCover float64) CityRecord {
	return CityRecord{
		City:        city,
		Temperature: temperature,
		Humidity:    humidity,
		Rainfall:    rainfall,
		GreenCover:  greenCover,
		present:     allFields,
	}
}

// Has reports whether f was supplied.
func (r CityRecord) Has(f Field) bool {
	return r.present&f == f
}

// With returns a copy of r with f set to v and marked present.
func (r CityRecord) With(f Field, v float64) CityRecord {
	switch f {
	case FieldTemperature:
		r.Temperature = v
	case FieldHumidity:
		r.Humidity = v
	case FieldRainfall:
		r.Rainfall = v
	case FieldGreenCover:
		r.GreenCover = v
	default:
		return r
	}
	r.present |= f
	return r
}

// Without returns a copy of r with f marked absent.
func (r CityRecord) Without(f Field) CityRecord {
	r.present &^= f
	return r
}

// Value returns the value of f.
func (r CityRecord) Value(f Field) float64 {
	switch f {
	case FieldTemperature:
		return r.Temperature
	case FieldHumidity:
		return r.Humidity
	case FieldRainfall:
		return r.Rainfall
	case FieldGreenCover:
		return r.GreenCover
	}
	return 0
}

type cityRecordJSON struct {
	City        string   `json:"city"`
	Lat         float64  `json:"lat,omitempty"`
	Lon         float64  `json:"lon,omitempty"`
	Temperature *float64 `json:"temperature"`
	Humidity    *float64 `json:"humidity"`
	Rainfall    *float64 `json:"rainfall"`
	GreenCover  *float64 `json:"green_cover"`
}

// UnmarshalJSON records which numeric fields were present in the payload.
func (r *CityRecord) UnmarshalJSON(data []byte) error {
	var raw cityRecordJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*r = CityRecord{City: raw.City, Lat: raw.Lat, Lon: raw.Lon}
	for f, v := range map[Field]*float64{
		FieldTemperature: raw.Temperature,
		FieldHumidity:    raw.Humidity,
		FieldRainfall:    raw.Rainfall,
		FieldGreenCover:  raw.GreenCover,
	} {
		if v != nil {
			*r = r.With(f, *v)
		}
	}
	return nil
}

// RecordFromMap builds a record from a loosely typed row such as a CSV
// line keyed by header. Numeric values may be float64, int or strings.
// Keys that are absent leave the field unset; unparsable values are an error.
func RecordFromMap(row map[string]any) (CityRecord, error) {
	var r CityRecord
	if v, ok := row["city"]; ok {
		r.City = strings.TrimSpace(fmt.Sprint(v))
	}
	for _, key := range []string{"lat", "lon"} {
		v, ok := row[key]
		if !ok || isBlank(v) {
			continue
		}
		f, err := toFloat(v)
		if err != nil {
			return CityRecord{}, fmt.Errorf("field %s: %w", key, err)
		}
		if key == "lat" {
			r.Lat = f
		} else {
			r.Lon = f
		}
	}
	for _, f := range []Field{FieldTemperature, FieldHumidity, FieldRainfall, FieldGreenCover} {
		v, ok := row[f.Name()]
		if !ok || isBlank(v) {
			continue
		}
		val, err := toFloat(v)
		if err != nil {
			return CityRecord{}, fmt.Errorf("field %s: %w", f.Name(), err)
		}
		r = r.With(f, val)
	}
	return r, nil
}

func isBlank(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && strings.TrimSpace(s) == ""
}

func toFloat(v any) (float64, error) {
	switch t := v.(type) {
	case float64:
		return t, nil
	case float32:
		return float64(t), nil
	case int:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case string:
		return strconv.ParseFloat(strings.TrimSpace(t), 64)
	default:
		return 0, fmt.Errorf("unsupported value type %T", v)
	}
}
