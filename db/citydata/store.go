// Package citydata loads per-city weather and green cover observations.
package citydata

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"urban-greenery/decision/climate"
	gerrors "urban-greenery/pkg/errors"
)

// Store provides city observations.
type Store interface {
	List(ctx context.Context) ([]climate.CityRecord, error)
	Get(ctx context.Context, city string) (climate.CityRecord, error)
}

// Columns is the city dataset header.
var Columns = []string{"city", "lat", "lon", "temperature", "humidity", "rainfall", "green_cover"}

// ReadCSV parses a city dataset. Cells that are empty leave the field
// unset on the record; cells that do not parse are an error naming the
// line.
func ReadCSV(r io.Reader) ([]climate.CityRecord, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	for i := range header {
		header[i] = strings.ToLower(strings.TrimSpace(header[i]))
	}
	if !contains(header, "city") {
		return nil, gerrors.NewMissingFieldError("city", "")
	}

	var out []climate.CityRecord
	for line := 2; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		m := make(map[string]any, len(header))
		for i, h := range header {
			if i < len(row) {
				m[h] = row[i]
			}
		}
		rec, err := climate.RecordFromMap(m)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if rec.City == "" {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// WriteCSV writes records with the standard header.
func WriteCSV(w io.Writer, recs []climate.CityRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return err
	}
	for _, r := range recs {
		row := []string{r.City, fmtFloat(r.Lat, true), fmtFloat(r.Lon, true)}
		for _, f := range []climate.Field{climate.FieldTemperature, climate.FieldHumidity, climate.FieldRainfall, climate.FieldGreenCover} {
			row = append(row, fmtFloat(r.Value(f), r.Has(f)))
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func fmtFloat(v float64, present bool) string {
	if !present {
		return ""
	}
	return fmt.Sprintf("%g", v)
}

func contains(xs []string, s string) bool {
	for _, x := range xs {
		if x == s {
			return true
		}
	}
	return false
}

// CSVStore serves a city dataset file, loaded once on first use.
type CSVStore struct {
	path string

	once    sync.Once
	records []climate.CityRecord
	index   map[string]int
	err     error
}

// NewCSVStore creates a store over the CSV file at path.
func NewCSVStore(path string) *CSVStore {
	return &CSVStore{path: path}
}

// NewMemoryStore serves the given records.
func NewMemoryStore(recs []climate.CityRecord) *CSVStore {
	s := &CSVStore{}
	s.once.Do(func() { s.setRecords(recs) })
	return s
}

func (s *CSVStore) load() error {
	s.once.Do(func() {
		f, err := os.Open(s.path)
		if err != nil {
			s.err = fmt.Errorf("open city data: %w", err)
			return
		}
		defer f.Close()
		recs, err := ReadCSV(f)
		if err != nil {
			s.err = fmt.Errorf("parse %s: %w", s.path, err)
			return
		}
		s.setRecords(recs)
	})
	return s.err
}

func (s *CSVStore) setRecords(recs []climate.CityRecord) {
	s.records = recs
	s.index = make(map[string]int, len(recs))
	for i, r := range recs {
		key := normalize(r.City)
		if _, dup := s.index[key]; !dup {
			s.index[key] = i
		}
	}
}

// List returns the records in file order.
func (s *CSVStore) List(ctx context.Context) ([]climate.CityRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return append([]climate.CityRecord(nil), s.records...), nil
}

// Get finds a city by name, ignoring case and surrounding space.
func (s *CSVStore) Get(ctx context.Context, city string) (climate.CityRecord, error) {
	if err := ctx.Err(); err != nil {
		return climate.CityRecord{}, err
	}
	if err := s.load(); err != nil {
		return climate.CityRecord{}, err
	}
	i, ok := s.index[normalize(city)]
	if !ok {
		return climate.CityRecord{}, gerrors.NewUnknownCityError(city)
	}
	return s.records[i], nil
}

func normalize(city string) string {
	return strings.ToLower(strings.TrimSpace(city))
}
