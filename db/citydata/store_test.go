package citydata

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"urban-greenery/decision/climate"
	gerrors "urban-greenery/pkg/errors"
)

const sampleCSV = `city,lat,lon,temperature,humidity,rainfall,green_cover
Delhi,28.61,77.21,39.5,35,12,21
Mumbai,19.08,72.88,31,78,45,27
Jaipur,26.91,75.79,41,25,,12
`

func writeSample(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "city_data.csv")
	require.NoError(t, os.WriteFile(path, []byte(sampleCSV), 0o644))
	return path
}

func TestReadCSV(t *testing.T) {
	recs, err := ReadCSV(strings.NewReader(sampleCSV))
	require.NoError(t, err)
	require.Len(t, recs, 3)

	assert.Equal(t, "Delhi", recs[0].City)
	assert.Equal(t, 28.61, recs[0].Lat)
	assert.Equal(t, 39.5, recs[0].Temperature)
	assert.True(t, recs[0].Has(climate.FieldGreenCover))

	assert.False(t, recs[2].Has(climate.FieldRainfall), "empty cell leaves the field unset")
	_, err = climate.Assess(recs[2])
	assert.Equal(t, gerrors.ErrCodeMissingField, gerrors.CodeOf(err))
}

func TestReadCSVErrors(t *testing.T) {
	_, err := ReadCSV(strings.NewReader("name,temperature\nX,30\n"))
	assert.Equal(t, gerrors.ErrCodeMissingField, gerrors.CodeOf(err))

	_, err = ReadCSV(strings.NewReader("city,temperature\nX,hot\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}

func TestCSVStore(t *testing.T) {
	s := NewCSVStore(writeSample(t))
	ctx := context.Background()

	all, err := s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Delhi", "Mumbai", "Jaipur"}, []string{all[0].City, all[1].City, all[2].City})

	rec, err := s.Get(ctx, "  mumbai ")
	require.NoError(t, err)
	assert.Equal(t, 78.0, rec.Humidity)

	_, err = s.Get(ctx, "Atlantis")
	assert.Equal(t, gerrors.ErrCodeUnknownCity, gerrors.CodeOf(err))

	// List returns a copy.
	all[0].City = "Changed"
	again, err := s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Delhi", again[0].City)
}

func TestCSVStoreMissingFile(t *testing.T) {
	s := NewCSVStore(filepath.Join(t.TempDir(), "none.csv"))
	_, err := s.List(context.Background())
	assert.Error(t, err)
}

func TestWriteCSVRoundTrip(t *testing.T) {
	recs, err := ReadCSV(strings.NewReader(sampleCSV))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, recs))

	back, err := ReadCSV(&buf)
	require.NoError(t, err)
	assert.Equal(t, recs, back)
}

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore([]climate.CityRecord{climate.NewCityRecord("Pune", 30, 50, 20, 10)})
	rec, err := s.Get(context.Background(), "PUNE")
	require.NoError(t, err)
	assert.Equal(t, "Pune", rec.City)
}
