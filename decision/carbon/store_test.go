package carbon

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticStoreDefault(t *testing.T) {
	ctx := context.Background()
	rate, err := NewStaticStore(0).GetRate(ctx, "Neem")
	require.NoError(t, err)
	assert.Equal(t, DefaultRate, rate)

	total, err := AnnualSequestration(ctx, NewStaticStore(0), "Neem", 800)
	require.NoError(t, err)
	assert.Equal(t, 20000.0, total)
}

func TestTableStoreCaseInsensitive(t *testing.T) {
	s := NewTableStore(map[string]float64{"Rain Tree": 30})
	rate, err := s.GetRate(context.Background(), " rain tree ")
	require.NoError(t, err)
	assert.Equal(t, 30.0, rate)

	_, err = s.GetRate(context.Background(), "Oak")
	var unknown *ErrUnknownSpecies
	assert.ErrorAs(t, err, &unknown)
}

func TestComposedStoreFallsBack(t *testing.T) {
	c := NewComposedStore(NewTableStore(map[string]float64{"Banyan": 31.5}), NewStaticStore(0))

	rate, err := c.GetRate(context.Background(), "Banyan")
	require.NoError(t, err)
	assert.Equal(t, 31.5, rate)

	rate, err = c.GetRate(context.Background(), "Ashoka")
	require.NoError(t, err)
	assert.Equal(t, DefaultRate, rate)

	_, err = NewComposedStore().GetRate(context.Background(), "Ashoka")
	assert.Error(t, err)
}

func TestNewStoreFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rates.yaml")
	require.NoError(t, os.WriteFile(path, []byte("rates:\n  Neem: 22\n"), 0o644))

	s, err := NewStore(path)
	require.NoError(t, err)

	rate, err := s.GetRate(context.Background(), "neem")
	require.NoError(t, err)
	assert.Equal(t, 22.0, rate)

	rate, err = s.GetRate(context.Background(), "Mango")
	require.NoError(t, err)
	assert.Equal(t, DefaultRate, rate)
}

func TestLoadTableStoreRejectsNegative(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rates.yaml")
	require.NoError(t, os.WriteFile(path, []byte("rates:\n  Neem: -1\n"), 0o644))
	_, err := LoadTableStore(path)
	assert.Error(t, err)

	_, err = NewStore(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
