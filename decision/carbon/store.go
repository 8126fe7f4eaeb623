// Package carbon provides per-species carbon sequestration rates.
// A static table is always available; a YAML rate file can override it.
package carbon

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// DefaultRate is the sequestration assumed for a mature urban tree.
const DefaultRate = 25.0 // kg CO2 per tree per year

// Store provides sequestration rates for tree species.
type Store interface {
	GetRate(ctx context.Context, species string) (float64, error)
}

// ErrUnknownSpecies is returned by stores that only know some species.
type ErrUnknownSpecies struct {
	Species string
}

func (e *ErrUnknownSpecies) Error() string {
	return fmt.Sprintf("no sequestration rate for species %q", e.Species)
}

// =============================================================================
// STATIC STORE (FALLBACK)
// =============================================================================

// StaticStore answers every species with the same flat rate.
type StaticStore struct {
	rate float64
}

// NewStaticStore creates a static store. A non-positive rate uses DefaultRate.
func NewStaticStore(rate float64) *StaticStore {
	if rate <= 0 {
		rate = DefaultRate
	}
	return &StaticStore{rate: rate}
}

func (s *StaticStore) GetRate(_ context.Context, _ string) (float64, error) {
	return s.rate, nil
}

// =============================================================================
// TABLE STORE
// =============================================================================

// TableStore looks species up in a rate table. Names match case-insensitively.
type TableStore struct {
	mu    sync.RWMutex
	rates map[string]float64
}

// NewTableStore creates a table store from a species→rate map.
func NewTableStore(rates map[string]float64) *TableStore {
	t := &TableStore{rates: make(map[string]float64, len(rates))}
	for species, rate := range rates {
		t.Set(species, rate)
	}
	return t
}

// Set records the rate for a species.
func (t *TableStore) Set(species string, rate float64) {
	t.mu.Lock()
	t.rates[normalize(species)] = rate
	t.mu.Unlock()
}

func (t *TableStore) GetRate(_ context.Context, species string) (float64, error) {
	t.mu.RLock()
	rate, ok := t.rates[normalize(species)]
	t.mu.RUnlock()
	if !ok {
		return 0, &ErrUnknownSpecies{Species: species}
	}
	return rate, nil
}

func normalize(species string) string {
	return strings.ToLower(strings.TrimSpace(species))
}

type rateFile struct {
	Rates map[string]float64 `yaml:"rates"`
}

// LoadTableStore reads a YAML file of the form:
//
//	rates:
//	  Neem: 22
//	  Banyan: 31.5
func LoadTableStore(path string) (*TableStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rate file: %w", err)
	}
	var f rateFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse rate file %s: %w", path, err)
	}
	for species, rate := range f.Rates {
		if rate < 0 {
			return nil, fmt.Errorf("rate file %s: negative rate for %s", path, species)
		}
	}
	return NewTableStore(f.Rates), nil
}

// =============================================================================
// COMPOSED STORE
// =============================================================================

// ComposedStore tries multiple sources in order.
type ComposedStore struct {
	stores []Store
}

// NewComposedStore queries stores in the given order.
func NewComposedStore(stores ...Store) *ComposedStore {
	return &ComposedStore{stores: stores}
}

// GetRate tries each store in order until one succeeds.
func (c *ComposedStore) GetRate(ctx context.Context, species string) (float64, error) {
	lastErr := error(&ErrUnknownSpecies{Species: species})
	for _, store := range c.stores {
		rate, err := store.GetRate(ctx, species)
		if err == nil {
			return rate, nil
		}
		lastErr = err
	}
	return 0, lastErr
}

// =============================================================================
// FACTORY
// =============================================================================

// NewStore creates the appropriate store: the rate file when given, always
// backed by the static default.
func NewStore(rateFile string) (Store, error) {
	static := NewStaticStore(DefaultRate)
	if rateFile == "" {
		return static, nil
	}
	table, err := LoadTableStore(rateFile)
	if err != nil {
		return nil, err
	}
	return NewComposedStore(table, static), nil
}

// AnnualSequestration returns kg CO2 per year for trees of the given species.
func AnnualSequestration(ctx context.Context, s Store, species string, trees int) (float64, error) {
	rate, err := s.GetRate(ctx, species)
	if err != nil {
		return 0, err
	}
	return rate * float64(trees), nil
}
