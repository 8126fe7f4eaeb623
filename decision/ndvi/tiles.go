package ndvi

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Tile is one NDVI image in the imagery metadata.
type Tile struct {
	Year         int     `json:"year"`
	MinLon       float64 `json:"min_lon"`
	MinLat       float64 `json:"min_lat"`
	MaxLon       float64 `json:"max_lon"`
	MaxLat       float64 `json:"max_lat"`
	FileName     string  `json:"file_name"`
	NDVIFileName string  `json:"ndvi_file_name"`
	Location     string  `json:"location"`
	Row          int     `json:"row"`
	Col          int     `json:"col"`
}

// Contains reports whether (lat, lon) is inside the tile, edges included.
func (t Tile) Contains(lat, lon float64) bool {
	return t.MinLon <= lon && lon <= t.MaxLon && t.MinLat <= lat && lat <= t.MaxLat
}

// ImagePath is the tile image relative to the imagery root.
func (t Tile) ImagePath() string {
	return "NDVI/" + t.FileName
}

// TileIndex is the parsed metadata. Rows that could not be parsed are
// counted in Skipped.
type TileIndex struct {
	Tiles   []Tile
	Skipped int
}

var requiredColumns = []string{"year", "bounds", "file_name", "ndvi_file_name", "location", "row", "col"}

// LoadTileIndex reads a metadata CSV from disk.
func LoadTileIndex(path string) (*TileIndex, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open tile metadata: %w", err)
	}
	defer f.Close()
	return ReadTileIndex(f)
}

// ReadTileIndex parses metadata with a header row. The bounds column holds
// a JSON polygon [[[min_lon, min_lat], [max_lon, min_lat], [max_lon, max_lat], ...]].
func ReadTileIndex(r io.Reader) (*TileIndex, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read tile metadata header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.TrimSpace(h)] = i
	}
	for _, c := range requiredColumns {
		if _, ok := cols[c]; !ok {
			return nil, fmt.Errorf("tile metadata missing column %q", c)
		}
	}

	idx := &TileIndex{}
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				idx.Skipped++
				continue
			}
			return nil, err
		}
		t, err := parseTile(rec, cols)
		if err != nil {
			idx.Skipped++
			continue
		}
		idx.Tiles = append(idx.Tiles, t)
	}
	return idx, nil
}

func parseTile(rec []string, cols map[string]int) (Tile, error) {
	get := func(name string) (string, error) {
		i := cols[name]
		if i >= len(rec) {
			return "", fmt.Errorf("missing %s", name)
		}
		return strings.TrimSpace(rec[i]), nil
	}
	atoi := func(name string) (int, error) {
		v, err := get(name)
		if err != nil {
			return 0, err
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", name, err)
		}
		return int(f), nil
	}

	var t Tile
	var err error
	if t.Year, err = atoi("year"); err != nil {
		return Tile{}, err
	}
	if t.Row, err = atoi("row"); err != nil {
		return Tile{}, err
	}
	if t.Col, err = atoi("col"); err != nil {
		return Tile{}, err
	}
	raw, err := get("bounds")
	if err != nil {
		return Tile{}, err
	}
	var poly [][][]float64
	if err := json.Unmarshal([]byte(raw), &poly); err != nil {
		return Tile{}, fmt.Errorf("bounds: %w", err)
	}
	if len(poly) == 0 || len(poly[0]) < 3 || len(poly[0][0]) < 2 || len(poly[0][2]) < 2 {
		return Tile{}, fmt.Errorf("bounds: need at least three corner points")
	}
	t.MinLon, t.MinLat = poly[0][0][0], poly[0][0][1]
	t.MaxLon, t.MaxLat = poly[0][2][0], poly[0][2][1]

	if t.FileName, err = get("file_name"); err != nil {
		return Tile{}, err
	}
	if t.NDVIFileName, err = get("ndvi_file_name"); err != nil {
		return Tile{}, err
	}
	if t.Location, err = get("location"); err != nil {
		return Tile{}, err
	}
	return t, nil
}

// FindTile returns the first tile of the given year containing (lat, lon).
func (idx *TileIndex) FindTile(lat, lon float64, year int) (Tile, bool) {
	for _, t := range idx.Tiles {
		if t.Year == year && t.Contains(lat, lon) {
			return t, true
		}
	}
	return Tile{}, false
}
