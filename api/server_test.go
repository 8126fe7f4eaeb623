package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/tiff"

	"urban-greenery/db/citydata"
	"urban-greenery/decision/climate"
	"urban-greenery/decision/ndvi"
	gerrors "urban-greenery/pkg/errors"
)

const testModel = `{
  "features": ["month", "mean_temp_c", "loc_Thane"],
  "intercept": 0.2,
  "coefficients": [0.01, -0.002, 0.05]
}`

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return fmt.Errorf("connection refused") }

func testCities() *citydata.CSVStore {
	delhi := climate.NewCityRecord("Delhi", 38, 70, 8, 20)
	delhi.Lat, delhi.Lon = 28.61, 77.21
	pune := climate.NewCityRecord("Pune", 27, 60, 40, 47)
	return citydata.NewMemoryStore([]climate.CityRecord{delhi, pune})
}

func newTestServer(t *testing.T, mutate ...func(*Deps, *Config)) http.Handler {
	t.Helper()
	m, err := ndvi.ParseModel(strings.NewReader(testModel))
	require.NoError(t, err)
	pred, err := ndvi.NewPredictor(m)
	require.NoError(t, err)

	deps := Deps{Cities: testCities(), Predictor: pred}
	cfg := DefaultConfig()
	for _, fn := range mutate {
		fn(&deps, cfg)
	}
	return NewServer(deps, cfg).Handler()
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, path, nil)
	} else {
		r = httptest.NewRequest(method, path, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestHealthAndRoot(t *testing.T) {
	h := newTestServer(t)

	w := do(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", decodeBody(t, w)["status"])
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	w = do(t, h, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, decodeBody(t, w)["message"], "Welcome")

	w = do(t, h, http.MethodGet, "/nope", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestReady(t *testing.T) {
	w := do(t, newTestServer(t), http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusOK, w.Code)

	h := newTestServer(t, func(d *Deps, _ *Config) { d.Store = failingPinger{} })
	w = do(t, h, http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestRequestIDIsEchoed(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/health", nil)
	r.Header.Set("X-Request-ID", "abc-123")
	w := httptest.NewRecorder()
	newTestServer(t).ServeHTTP(w, r)
	assert.Equal(t, "abc-123", w.Header().Get("X-Request-ID"))
}

func TestCities(t *testing.T) {
	w := do(t, newTestServer(t), http.MethodGet, "/api/v1/cities", "")
	require.Equal(t, http.StatusOK, w.Code)

	var recs []climate.CityRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &recs))
	require.Len(t, recs, 2)
	assert.Equal(t, "Delhi", recs[0].City)

	w = do(t, newTestServer(t), http.MethodPost, "/api/v1/cities", "{}")
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestRecommendByCity(t *testing.T) {
	w := do(t, newTestServer(t), http.MethodPost, "/api/v1/recommend", `{"city": "delhi"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	body := decodeBody(t, w)
	assert.Len(t, body["agent_messages"], 5)
	assert.NotEmpty(t, body["id"])
	recs := body["recommendations"].(map[string]any)
	assert.Equal(t, "Delhi", recs["city"])
	plan := recs["ecological_plan"].(map[string]any)
	assert.Equal(t, float64(800), plan["trees_to_plant"])
	assert.NotContains(t, body, "scenario")
}

func TestRecommendInlineRecordAndScenario(t *testing.T) {
	req := `{
		"record": {"city": "Testville", "temperature": 38, "humidity": 70, "rainfall": 8, "green_cover": 20},
		"scenario": {"type": "Rainfall Change", "change": 10}
	}`
	w := do(t, newTestServer(t), http.MethodPost, "/api/v1/recommend", req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	body := decodeBody(t, w)
	assert.Equal(t, "Simulating: Rainfall Change (+10mm)", body["scenario"])
	analysis := body["recommendations"].(map[string]any)["climate_analysis"].(map[string]any)
	assert.Equal(t, "Moderate", analysis["water_stress"])
}

func TestRecommendErrors(t *testing.T) {
	h := newTestServer(t)
	tests := []struct {
		name string
		body string
		want int
		code string
	}{
		{"unknown city", `{"city": "Atlantis"}`, http.StatusNotFound, gerrors.ErrCodeUnknownCity},
		{"no city", `{}`, http.StatusBadRequest, gerrors.ErrCodeMissingField},
		{"missing green cover", `{"record": {"city": "X", "temperature": 30, "humidity": 50, "rainfall": 20}}`,
			http.StatusBadRequest, gerrors.ErrCodeMissingField},
		{"scenario out of range", `{"city": "Delhi", "scenario": {"type": "Temperature Increase", "change": 9}}`,
			http.StatusBadRequest, gerrors.ErrCodeInvalidField},
		{"bad json", `{`, http.StatusBadRequest, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, h, http.MethodPost, "/api/v1/recommend", tt.body)
			assert.Equal(t, tt.want, w.Code)
			if tt.code != "" {
				assert.Equal(t, tt.code, decodeBody(t, w)["code"])
			}
		})
	}
}

func TestQuery(t *testing.T) {
	w := do(t, newTestServer(t), http.MethodPost, "/api/v1/query",
		`{"city": "Delhi", "question": "What is the budget?"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	body := decodeBody(t, w)
	assert.Equal(t, "Delhi", body["city"])
	assert.Contains(t, body["answer"], "₹800,000")
}

func TestCompare(t *testing.T) {
	w := do(t, newTestServer(t), http.MethodGet, "/api/v1/compare?rank=true", "")
	require.Equal(t, http.StatusOK, w.Code)

	var rows []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rows))
	require.Len(t, rows, 2)
	assert.Equal(t, "Pune", rows[0]["city"])
	assert.Equal(t, "High", rows[0]["cover_class"])
	assert.Equal(t, "Delhi", rows[1]["city"])

	w = do(t, newTestServer(t), http.MethodGet, "/api/v1/compare?cities=Delhi", "")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rows))
	assert.Len(t, rows, 1)

	w = do(t, newTestServer(t), http.MethodGet, "/api/v1/compare?cities=Delhi,Nowhere", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestReport(t *testing.T) {
	h := newTestServer(t)

	w := do(t, h, http.MethodGet, "/api/v1/report?city=Delhi", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/markdown")
	assert.Contains(t, w.Header().Get("Content-Disposition"), "greenery_report_delhi.md")
	assert.Contains(t, w.Body.String(), "# Urban Greenery Analysis Report: Delhi")

	w = do(t, h, http.MethodGet, "/api/v1/report?city=Delhi&format=json", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "Delhi", body["city"])
	assert.Equal(t, float64(5), body["agent_messages"])

	w = do(t, h, http.MethodGet, "/api/v1/report?city=Delhi&format=pdf", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPredict(t *testing.T) {
	h := newTestServer(t)

	w := do(t, h, http.MethodPost, "/predict", predictBody(7, "Thane"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	// 0.2 + 7*0.01 - 28*0.002 + 0.05
	assert.InDelta(t, 0.264, decodeBody(t, w)["predicted_avg_ndvi"], 1e-9)

	w = do(t, h, http.MethodPost, "/predict", predictBody(7, "Panvel"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, gerrors.ErrCodeUnknownLocation, decodeBody(t, w)["code"])

	w = do(t, h, http.MethodPost, "/predict", predictBody(13, "Thane"))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, h, http.MethodPost, "/predict", `{"month": 7, "location": "Thane"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, gerrors.ErrCodeMissingField, body["code"])
	assert.Equal(t, "year", body["field"])

	w = do(t, h, http.MethodPost, "/predict", predictBody(7, "Mumbai"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	body = decodeBody(t, w)
	assert.Equal(t, gerrors.ErrCodeInvalidField, body["code"])
	assert.Equal(t, "location", body["field"])

	noModel := newTestServer(t, func(d *Deps, _ *Config) { d.Predictor = nil })
	w = do(t, noModel, http.MethodPost, "/predict", `{"month": 7, "location": "Thane"}`)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestDefaultConfigFromEnv(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 30*time.Second, cfg.ReadTimeout)
	assert.Equal(t, int64(32<<20), cfg.MaxRequestSize)

	t.Setenv("GREENERY_READ_TIMEOUT", "5")
	t.Setenv("GREENERY_WRITE_TIMEOUT", "nope")
	t.Setenv("GREENERY_MAX_UPLOAD_MB", "64")
	cfg = DefaultConfig()
	assert.Equal(t, 5*time.Second, cfg.ReadTimeout)
	assert.Equal(t, 60*time.Second, cfg.WriteTimeout)
	assert.Equal(t, int64(64<<20), cfg.MaxRequestSize)
}

func predictBody(month int, location string) string {
	return fmt.Sprintf(`{"year": 2025, "month": %d, "min_temp_c": 22.5, "max_temp_c": 35, "mean_temp_c": 28,
		"total_precip_mm": 0, "total_solar_rad_j_m2": 1.5e9, "rainy_days": 10, "location": %q}`, month, location)
}

func TestTiles(t *testing.T) {
	idx, err := ndvi.ReadTileIndex(strings.NewReader(
		"year,bounds,file_name,ndvi_file_name,location,row,col\n" +
			"2018,\"[[[73.0, 19.0], [73.5, 19.0], [73.5, 19.5]]]\",kalyan_2018_0_0.tif,ndvi_kalyan_2018_0_0.tif,Kalyan,0,0\n"))
	require.NoError(t, err)
	h := newTestServer(t, func(d *Deps, _ *Config) { d.Tiles = idx })

	w := do(t, h, http.MethodGet, "/api/v1/tiles?lat=19.2&lon=73.2&year=2018", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "NDVI/kalyan_2018_0_0.tif", decodeBody(t, w)["image_path"])

	w = do(t, h, http.MethodGet, "/api/v1/tiles?lat=10&lon=73.2&year=2018", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, h, http.MethodGet, "/api/v1/tiles?lat=x&lon=73.2&year=2018", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, newTestServer(t), http.MethodGet, "/api/v1/tiles?lat=19.2&lon=73.2&year=2018", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func tiffBytes(t *testing.T, w, h int, v uint8) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetGray(x, y, color.Gray{Y: v})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, tiff.Encode(&buf, img, nil))
	return buf.Bytes()
}

type upload struct {
	field, name string
	data        []byte
}

func multipartRequest(t *testing.T, path string, files ...upload) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, f := range files {
		part, err := mw.CreateFormFile(f.field, f.name)
		require.NoError(t, err)
		_, err = part.Write(f.data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	r := httptest.NewRequest(http.MethodPost, path, &buf)
	r.Header.Set("Content-Type", mw.FormDataContentType())
	return r
}

func serve(h http.Handler, r *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func TestReclassify(t *testing.T) {
	h := newTestServer(t)

	w := serve(h, multipartRequest(t, "/reclassify", upload{"file", "pune.tif", tiffBytes(t, 3, 2, 220)}))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "reclassified_pune.png")

	img, err := png.Decode(w.Body)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 3, 2), img.Bounds())

	w = serve(h, multipartRequest(t, "/reclassify", upload{"file", "pune.png", tiffBytes(t, 1, 1, 0)}))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = serve(h, multipartRequest(t, "/reclassify", upload{"file", "broken.tif", []byte("not a tiff")}))
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = serve(h, multipartRequest(t, "/reclassify"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCalculateChange(t *testing.T) {
	h := newTestServer(t)

	w := serve(h, multipartRequest(t, "/calculate_change",
		upload{"file_2018", "a_2018.tif", tiffBytes(t, 2, 2, 100)},
		upload{"file_2024", "a_2024.tif", tiffBytes(t, 2, 2, 200)}))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Disposition"), "change_map.png")

	w = serve(h, multipartRequest(t, "/calculate_change",
		upload{"file_2018", "a_2018.tif", tiffBytes(t, 2, 2, 100)},
		upload{"file_2024", "a_2024.tif", tiffBytes(t, 3, 2, 200)}))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, gerrors.ErrCodeRasterShapeMismatch, decodeBody(t, w)["code"])
}

func TestAPIKeyAndCORS(t *testing.T) {
	h := newTestServer(t, func(_ *Deps, c *Config) { c.APIKey = "secret" })

	w := do(t, h, http.MethodGet, "/api/v1/cities", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	r := httptest.NewRequest(http.MethodGet, "/api/v1/cities", nil)
	r.Header.Set("X-API-Key", "secret")
	assert.Equal(t, http.StatusOK, serve(h, r).Code)

	// Health stays open.
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/health", "").Code)

	r = httptest.NewRequest(http.MethodOptions, "/api/v1/recommend", nil)
	r.Header.Set("Origin", "http://localhost:3000")
	w = serve(h, r)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{gerrors.NewMissingFieldError("rainfall", "X"), http.StatusBadRequest},
		{fmt.Errorf("Ecological Planner: %w", gerrors.NewMissingFieldError("green_cover", "X")), http.StatusBadRequest},
		{gerrors.NewUnknownCityError("X"), http.StatusNotFound},
		{gerrors.New(gerrors.ErrCodeRasterDecodeFailed, gerrors.SeverityError, "bad"), http.StatusUnprocessableEntity},
		{gerrors.New(gerrors.ErrCodePredictionFailed, gerrors.SeverityError, "bad"), http.StatusInternalServerError},
		{context.Canceled, http.StatusServiceUnavailable},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StatusFor(tt.err), tt.err.Error())
	}
}
