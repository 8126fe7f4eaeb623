// Package api provides the HTTP API server for the greenery advisor.
package api

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"urban-greenery/db/citydata"
	"urban-greenery/decision/climate"
	"urban-greenery/decision/ndvi"
	"urban-greenery/decision/query"
	"urban-greenery/decision/raster"
	"urban-greenery/decision/report"
	"urban-greenery/decision/scenario"
	"urban-greenery/decision/workflow"
	gerrors "urban-greenery/pkg/errors"
	"urban-greenery/pkg/platform"
)

const tracerName = "urban-greenery/api"

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators the handlers call. Predictor and Tiles are
// optional; their endpoints answer 503 when unset.
type Deps struct {
	Cities    citydata.Store
	Pipeline  *workflow.Pipeline
	Predictor *ndvi.Predictor
	Tiles     *ndvi.TileIndex
	Store     Pinger
	Logger    *zap.Logger
}

// Server is the HTTP API server
type Server struct {
	httpServer *http.Server
	deps       Deps
	logger     *zap.Logger
	tracer     trace.Tracer
	clock      func() time.Time
	config     *Config
}

// Config holds server configuration
type Config struct {
	Port           int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxRequestSize int64
	CORSOrigins    []string
	APIKey         string
}

// DefaultConfig returns default server configuration
//
// Timeouts and the upload limit can be overridden with GREENERY_READ_TIMEOUT,
// GREENERY_WRITE_TIMEOUT (seconds) and GREENERY_MAX_UPLOAD_MB.
func DefaultConfig() *Config {
	return &Config{
		Port:           8080,
		ReadTimeout:    time.Duration(platform.GetEnvInt("GREENERY_READ_TIMEOUT", 30)) * time.Second,
		WriteTimeout:   time.Duration(platform.GetEnvInt("GREENERY_WRITE_TIMEOUT", 60)) * time.Second,
		MaxRequestSize: int64(platform.GetEnvInt("GREENERY_MAX_UPLOAD_MB", 32)) << 20, // rasters
		CORSOrigins:    []string{"*"},
	}
}

// NewServer creates a new API server
func NewServer(deps Deps, config *Config) *Server {
	if config == nil {
		config = DefaultConfig()
	}
	if deps.Pipeline == nil {
		deps.Pipeline = workflow.New()
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		deps:   deps,
		logger: logger,
		tracer: otel.Tracer(tracerName),
		clock:  time.Now,
		config: config,
	}
}

// Handler returns the routed handler wrapped in middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/", s.handleRoot)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ready", s.handleReady)

	api := http.NewServeMux()
	api.HandleFunc("/api/v1/cities", s.handleCities)
	api.HandleFunc("/api/v1/recommend", s.handleRecommend)
	api.HandleFunc("/api/v1/query", s.handleQuery)
	api.HandleFunc("/api/v1/compare", s.handleCompare)
	api.HandleFunc("/api/v1/report", s.handleReport)
	api.HandleFunc("/api/v1/tiles", s.handleTiles)
	api.HandleFunc("/predict", s.handlePredict)
	api.HandleFunc("/reclassify", s.handleReclassify)
	api.HandleFunc("/calculate_change", s.handleCalculateChange)
	protected := platform.APIKeyMiddleware(s.config.APIKey, api)

	mux.Handle("/api/", protected)
	mux.Handle("/predict", protected)
	mux.Handle("/reclassify", protected)
	mux.Handle("/calculate_change", protected)

	return s.requestIDMiddleware(s.corsMiddleware(s.tracingMiddleware(s.loggingMiddleware(mux))))
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.Handler(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.Info("greenery API server starting", zap.Int("port", s.config.Port))
	return s.httpServer.ListenAndServe()
}

// StartWithGracefulShutdown starts server with graceful shutdown handling
func (s *Server) StartWithGracefulShutdown() error {
	errChan := make(chan error, 1)
	go func() {
		if err := s.Start(); err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case <-quit:
		s.logger.Info("shutting down server")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(ctx)
	}
}

// =============================================================================
// MIDDLEWARE
// =============================================================================

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
			r.Header.Set("X-Request-ID", id)
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.String("remote", r.RemoteAddr),
			zap.String("request_id", r.Header.Get("X-Request-ID")),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

func (s *Server) tracingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := s.tracer.Start(r.Context(), r.Method+" "+r.URL.Path)
		defer span.End()
		span.SetAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.route", r.URL.Path),
			attribute.String("http.request_id", r.Header.Get("X-Request-ID")),
		)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r.WithContext(ctx))

		span.SetAttributes(attribute.Int("http.status_code", rec.status))
		if rec.status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(rec.status))
		}
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		allowed := false
		for _, o := range s.config.CORSOrigins {
			if o == "*" || o == origin {
				allowed = true
				break
			}
		}

		if allowed {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key")
			w.Header().Set("Access-Control-Max-Age", "86400")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// =============================================================================
// HEALTH ENDPOINTS
// =============================================================================

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		s.jsonError(w, http.StatusNotFound, "not found")
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]string{
		"message": "Welcome to the Urban Greenery API. Use /api/v1/recommend for city advice and /predict for NDVI predictions.",
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": "1.0.0",
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if s.deps.Store != nil {
		if err := s.deps.Store.Ping(ctx); err != nil {
			s.jsonError(w, http.StatusServiceUnavailable, "database not ready")
			return
		}
	}
	if s.deps.Cities == nil {
		s.jsonError(w, http.StatusServiceUnavailable, "city data not configured")
		return
	}

	s.jsonResponse(w, http.StatusOK, map[string]string{
		"status": "ready",
	})
}

// =============================================================================
// ADVISORY ENDPOINTS
// =============================================================================

// RecommendRequest names a stored city or carries a record inline,
// optionally adjusted by a scenario.
type RecommendRequest struct {
	City     string              `json:"city,omitempty"`
	Record   *climate.CityRecord `json:"record,omitempty"`
	Scenario *scenario.Scenario  `json:"scenario,omitempty"`
}

// RecommendResponse is one workflow run.
type RecommendResponse struct {
	Scenario string `json:"scenario,omitempty"`
	*workflow.Result
}

// QueryRequest is a free-text question about a city.
type QueryRequest struct {
	RecommendRequest
	Question string `json:"question"`
}

// QueryResponse carries the canned answer.
type QueryResponse struct {
	City   string `json:"city"`
	Answer string `json:"answer"`
}

func (s *Server) handleCities(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.jsonError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.deps.Cities == nil {
		s.jsonError(w, http.StatusServiceUnavailable, "city data not configured")
		return
	}
	recs, err := s.deps.Cities.List(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, recs)
}

func (s *Server) handleRecommend(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.jsonError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req RecommendRequest
	if !s.decode(w, r, &req) {
		return
	}
	resp, _, err := s.recommend(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, resp)
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.jsonError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req QueryRequest
	if !s.decode(w, r, &req) {
		return
	}
	resp, rec, err := s.recommend(r.Context(), req.RecommendRequest)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, QueryResponse{
		City:   rec.City,
		Answer: query.Respond(req.Question, rec, &resp.Bundle),
	})
}

// recommend resolves the request's record, applies any scenario and runs
// the pipeline.
func (s *Server) recommend(ctx context.Context, req RecommendRequest) (*RecommendResponse, climate.CityRecord, error) {
	rec, err := s.resolve(ctx, req)
	if err != nil {
		return nil, climate.CityRecord{}, err
	}
	resp := &RecommendResponse{}
	if req.Scenario != nil {
		if rec, err = req.Scenario.Apply(rec); err != nil {
			return nil, climate.CityRecord{}, err
		}
		resp.Scenario = req.Scenario.Label()
	}
	res, err := s.deps.Pipeline.Run(ctx, rec)
	if err != nil {
		return nil, climate.CityRecord{}, err
	}
	resp.Result = res
	return resp, rec, nil
}

func (s *Server) resolve(ctx context.Context, req RecommendRequest) (climate.CityRecord, error) {
	if req.Record != nil {
		return *req.Record, nil
	}
	if strings.TrimSpace(req.City) == "" {
		return climate.CityRecord{}, gerrors.NewMissingFieldError("city", "")
	}
	if s.deps.Cities == nil {
		return climate.CityRecord{}, gerrors.NewUnknownCityError(req.City)
	}
	return s.deps.Cities.Get(ctx, req.City)
}

func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.jsonError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.deps.Cities == nil {
		s.jsonError(w, http.StatusServiceUnavailable, "city data not configured")
		return
	}
	recs, err := s.deps.Cities.List(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	if names := platform.SplitList(r.URL.Query().Get("cities")); len(names) > 0 {
		recs, err = s.pick(r.Context(), names)
		if err != nil {
			s.writeError(w, err)
			return
		}
	}
	rows := report.Compare(recs, s.deps.Pipeline.RunAll(r.Context(), recs))
	if r.URL.Query().Get("rank") == "true" {
		rows = report.Rank(rows)
	}
	s.jsonResponse(w, http.StatusOK, rows)
}

func (s *Server) pick(ctx context.Context, names []string) ([]climate.CityRecord, error) {
	recs := make([]climate.CityRecord, 0, len(names))
	for _, name := range names {
		rec, err := s.deps.Cities.Get(ctx, name)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.jsonError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	q := r.URL.Query()
	resp, rec, err := s.recommend(r.Context(), RecommendRequest{City: q.Get("city")})
	if err != nil {
		s.writeError(w, err)
		return
	}

	switch format := q.Get("format"); format {
	case "", "md", "markdown":
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		w.Header().Set("Content-Disposition",
			fmt.Sprintf("attachment; filename=%s", report.FileName("report", rec.City, "md")))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(report.Markdown(rec, resp.Result)))
	case "json":
		body, err := report.NewExport(rec, resp.Result, s.clock()).JSON()
		if err != nil {
			s.writeError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Disposition",
			fmt.Sprintf("attachment; filename=%s", report.FileName("data", rec.City, "json")))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(body)
	default:
		s.jsonError(w, http.StatusBadRequest, fmt.Sprintf("unsupported format %q (use md or json)", format))
	}
}

// =============================================================================
// NDVI ENDPOINTS
// =============================================================================

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.jsonError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.deps.Predictor == nil {
		s.jsonError(w, http.StatusServiceUnavailable, "Model is not loaded. Cannot make predictions.")
		return
	}
	var f ndvi.Features
	if !s.decode(w, r, &f) {
		return
	}
	pred, err := s.deps.Predictor.Predict(r.Context(), f)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, pred)
}

func (s *Server) handleTiles(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.jsonError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.deps.Tiles == nil {
		s.jsonError(w, http.StatusServiceUnavailable, "tile index not loaded")
		return
	}
	q := r.URL.Query()
	lat, err := strconv.ParseFloat(q.Get("lat"), 64)
	if err != nil {
		s.writeError(w, gerrors.NewInvalidFieldError("lat", err.Error()))
		return
	}
	lon, err := strconv.ParseFloat(q.Get("lon"), 64)
	if err != nil {
		s.writeError(w, gerrors.NewInvalidFieldError("lon", err.Error()))
		return
	}
	year, err := strconv.Atoi(q.Get("year"))
	if err != nil {
		s.writeError(w, gerrors.NewInvalidFieldError("year", err.Error()))
		return
	}
	tile, ok := s.deps.Tiles.FindTile(lat, lon, year)
	if !ok {
		s.jsonError(w, http.StatusNotFound, fmt.Sprintf("no tile for (%g, %g) in %d", lat, lon, year))
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"tile":       tile,
		"image_path": tile.ImagePath(),
	})
}

func (s *Server) handleReclassify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.jsonError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	grids, names, ok := s.readRasters(w, r, "file")
	if !ok {
		return
	}
	classes := raster.Reclassify(grids[0])
	png := strings.TrimSuffix(names[0], ".tif") + ".png"
	s.pngResponse(w, classes, raster.ClassColorMap, "reclassified_"+png)
}

func (s *Server) handleCalculateChange(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.jsonError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	grids, _, ok := s.readRasters(w, r, "file_2018", "file_2024")
	if !ok {
		return
	}
	diff, err := raster.Difference(grids[1], grids[0])
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.pngResponse(w, diff, raster.ChangeColorMap(raster.DefaultChangeNorm), "change_map.png")
}

// readRasters decodes the named multipart .tif uploads in order.
func (s *Server) readRasters(w http.ResponseWriter, r *http.Request, fields ...string) ([]*raster.Grid, []string, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxRequestSize)
	if err := r.ParseMultipartForm(s.config.MaxRequestSize); err != nil {
		s.jsonError(w, http.StatusBadRequest, fmt.Sprintf("invalid upload: %v", err))
		return nil, nil, false
	}

	headers := make([]*multipart.FileHeader, len(fields))
	for i, field := range fields {
		files := r.MultipartForm.File[field]
		if len(files) == 0 {
			s.writeError(w, gerrors.NewMissingFieldError(field, ""))
			return nil, nil, false
		}
		if !strings.HasSuffix(files[0].Filename, ".tif") {
			s.jsonError(w, http.StatusBadRequest, "Invalid file format. Please upload a .tif file.")
			return nil, nil, false
		}
		headers[i] = files[0]
	}

	grids := make([]*raster.Grid, len(headers))
	names := make([]string, len(headers))
	for i, h := range headers {
		f, err := h.Open()
		if err != nil {
			s.writeError(w, err)
			return nil, nil, false
		}
		g, err := raster.DecodeTIFF(f, nil)
		f.Close()
		if err != nil {
			s.writeError(w, err)
			return nil, nil, false
		}
		grids[i] = g
		names[i] = h.Filename
	}
	return grids, names, true
}

// =============================================================================
// HELPERS
// =============================================================================

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxRequestSize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.jsonError(w, http.StatusBadRequest, fmt.Sprintf("invalid request: %v", err))
		return false
	}
	return true
}

func (s *Server) pngResponse(w http.ResponseWriter, g *raster.Grid, cmap raster.ColorMap, filename string) {
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%s", filename))
	w.WriteHeader(http.StatusOK)
	if err := raster.WritePNG(w, g, cmap, 1); err != nil {
		s.logger.Error("png encode failed", zap.Error(err))
	}
}

// StatusFor maps an error to its HTTP status.
func StatusFor(err error) int {
	switch gerrors.CodeOf(err) {
	case gerrors.ErrCodeMissingField, gerrors.ErrCodeInvalidField,
		gerrors.ErrCodeUnknownLocation, gerrors.ErrCodeRasterShapeMismatch:
		return http.StatusBadRequest
	case gerrors.ErrCodeUnknownCity:
		return http.StatusNotFound
	case gerrors.ErrCodeRasterDecodeFailed:
		return http.StatusUnprocessableEntity
	}
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", zap.Error(err))
	}
	var ge *gerrors.GreeneryError
	if stderrors.As(err, &ge) {
		s.jsonResponse(w, status, map[string]any{
			"error": ge.Message,
			"code":  ge.Code,
			"field": ge.Field,
		})
		return
	}
	s.jsonError(w, status, err.Error())
}

func (s *Server) jsonResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (s *Server) jsonError(w http.ResponseWriter, status int, message string) {
	s.jsonResponse(w, status, map[string]string{
		"error": message,
	})
}
