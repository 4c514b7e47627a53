// Package server exposes the duplicate engine over HTTP: a server-sent
// event stream for whole-gallery analysis plus small JSON endpoints.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"

	dupefy "github.com/anatolykoptev/go-dupefy"
	"github.com/anatolykoptev/go-dupefy/gallery"
	"github.com/anatolykoptev/go-dupefy/immich"
)

const defaultDownloadConcurrency = 8

// AssetSource resolves asset ids to image bytes, metadata and display URLs.
// *immich.Client implements it.
type AssetSource interface {
	Fetch(ctx context.Context, id string) (*immich.Asset, error)
	AssetInfo(ctx context.Context, id string) (*immich.AssetInfo, error)
	ThumbnailURL(id string) string
}

// Options are the collaborators injected into a Server.
type Options struct {
	Engine              *dupefy.Engine // required
	Store               gallery.Store  // required
	Assets              AssetSource    // required
	DownloadConcurrency int            // default: 8
	AllowedOrigins      []string       // CORS origins (default: "*")
}

// Server holds the HTTP handlers. Construct it with New.
type Server struct {
	engine              *dupefy.Engine
	store               gallery.Store
	assets              AssetSource
	downloadConcurrency int
	allowedOrigins      []string
}

// New returns a Server for opts.
func New(opts Options) *Server {
	if opts.DownloadConcurrency <= 0 {
		opts.DownloadConcurrency = defaultDownloadConcurrency
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	return &Server{
		engine:              opts.Engine,
		store:               opts.Store,
		assets:              opts.Assets,
		downloadConcurrency: opts.DownloadConcurrency,
		allowedOrigins:      opts.AllowedOrigins,
	}
}

// Handler returns the routed handler with middleware installed.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	}))

	r.Route("/api/duplicates", func(r chi.Router) {
		r.Post("/analyze-album/{galleryID}", s.analyzeAlbum)
		r.Post("/find-similar", s.findSimilar)
		r.Get("/stats", s.stats)
		r.Post("/stats/reset", s.resetStats)
	})
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("OK"))
	})
	return r
}

// ListenAndServe serves until ctx ends, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		slog.Info("dupefy: listening", "addr", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	slog.Info("dupefy: server stopped")
	return nil
}

// analyzeAlbum streams a whole-gallery analysis as server-sent events.
func (s *Server) analyzeAlbum(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	galleryID := chi.URLParam(r, "galleryID")

	stream, err := newSSEWriter(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	_ = stream.send(eventStart, map[string]string{"gallery_id": galleryID})

	params, err := paramsFromQuery(r)
	if err != nil {
		_ = stream.send(eventError, errorData(err))
		return
	}

	assets, err := s.store.Assets(ctx, galleryID, nil)
	if err != nil {
		_ = stream.send(eventError, s.failure(ctx, "load gallery", err))
		return
	}
	if len(assets) == 0 {
		_ = stream.send(eventError, map[string]string{"error": "no images in gallery"})
		return
	}

	rep := dupefy.MonotonicReporter(stream)
	rep.Report(downloadStart, "Analyzing "+strconv.Itoa(len(assets))+" images")

	records, downloadErrors, err := s.load(ctx, assets, rep)
	if err != nil {
		slog.Info("dupefy: analysis aborted during download", "gallery", galleryID, "error", err.Error())
		return
	}
	if len(records) == 0 {
		_ = stream.send(eventError, map[string]string{"error": "could not download any image"})
		return
	}

	res, err := s.engine.Run(ctx, records, params, dupefy.ScaleReporter(rep, downloadEnd, 100))
	if err != nil {
		if errors.Is(err, dupefy.ErrCancelled) {
			slog.Info("dupefy: analysis cancelled", "gallery", galleryID)
			return
		}
		_ = stream.send(eventError, s.failure(ctx, "analyze", err))
		return
	}

	_ = stream.send(eventComplete, completeData(res, downloadErrors))
}

// findSimilarRequest is the body of POST /find-similar.
type findSimilarRequest struct {
	GalleryID  string   `json:"gallery_id"`
	AssetIDs   []string `json:"asset_ids"`
	Threshold  *float64 `json:"threshold"`
	TimeWindow *float64 `json:"time_window"`
}

// findSimilar analyzes a selection (or the whole gallery) synchronously.
func (s *Server) findSimilar(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req findSimilarRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.GalleryID == "" {
		writeError(w, http.StatusBadRequest, "gallery_id is required")
		return
	}
	params := dupefy.DefaultParams()
	if req.Threshold != nil {
		params.Threshold = *req.Threshold
	}
	if req.TimeWindow != nil {
		params.TimeWindowHours = *req.TimeWindow
	}
	if err := params.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	assets, err := s.store.Assets(ctx, req.GalleryID, req.AssetIDs)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, s.failure(ctx, "load gallery", err))
		return
	}

	records, downloadErrors, err := s.load(ctx, assets, dupefy.NopReporter{})
	if err != nil {
		return // client went away
	}

	res, err := s.engine.Run(ctx, records, params, nil)
	if err != nil {
		var ipe *dupefy.InvalidParameterError
		switch {
		case errors.Is(err, dupefy.ErrCancelled):
			return
		case errors.As(err, &ipe):
			writeError(w, http.StatusBadRequest, ipe.Error())
		default:
			writeJSON(w, http.StatusInternalServerError, s.failure(ctx, "analyze", err))
		}
		return
	}

	body := completeData(res, downloadErrors)
	body["success"] = true
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) stats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"stats":   s.engine.Stats().Snapshot(),
	})
}

func (s *Server) resetStats(w http.ResponseWriter, _ *http.Request) {
	s.engine.Stats().Reset()
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// paramsFromQuery reads ?threshold= and ?time_window= with defaults.
func paramsFromQuery(r *http.Request) (dupefy.Params, error) {
	p := dupefy.DefaultParams()
	q := r.URL.Query()
	if v := q.Get("threshold"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return p, &dupefy.InvalidParameterError{Param: "threshold", Value: v, Reason: "not a number"}
		}
		p.Threshold = f
	}
	if v := q.Get("time_window"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return p, &dupefy.InvalidParameterError{Param: "time_window_hours", Value: v, Reason: "not a number"}
		}
		p.TimeWindowHours = f
	}
	return p, p.Validate()
}

func completeData(res *dupefy.Result, downloadErrors int) map[string]any {
	groups := res.Groups
	if groups == nil {
		groups = []dupefy.DuplicateGroup{}
	}
	return map[string]any{
		"groups":          groups,
		"total_groups":    len(groups),
		"total_images":    res.Total,
		"analyzed_images": res.Analyzed,
		"skipped":         res.Skipped,
		"download_errors": downloadErrors,
	}
}

// failure logs err and returns the client-facing body. Parameter errors are
// passed through; anything else gets a generic message with a correlation id.
func (s *Server) failure(ctx context.Context, stage string, err error) map[string]any {
	var ipe *dupefy.InvalidParameterError
	if errors.As(err, &ipe) {
		return errorData(ipe)
	}

	var ie *dupefy.InternalError
	if !errors.As(err, &ie) {
		id := middleware.GetReqID(ctx)
		if id == "" {
			id = uuid.NewString()
		}
		ie = &dupefy.InternalError{CorrelationID: id, Err: err}
		slog.Error("dupefy: request failed", "stage", stage, "request_id", ie.CorrelationID, "error", err.Error())
	}
	return map[string]any{
		"success":        false,
		"error":          "internal error",
		"correlation_id": ie.CorrelationID,
	}
}

func errorData(err error) map[string]any {
	return map[string]any{"success": false, "error": err.Error()}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"success": false, "error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("dupefy: write response", "error", err.Error())
	}
}
