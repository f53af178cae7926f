package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/susume/internal/copurchase"
	"github.com/hyperjump/susume/internal/engine"
	"github.com/hyperjump/susume/internal/feature"
	"github.com/hyperjump/susume/internal/models"
	"github.com/hyperjump/susume/internal/storage"
)

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	stats, err := s.syncer.Sync(r.Context())
	if err != nil {
		s.logger.Error("sync failed", zap.Error(err))
		s.respondError(w, statusFor(err), err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, stats)
}

func (s *Server) handleTrain(w http.ResponseWriter, r *http.Request) {
	stats, err := s.trainer.Train(r.Context())
	if err != nil {
		s.logger.Error("training failed", zap.Error(err))
		s.respondError(w, statusFor(err), err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, stats)
}

// handleRetrain runs the full workflow: refresh the analytics copy, then
// train on it.
func (s *Server) handleRetrain(w http.ResponseWriter, r *http.Request) {
	syncStats, err := s.syncer.Sync(r.Context())
	if err != nil {
		s.logger.Error("retrain: sync failed", zap.Error(err))
		s.respondError(w, statusFor(err), err.Error())
		return
	}
	trainStats, err := s.trainer.Train(r.Context())
	if err != nil {
		s.logger.Error("retrain: training failed", zap.Error(err))
		s.respondError(w, statusFor(err), err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"sync":  syncStats,
		"train": trainStats,
	})
}

func (s *Server) handleSimilar(w http.ResponseWriter, r *http.Request) {
	s.handleLookup(w, r, (*engine.Generation).Similar)
}

func (s *Server) handleCoPurchased(w http.ResponseWriter, r *http.Request) {
	s.handleLookup(w, r, (*engine.Generation).CoPurchased)
}

// handleLookup is the shared read path: resolve the live generation once,
// parse id and limit, delegate to the model. An empty result is a valid
// answer and returns 200 with an empty list.
func (s *Server) handleLookup(
	w http.ResponseWriter,
	r *http.Request,
	query func(*engine.Generation, int64, int) ([]models.Recommendation, error),
) {
	productID, err := strconv.ParseInt(chi.URLParam(r, "productID"), 10, 64)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid product id")
		return
	}
	limit := s.parseLimit(r)

	gen, err := s.store.Live()
	if err != nil {
		s.respondError(w, statusFor(err), err.Error())
		return
	}
	recs, err := query(gen, productID, limit)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			s.logger.Error("lookup failed", zap.Int64("product_id", productID), zap.Error(err))
		}
		s.respondError(w, statusFor(err), err.Error())
		return
	}
	if recs == nil {
		recs = []models.Recommendation{}
	}
	s.respondJSON(w, http.StatusOK, recs)
}

// parseLimit reads the limit query parameter, falling back to the configured
// default and clamping to the configured maximum. Oversized limits are
// clamped, not rejected, to bound response size regardless of caller input.
func (s *Server) parseLimit(r *http.Request) int {
	limit := s.serving.DefaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > s.serving.MaxLimit {
		limit = s.serving.MaxLimit
	}
	return limit
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"trainer_state": s.trainer.State(),
	}

	if gen, err := s.store.Live(); err == nil {
		resp["live_generation"] = map[string]interface{}{
			"generation_id":     gen.ID,
			"run_id":            gen.RunID,
			"created_at":        gen.CreatedAt.Format(time.RFC3339),
			"product_count":     len(gen.Products),
			"basket_count":      gen.BasketCount,
			"feature_dimension": gen.Scheme.Dimension(),
		}
	} else {
		resp["live_generation"] = nil
	}

	if products, orders, err := s.analytics.Counts(r.Context()); err == nil {
		resp["analytics"] = map[string]int64{"products": products, "orders": orders}
	} else {
		s.logger.Error("status: analytics counts failed", zap.Error(err))
		resp["analytics_error"] = err.Error()
	}

	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// statusFor maps the engine's error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrModelUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, engine.ErrTrainingInProgress):
		return http.StatusConflict
	case errors.Is(err, storage.ErrSnapshotUnavailable):
		return http.StatusBadGateway
	case errors.Is(err, feature.ErrEmptyCatalog), errors.Is(err, copurchase.ErrEmptyBasketSet):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("failed to encode response", zap.Error(err))
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
