package engine

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/susume/internal/copurchase"
	"github.com/hyperjump/susume/internal/feature"
	"github.com/hyperjump/susume/internal/models"
	"github.com/hyperjump/susume/internal/similarity"
	"github.com/hyperjump/susume/internal/storage"
)

// ErrTrainingInProgress indicates a second concurrent train request; runs are
// rejected rather than queued to bound resource usage.
var ErrTrainingInProgress = errors.New("training already in progress")

// State is the training state machine position, reported via the status API.
type State string

// Training states. Failed is terminal for a run, not for the service: the
// previous live generation keeps serving.
const (
	StateIdle                State = "idle"
	StateSyncing             State = "syncing"
	StateVectorizing         State = "vectorizing"
	StateComputingSimilarity State = "computing_similarity"
	StateComputingCoPurchase State = "computing_copurchase"
	StatePersisting          State = "persisting"
	StateReady               State = "ready"
	StateFailed              State = "failed"
)

// Trainer runs the training pipeline: snapshot read, vectorization, both
// models, artifact persistence, and the atomic live swap. At most one run is
// in flight at a time; there is no cancellation, a run completes or fails.
type Trainer struct {
	analytics storage.AnalyticsStore
	store     *Store
	modelDir  string
	topK      int
	logger    *zap.Logger

	inFlight atomic.Bool
	state    atomic.Value // State
	lastID   atomic.Uint64
}

// TrainerOption configures a Trainer.
type TrainerOption func(*Trainer)

// WithLogger sets a logger for run progress.
func WithLogger(l *zap.Logger) TrainerOption {
	return func(t *Trainer) { t.logger = l }
}

// WithPrecomputedTopK enables the similarity neighbor cache for built
// generations (0 disables it).
func WithPrecomputedTopK(k int) TrainerOption {
	return func(t *Trainer) { t.topK = k }
}

// WithLastGenerationID seeds the generation counter, keeping ids monotonic
// across restarts when an artifact was reloaded.
func WithLastGenerationID(id uint64) TrainerOption {
	return func(t *Trainer) { t.lastID.Store(id) }
}

// NewTrainer creates a trainer publishing into store and persisting artifacts
// under modelDir.
func NewTrainer(analytics storage.AnalyticsStore, store *Store, modelDir string, opts ...TrainerOption) *Trainer {
	t := &Trainer{
		analytics: analytics,
		store:     store,
		modelDir:  modelDir,
		logger:    zap.NewNop(),
	}
	t.state.Store(StateIdle)
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// State returns the current training state.
func (t *Trainer) State() State {
	return t.state.Load().(State)
}

// Train executes one full training run and publishes the resulting
// generation. Returns ErrTrainingInProgress when a run is already in flight.
// Any failure leaves the previously live generation serving untouched.
func (t *Trainer) Train(ctx context.Context) (*models.TrainStats, error) {
	if !t.inFlight.CompareAndSwap(false, true) {
		return nil, ErrTrainingInProgress
	}
	defer t.inFlight.Store(false)

	start := time.Now()
	runID := uuid.New().String()
	log := t.logger.With(zap.String("run_id", runID))
	log.Info("training run started")

	t.setState(StateSyncing)
	snap, err := t.analytics.Snapshot(ctx)
	if err != nil {
		return nil, t.fail(log, "snapshot", err)
	}

	t.setState(StateVectorizing)
	scheme, vectors, err := feature.Vectorize(snap.Products)
	if err != nil {
		return nil, t.fail(log, "vectorize", err)
	}

	products := make(map[int64]models.ProductRecord, len(snap.Products))
	ratings := make(map[int64]float64, len(snap.Products))
	for _, p := range snap.Products {
		products[p.ID] = p
		ratings[p.ID] = p.Rating
	}

	t.setState(StateComputingSimilarity)
	var simOpts []similarity.Option
	if t.topK > 0 {
		simOpts = append(simOpts, similarity.WithPrecomputedTopK(t.topK))
	}
	sim := similarity.New(vectors, ratings, simOpts...)

	t.setState(StateComputingCoPurchase)
	cop, err := copurchase.Build(snap.Baskets, ratings)
	if err != nil {
		return nil, t.fail(log, "mine co-purchases", err)
	}

	gen := &Generation{
		ID:          t.nextGenerationID(),
		RunID:       runID,
		CreatedAt:   time.Now(),
		Scheme:      scheme,
		Similarity:  sim,
		CoPurchase:  cop,
		Products:    products,
		BasketCount: len(snap.Baskets),
	}

	t.setState(StatePersisting)
	path, err := Save(t.modelDir, gen)
	if err != nil {
		return nil, t.fail(log, "persist", err)
	}

	t.store.SwapIfNewer(gen)
	t.lastID.Store(gen.ID)
	if err := Prune(t.modelDir, gen.ID); err != nil {
		// Stale artifacts are a disk-space concern, not a correctness one.
		log.Warn("pruning old artifacts failed", zap.Error(err))
	}
	t.setState(StateReady)

	log.Info("training run completed",
		zap.Uint64("generation", gen.ID),
		zap.String("artifact", path),
		zap.Int("products", len(products)),
		zap.Int("baskets", gen.BasketCount),
		zap.Int("feature_dimension", scheme.Dimension()),
		zap.Duration("elapsed", time.Since(start)),
	)
	return &models.TrainStats{
		GenerationID:     gen.ID,
		RunID:            runID,
		ProductCount:     len(products),
		BasketCount:      gen.BasketCount,
		FeatureDimension: scheme.Dimension(),
		TrainingSeconds:  time.Since(start).Seconds(),
		CreatedAt:        gen.CreatedAt,
	}, nil
}

// nextGenerationID returns one past the newest generation this process has
// seen, whether trained locally or hot-reloaded from an artifact.
func (t *Trainer) nextGenerationID() uint64 {
	last := t.lastID.Load()
	if live, err := t.store.Live(); err == nil && live.ID > last {
		last = live.ID
	}
	return last + 1
}

func (t *Trainer) setState(s State) {
	t.state.Store(s)
}

func (t *Trainer) fail(log *zap.Logger, stage string, err error) error {
	t.setState(StateFailed)
	log.Error("training run failed", zap.String("stage", stage), zap.Error(err))
	return fmt.Errorf("%s: %w", stage, err)
}
