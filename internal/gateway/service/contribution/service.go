package contribution

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	contrib "contactdir/internal/contribution"
	"contactdir/internal/githost"
	"contactdir/internal/logging"
)

// runTTL bounds how long finished runs stay queryable.
const runTTL = time.Hour

// Catalog answers whether a company id is already published.
type Catalog interface {
	Has(id string) bool
}

type Config struct {
	TestMode bool
	Upstream githost.Upstream
	Live     githost.LiveConfig
	Sim      githost.SimulatedConfig

	// DetectOwner enables the owner short-circuit in test mode too.
	DetectOwner bool
	// Timing overrides the mode's default polling and pacing.
	Timing *contrib.Timing
}

// Service runs submissions against the transport picked at construction.
type Service struct {
	transport githost.Transport
	store     *githost.SimStore
	catalog   Catalog
	timing    contrib.Timing
	opts      []contrib.Option
	logger    *zap.Logger
	now       func() time.Time

	mu   sync.Mutex
	runs map[string]*runState
}

type runState struct {
	companyID string
	state     contrib.State
	startedAt time.Time
	updatedAt time.Time
}

// RunStatus is the last known state of a run.
type RunStatus struct {
	RunID     string            `json:"runId"`
	CompanyID string            `json:"companyId"`
	State     contrib.StateView `json:"state"`
	StartedAt time.Time         `json:"startedAt"`
	UpdatedAt time.Time         `json:"updatedAt"`
}

// New selects the simulated transport over a process-wide SimStore in test
// mode and the GitHub transport otherwise.
func New(cfg Config, catalog Catalog, logger *zap.Logger) *Service {
	logger = logging.OrNop(logger)
	if cfg.TestMode {
		store := githost.NewSimStore(cfg.Upstream)
		simCfg := cfg.Sim
		simCfg.Logger = logger
		s := newService(githost.NewSimulated(store, simCfg), catalog, logger, contrib.SimulatedTiming())
		s.store = store
		if cfg.DetectOwner {
			s.opts = append(s.opts, contrib.WithOwnerDetection())
		}
		if cfg.Timing != nil {
			s.timing = *cfg.Timing
		}
		logger.Info("contributions use the simulated host", zap.String("upstream", cfg.Upstream.FullName()))
		return s
	}
	liveCfg := cfg.Live
	liveCfg.Upstream = cfg.Upstream
	liveCfg.Logger = logger
	s := newService(githost.NewLive(liveCfg), catalog, logger, contrib.LiveTiming())
	if cfg.Timing != nil {
		s.timing = *cfg.Timing
	}
	logger.Info("contributions use the live host", zap.String("upstream", cfg.Upstream.FullName()))
	return s
}

// NewWithTransport wraps an existing transport. opts are applied after the
// service defaults.
func NewWithTransport(t githost.Transport, catalog Catalog, logger *zap.Logger, opts ...contrib.Option) *Service {
	timing := contrib.LiveTiming()
	if t.Simulated() {
		timing = contrib.SimulatedTiming()
	}
	s := newService(t, catalog, logger, timing)
	if sim, ok := t.(*githost.SimulatedTransport); ok {
		s.store = sim.Store()
	}
	s.opts = append(s.opts, opts...)
	return s
}

func newService(t githost.Transport, catalog Catalog, logger *zap.Logger, timing contrib.Timing) *Service {
	return &Service{
		transport: t,
		catalog:   catalog,
		timing:    timing,
		logger:    logging.OrNop(logger).Named("contribution"),
		now:       time.Now,
		runs:      make(map[string]*runState),
	}
}

func (s *Service) Transport() githost.Transport { return s.transport }

// SimStore is nil unless the service runs in test mode.
func (s *Service) SimStore() *githost.SimStore { return s.store }

func (s *Service) Close() error {
	if live, ok := s.transport.(*githost.LiveTransport); ok {
		return live.Close()
	}
	return nil
}

// Submit validates sub against the catalog and runs it to a terminal state.
// The returned error is always a *contrib.ValidationError. Once started, a
// run ignores cancellation of ctx: a client that disconnects can read the
// outcome from Status. Each remote call keeps its own timeout.
func (s *Service) Submit(ctx context.Context, cred githost.Credential, sub contrib.Submission, emit contrib.Emit) (string, contrib.State, error) {
	runID, ok := contrib.RunIDFromContext(ctx)
	if !ok || strings.TrimSpace(runID) == "" {
		runID = uuid.NewString()
	}
	if err := s.validate(sub); err != nil {
		s.logger.Info("submission rejected", zap.String("run_id", runID), zap.Error(err))
		return runID, nil, err
	}

	s.track(runID, sub.Company.ID, contrib.Idle{})
	pipeline := contrib.NewPipeline(s.transport, s.pipelineOptions()...)
	runCtx := contrib.WithRunID(context.WithoutCancel(ctx), runID)
	final, err := pipeline.Run(runCtx, cred, sub, func(st contrib.State) {
		s.track(runID, sub.Company.ID, st)
		if emit != nil {
			emit(st)
		}
	})
	if err != nil {
		return runID, nil, err
	}
	s.logger.Info("contribution finished",
		zap.String("run_id", runID),
		zap.String("company", sub.Company.ID),
		zap.String("phase", string(final.Phase())))
	return runID, final, nil
}

func (s *Service) pipelineOptions() []contrib.Option {
	opts := []contrib.Option{
		contrib.WithTiming(s.timing),
		contrib.WithLogger(s.logger),
	}
	return append(opts, s.opts...)
}

func (s *Service) validate(sub contrib.Submission) error {
	if err := sub.Check(); err != nil {
		return err
	}
	id := strings.TrimSpace(sub.Company.ID)
	if err := sub.Company.Validate(); err != nil {
		return contrib.NewValidationError("%s", err.Error())
	}
	if s.catalog == nil {
		return nil
	}
	exists := s.catalog.Has(id)
	switch {
	case sub.IsEdit && !exists:
		return contrib.NewValidationError("company %q does not exist; submit it as a new company", id)
	case !sub.IsEdit && exists:
		return contrib.NewValidationError("company %q already exists; submit an edit instead", id)
	}
	return nil
}

func (s *Service) track(runID, companyID string, st contrib.State) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.pruneLocked(now)
	rs, ok := s.runs[runID]
	if !ok {
		rs = &runState{companyID: companyID, startedAt: now}
		s.runs[runID] = rs
	}
	rs.state = st
	rs.updatedAt = now
}

func (s *Service) pruneLocked(now time.Time) {
	for id, rs := range s.runs {
		if rs.state != nil && rs.state.Terminal() && now.Sub(rs.updatedAt) > runTTL {
			delete(s.runs, id)
		}
	}
}

// Status returns the last state recorded for runID.
func (s *Service) Status(runID string) (RunStatus, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rs, ok := s.runs[strings.TrimSpace(runID)]
	if !ok {
		return RunStatus{}, false
	}
	return RunStatus{
		RunID:     runID,
		CompanyID: rs.companyID,
		State:     contrib.View(rs.state),
		StartedAt: rs.startedAt,
		UpdatedAt: rs.updatedAt,
	}, true
}
