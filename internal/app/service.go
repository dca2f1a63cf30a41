// Package service wires sessions, the rep event pipeline and the event store
// into the operations exposed by the HTTP API.
package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	eventqueue "github.com/okian/repsense/internal/adapters/mq/queue"
	workerpool "github.com/okian/repsense/internal/adapters/mq/worker"
	"github.com/okian/repsense/internal/adapters/repository"
	"github.com/okian/repsense/internal/config"
	"github.com/okian/repsense/internal/domain/dedupe"
	"github.com/okian/repsense/internal/domain/model"
	"github.com/okian/repsense/internal/domain/samples"
	"github.com/okian/repsense/internal/domain/session"
	"github.com/okian/repsense/internal/domain/smoothing"
	"github.com/okian/repsense/pkg/logger"
	"github.com/okian/repsense/pkg/metrics"
)

// storeWriteTimeout bounds one rep event write by a worker.
const storeWriteTimeout = 5 * time.Second

// SessionInfo describes a live session.
type SessionInfo struct {
	session.Stats
	CreatedAt time.Time `json:"created_at"`
}

// FrameResult is the outcome of submitting one frame.
type FrameResult struct {
	Labels    []string `json:"labels"`
	Duplicate bool     `json:"duplicate"`
}

// Stats is a snapshot of service state.
type Stats struct {
	Started        bool     `json:"started"`
	Sessions       int      `json:"sessions"`
	MaxSessions    int      `json:"max_sessions"`
	QueueLength    int      `json:"queue_length"`
	QueueCapacity  int      `json:"queue_capacity"`
	Workers        int      `json:"workers"`
	DedupeSize     int64    `json:"dedupe_size"`
	SamplesLoaded  int      `json:"samples_loaded"`
	SampleClasses  []string `json:"sample_classes"`
	CounterClasses []string `json:"counter_classes"`
}

// entry guards one controller. Controllers are not safe for concurrent use,
// so every call goes through mu.
type entry struct {
	mu        sync.Mutex
	ctrl      *session.Controller
	createdAt time.Time
	closed    bool
}

// Service owns all live sessions and the rep event pipeline.
type Service struct {
	mu sync.RWMutex

	cfg      *config.Config
	sessions map[string]*entry

	store      repository.Store
	ownStore   bool
	deduper    dedupe.Deduper
	eventQueue *eventqueue.InMemoryQueue
	workerPool *workerpool.Pool
	samples    *samples.Set

	now    func() time.Time
	cancel context.CancelFunc

	started bool
	logger  logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithConfig replaces the default configuration.
func WithConfig(cfg *config.Config) Option {
	return func(s *Service) {
		if cfg != nil {
			s.cfg = cfg
		}
	}
}

// WithStore uses st instead of opening one from the configured DSN. The
// service does not close a store it did not open.
func WithStore(st repository.Store) Option {
	return func(s *Service) {
		s.store = st
	}
}

// WithClock sets the time source for sessions and frames without timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(logger logger.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates a new service. Call Start before use.
func New(opts ...Option) *Service {
	s := &Service{
		cfg:      config.New(),
		sessions: make(map[string]*entry),
		now:      time.Now,
		logger:   logger.Get().Named("service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start opens the store, loads reference samples and starts the workers.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if err := s.cfg.Validate(); err != nil {
		return err
	}

	s.logger.Info(ctx, "starting repsense service...")

	if s.store == nil || s.ownStore {
		st, err := repository.Open(ctx, s.cfg.StoreDSN, repository.WithLogger(s.logger.Named("repository")))
		if err != nil {
			return err
		}
		s.store = st
		s.ownStore = true
	}

	set, err := samples.LoadFile(ctx, s.cfg.SamplesPath)
	if err != nil {
		s.logger.Warn(ctx, "reference samples unavailable", logger.Error(err))
		set = samples.Empty()
	}
	s.samples = set
	for _, class := range set.Classes() {
		metrics.UpdateSamplesLoaded(class, set.Count(class))
	}
	if set.Len() > 0 {
		for _, class := range set.Missing(s.counterClasses()) {
			s.logger.Warn(ctx, "no reference samples for tracked class", logger.String("class", class))
		}
	}

	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.cfg.DedupeSize))
	s.eventQueue = eventqueue.NewInMemoryQueue(eventqueue.WithCapacity(s.cfg.EventQueueSize))
	s.workerPool = workerpool.NewPool(s.cfg.WorkerCount, s.eventQueue, s.store,
		workerpool.WithLogger(s.logger.Named("worker")),
		workerpool.WithAppendTimeout(storeWriteTimeout))

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.workerPool.Start(runCtx)

	s.started = true
	s.logger.Info(ctx, "repsense service started",
		logger.Int("workers", s.workerPool.Size()),
		logger.Int("queue_size", s.cfg.EventQueueSize),
		logger.Int("samples", set.Len()),
		logger.Bool("stream_mode", s.cfg.StreamMode),
	)
	return nil
}

// Stop drains pending rep events into the store and closes it. Live sessions
// are dropped.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.logger.Info(ctx, "stopping repsense service...")

	var firstErr error
	if err := s.workerPool.Shutdown(ctx); err != nil {
		s.logger.Error(ctx, "worker pool shutdown failed", logger.Error(err))
		firstErr = err
	}
	s.cancel()

	if s.ownStore {
		if err := s.store.Close(); err != nil {
			s.logger.Error(ctx, "closing store failed", logger.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	for id, e := range s.sessions {
		e.mu.Lock()
		e.closed = true
		e.mu.Unlock()
		delete(s.sessions, id)
		metrics.RecordSessionClosed()
	}
	metrics.UpdateActiveSessions(0)

	s.started = false
	s.logger.Info(ctx, "repsense service stopped")
	return firstErr
}

// CreateSession starts a session. A nil streamMode uses the configured mode.
func (s *Service) CreateSession(ctx context.Context, streamMode *bool) (SessionInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return SessionInfo{}, ErrNotStarted
	}
	if s.cfg.MaxSessions > 0 && len(s.sessions) >= s.cfg.MaxSessions {
		metrics.RecordErrorByComponent("service", "session_limit")
		return SessionInfo{}, fmt.Errorf("%w: %d live sessions", ErrSessionLimit, len(s.sessions))
	}

	stream := s.cfg.StreamMode
	if streamMode != nil {
		stream = *streamMode
	}
	opts, err := SessionOptions(s.cfg)
	if err != nil {
		return SessionInfo{}, err
	}
	opts = append(opts,
		session.WithStreamMode(stream),
		session.WithClock(s.now),
		session.WithRepHandler(s.enqueueRep),
		session.WithLogger(s.logger.Named("session")),
	)
	ctrl, err := session.New(opts...)
	if err != nil {
		return SessionInfo{}, err
	}

	e := &entry{ctrl: ctrl, createdAt: s.now()}
	s.sessions[ctrl.ID()] = e
	metrics.RecordSessionCreated()
	metrics.UpdateActiveSessions(len(s.sessions))

	s.logger.Info(ctx, "session created",
		logger.String("session", ctrl.ID()),
		logger.Bool("stream_mode", stream),
	)
	return SessionInfo{Stats: ctrl.Stats(), CreatedAt: e.createdAt}, nil
}

// Session returns the state of a live session.
func (s *Service) Session(_ context.Context, id string) (SessionInfo, error) {
	e, err := s.lookup(id)
	if err != nil {
		return SessionInfo{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return SessionInfo{}, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return SessionInfo{Stats: e.ctrl.Stats(), CreatedAt: e.createdAt}, nil
}

// Sessions lists live session ids in ascending order.
func (s *Service) Sessions() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// CloseSession ends a session. Its stored history stays available.
func (s *Service) CloseSession(ctx context.Context, id string) error {
	s.mu.Lock()
	e, ok := s.sessions[id]
	if ok {
		delete(s.sessions, id)
		metrics.RecordSessionClosed()
		metrics.UpdateActiveSessions(len(s.sessions))
	}
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}

	e.mu.Lock()
	e.closed = true
	label := e.ctrl.Label()
	e.mu.Unlock()

	s.logger.Info(ctx, "session closed", logger.String("session", id), logger.String("label", label))
	return nil
}

// ProcessFrame runs one frame through a session. A frame whose id was already
// seen for this session is not processed again; the last labels are returned.
func (s *Service) ProcessFrame(ctx context.Context, id string, f model.Frame) (FrameResult, error) {
	e, err := s.lookup(id)
	if err != nil {
		return FrameResult{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return FrameResult{}, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}

	if f.ID != "" {
		key := dedupe.Key(id, f.ID)
		if s.deduper.SeenAndRecord(ctx, key) {
			metrics.RecordFrameDuplicate()
			s.logger.Debug(ctx, "duplicate frame skipped",
				logger.String("session", id),
				logger.String("frame", f.ID),
			)
			return FrameResult{Labels: e.ctrl.Last(), Duplicate: true}, nil
		}
		// The caller gave up while waiting for the session; release the id
		// so its retry is processed instead of reported as a duplicate.
		if err := ctx.Err(); err != nil {
			s.deduper.Unrecord(ctx, key)
			return FrameResult{}, fmt.Errorf("process frame %s: %w", f.ID, err)
		}
	}

	return FrameResult{Labels: e.ctrl.Process(ctx, f)}, nil
}

// ResetSession clears the counters, smoother and label of a session.
func (s *Service) ResetSession(ctx context.Context, id string) (SessionInfo, error) {
	e, err := s.lookup(id)
	if err != nil {
		return SessionInfo{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return SessionInfo{}, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	e.ctrl.Reset(ctx)
	return SessionInfo{Stats: e.ctrl.Stats(), CreatedAt: e.createdAt}, nil
}

// History returns the stored rep events of a session. Closed sessions keep
// their history; an id that is neither live nor stored is not found.
func (s *Service) History(ctx context.Context, id string) ([]model.RepEvent, error) {
	st, err := s.currentStore()
	if err != nil {
		return nil, err
	}
	events, err := st.History(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		if _, err := s.lookup(id); err != nil {
			return nil, err
		}
	}
	return events, nil
}

// Totals returns the number of stored reps per class for a session, across resets.
func (s *Service) Totals(ctx context.Context, id string) (map[string]int, error) {
	st, err := s.currentStore()
	if err != nil {
		return nil, err
	}
	return st.Totals(ctx, id)
}

// Stats returns a snapshot of the service.
func (s *Service) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{
		Started:        s.started,
		Sessions:       len(s.sessions),
		MaxSessions:    s.cfg.MaxSessions,
		CounterClasses: s.counterClasses(),
	}
	if !s.started {
		return st
	}
	st.QueueLength = s.eventQueue.Len(context.Background())
	st.QueueCapacity = s.cfg.EventQueueSize
	st.Workers = s.workerPool.Size()
	st.DedupeSize = s.deduper.Size()
	st.SamplesLoaded = s.samples.Len()
	st.SampleClasses = s.samples.Classes()
	return st
}

func (s *Service) lookup(id string) (*entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, ErrNotStarted
	}
	e, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return e, nil
}

func (s *Service) currentStore() (repository.Store, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, ErrNotStarted
	}
	return s.store, nil
}

func (s *Service) counterClasses() []string {
	if len(s.cfg.CounterClasses) > 0 {
		return s.cfg.CounterClasses
	}
	return session.DefaultCounterClasses
}

// enqueueRep hands a rep event to the workers. A full queue drops the event.
func (s *Service) enqueueRep(ctx context.Context, ev model.RepEvent) {
	if !s.eventQueue.Enqueue(ctx, ev) {
		s.logger.Warn(ctx, "rep event dropped",
			logger.String("session", ev.SessionID),
			logger.String("class", ev.ClassName),
			logger.Int("count", ev.Count),
		)
	}
}

// SessionOptions translates cfg into controller options shared by the
// service and the replay tool.
func SessionOptions(cfg *config.Config) ([]session.Option, error) {
	set, err := cfg.ValidatorSet()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", config.ErrInvalidConfig, err)
	}
	opts := []session.Option{
		session.WithStreamMode(cfg.StreamMode),
		session.WithMinValidPoseFrames(cfg.MinValidPoseFrames),
		session.WithMinRepInterval(cfg.MinRepInterval()),
		session.WithConfidenceRange(cfg.ConfidenceRange),
		session.WithThresholds(cfg.Thresholds()),
		session.WithValidators(set),
		session.WithSmoothing(
			smoothing.WithWindowSize(cfg.SmoothingWindow),
			smoothing.WithAlpha(cfg.SmoothingAlpha),
			smoothing.WithResetGap(cfg.SmoothingResetGap()),
		),
	}
	if len(cfg.CounterClasses) > 0 {
		opts = append(opts, session.WithCounterClasses(cfg.CounterClasses))
	}
	return opts, nil
}
