package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/SscSPs/fin_model_app/internal/apperrors"
	"github.com/SscSPs/fin_model_app/internal/core/domain"
	portssvc "github.com/SscSPs/fin_model_app/internal/core/ports/services"
	"github.com/SscSPs/fin_model_app/internal/middleware"
	"github.com/SscSPs/fin_model_app/internal/platform/lock"
	"github.com/SscSPs/fin_model_app/internal/platform/metrics"
)

const (
	defaultAutoSaveDelay   = 2 * time.Second
	defaultAutoSaveLockTTL = 10 * time.Second
	autoSaveFlushTimeout   = 30 * time.Second
	defaultStatusRetention = time.Hour

	triggerDebounce = "debounce"
	triggerForce    = "force"
)

// Timer is the part of *time.Timer the scheduler uses.
type Timer interface {
	Stop() bool
}

// Clock abstracts time for the scheduler.
type Clock struct {
	Now       func() time.Time
	AfterFunc func(d time.Duration, f func()) Timer
}

// SystemClock is backed by the time package.
func SystemClock() Clock {
	return Clock{
		Now: time.Now,
		AfterFunc: func(d time.Duration, f func()) Timer {
			return time.AfterFunc(d, f)
		},
	}
}

type pendingSave struct {
	req   portssvc.AutoSaveRequest
	timer Timer
	dueAt time.Time
	gen   uint64
}

type saveOutcome struct {
	savedAt     *time.Time
	version     int
	lastError   string
	lastErrorAt *time.Time
	touched     time.Time
	// forcedGen is the generation of the latest forced save. Older flushes are stale.
	forcedGen uint64
}

var errSupersededFlush = errors.New("flush superseded by a forced save")

// AutoSaveScheduler debounces section saves per project and section.
// Pending saves live in this process only; other instances debounce independently.
type AutoSaveScheduler struct {
	BaseService
	data      portssvc.FinancialDataWriterSvc
	locker    lock.Locker
	clock     Clock
	delay     time.Duration
	lockTTL   time.Duration
	logger    *slog.Logger
	metrics   *metrics.Metrics
	onFailure func(domain.SaveFailure)
	retention time.Duration

	mu        sync.Mutex
	lastPrune time.Time
	pending   map[string]*pendingSave
	outcomes  map[string]*saveOutcome
	gen       uint64
	closed    bool
	inflight  sync.WaitGroup
}

var _ portssvc.AutoSaveSvc = (*AutoSaveScheduler)(nil)

// AutoSaveOption configures the scheduler.
type AutoSaveOption func(*AutoSaveScheduler)

// WithAutoSaveDelay sets the quiet period before a pending save is flushed.
func WithAutoSaveDelay(d time.Duration) AutoSaveOption {
	return func(s *AutoSaveScheduler) {
		if d > 0 {
			s.delay = d
		}
	}
}

// WithAutoSaveLockTTL sets how long a save may hold its key lock.
func WithAutoSaveLockTTL(d time.Duration) AutoSaveOption {
	return func(s *AutoSaveScheduler) {
		if d > 0 {
			s.lockTTL = d
		}
	}
}

// WithLocker sets the locker that serializes saves of one key.
func WithLocker(l lock.Locker) AutoSaveOption {
	return func(s *AutoSaveScheduler) {
		if l != nil {
			s.locker = l
		}
	}
}

// WithClock replaces the system clock.
func WithClock(c Clock) AutoSaveOption {
	return func(s *AutoSaveScheduler) {
		s.clock = c
	}
}

// WithAutoSaveMetrics records flushes, failures and the pending gauge.
func WithAutoSaveMetrics(m *metrics.Metrics) AutoSaveOption {
	return func(s *AutoSaveScheduler) {
		s.metrics = m
	}
}

// WithStatusRetention sets how long the last outcome of an idle key is kept for status queries.
func WithStatusRetention(d time.Duration) AutoSaveOption {
	return func(s *AutoSaveScheduler) {
		if d > 0 {
			s.retention = d
		}
	}
}

// WithFailureHandler is called after a debounced save fails.
func WithFailureHandler(fn func(domain.SaveFailure)) AutoSaveOption {
	return func(s *AutoSaveScheduler) {
		s.onFailure = fn
	}
}

// NewAutoSaveScheduler creates a scheduler that saves through data.
func NewAutoSaveScheduler(data portssvc.FinancialDataWriterSvc, logger *slog.Logger, opts ...AutoSaveOption) *AutoSaveScheduler {
	if logger == nil {
		logger = slog.Default()
	}
	s := &AutoSaveScheduler{
		data:      data,
		locker:    lock.NewLocalLocker(),
		clock:     SystemClock(),
		delay:     defaultAutoSaveDelay,
		lockTTL:   defaultAutoSaveLockTTL,
		retention: defaultStatusRetention,
		logger:    logger,
		pending:   make(map[string]*pendingSave),
		outcomes:  make(map[string]*saveOutcome),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func saveKey(projectID, section string) string {
	return projectID + ":" + section
}

func validateAutoSave(req portssvc.AutoSaveRequest) error {
	if strings.TrimSpace(req.ProjectID) == "" {
		return apperrors.NewValidationError("projectId", "is required")
	}
	schema, err := resolveSection(req.Section)
	if err != nil {
		return err
	}
	if len(schema.Filter(req.Data)) == 0 {
		return apperrors.NewValidationError("data", "no updatable fields supplied")
	}
	return nil
}

// AutoSave replaces any pending save for the key and arms a new timer.
func (s *AutoSaveScheduler) AutoSave(ctx context.Context, req portssvc.AutoSaveRequest) (*domain.SaveStatus, error) {
	if err := validateAutoSave(req); err != nil {
		return nil, err
	}
	key := saveKey(req.ProjectID, req.Section)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, fmt.Errorf("%w: auto-save is shutting down", apperrors.ErrUnavailable)
	}

	if prev, ok := s.pending[key]; ok {
		prev.timer.Stop()
	}
	s.gen++
	gen := s.gen
	p := &pendingSave{
		req:   req,
		dueAt: s.clock.Now().Add(s.delay),
		gen:   gen,
	}
	p.timer = s.clock.AfterFunc(s.delay, func() { s.fire(key, gen) })
	s.pending[key] = p
	s.metrics.SetAutoSavePending(len(s.pending))

	s.LogDebug(ctx, "Auto-save scheduled",
		slog.String("project_id", req.ProjectID),
		slog.String("section", req.Section),
		slog.Duration("delay", s.delay))

	return s.statusLocked(req.ProjectID, req.Section), nil
}

// fire runs when a timer expires. A superseded or cancelled generation does nothing.
func (s *AutoSaveScheduler) fire(key string, gen uint64) {
	s.mu.Lock()
	p, ok := s.pending[key]
	if !ok || p.gen != gen || s.closed {
		s.mu.Unlock()
		return
	}
	delete(s.pending, key)
	s.metrics.SetAutoSavePending(len(s.pending))
	s.inflight.Add(1)
	s.mu.Unlock()

	defer s.inflight.Done()

	logger := s.logger.With(
		slog.String("project_id", p.req.ProjectID),
		slog.String("section", p.req.Section),
		slog.String("user_id", p.req.UserID),
	)
	ctx, cancel := context.WithTimeout(middleware.WithLogger(context.Background(), logger), autoSaveFlushTimeout)
	defer cancel()

	result, err := s.save(ctx, p.req, triggerDebounce, gen)
	if errors.Is(err, errSupersededFlush) {
		logger.Debug("Debounced save skipped, a forced save already wrote newer data")
		return
	}
	if err != nil {
		logger.Error("Debounced save failed", slog.String("error", err.Error()))
		s.metrics.AutoSaveFailed(p.req.Section)
		if s.onFailure != nil {
			s.onFailure(domain.SaveFailure{
				ProjectID: p.req.ProjectID,
				Section:   p.req.Section,
				UserID:    p.req.UserID,
				Err:       err,
				At:        s.clock.Now(),
			})
		}
		return
	}
	logger.Info("Debounced save flushed",
		slog.Bool("changes_detected", result.ChangesDetected),
		slog.Int("version", result.Record.Version))
}

// ForceSave discards any pending save for the key and saves immediately.
func (s *AutoSaveScheduler) ForceSave(ctx context.Context, req portssvc.AutoSaveRequest) (*domain.SaveResult, error) {
	if err := validateAutoSave(req); err != nil {
		return nil, err
	}
	key := saveKey(req.ProjectID, req.Section)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: auto-save is shutting down", apperrors.ErrUnavailable)
	}
	if p, ok := s.pending[key]; ok {
		p.timer.Stop()
		delete(s.pending, key)
		s.metrics.SetAutoSavePending(len(s.pending))
	}
	s.gen++
	gen := s.gen
	s.outcome(key, s.clock.Now()).forcedGen = gen
	s.mu.Unlock()

	return s.save(ctx, req, triggerForce, gen)
}

// save performs one upsert under the key lock and records its outcome. A debounced flush
// that obtains the lock after a newer forced save is dropped.
func (s *AutoSaveScheduler) save(ctx context.Context, req portssvc.AutoSaveRequest, trigger string, gen uint64) (*domain.SaveResult, error) {
	key := saveKey(req.ProjectID, req.Section)

	lk, err := s.locker.Obtain(ctx, key, s.lockTTL)
	if err != nil {
		if errors.Is(err, lock.ErrNotObtained) {
			err = fmt.Errorf("%w: another save of %s is in progress", apperrors.ErrUnavailable, key)
		}
		s.recordFailure(key, err)
		return nil, err
	}
	defer func() {
		if rerr := lk.Release(context.WithoutCancel(ctx)); rerr != nil {
			s.LogError(ctx, rerr, "Failed to release auto-save lock", slog.String("key", key))
		}
	}()

	if trigger == triggerDebounce && s.superseded(key, gen) {
		return nil, errSupersededFlush
	}

	result, err := s.data.Upsert(ctx, domain.UpsertCommand{
		Section:      req.Section,
		ProjectID:    req.ProjectID,
		Data:         req.Data,
		UserID:       req.UserID,
		ChangeReason: req.ChangeReason,
		IPAddress:    req.IPAddress,
	})
	if err != nil {
		s.recordFailure(key, err)
		return nil, err
	}

	s.metrics.AutoSaveFlushed(req.Section, trigger)
	s.recordSuccess(key, result.Record.Version)
	return result, nil
}

func (s *AutoSaveScheduler) superseded(key string, gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.outcomes[key]
	return ok && o.forcedGen > gen
}

func (s *AutoSaveScheduler) recordSuccess(key string, version int) {
	now := s.clock.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneOutcomesLocked(now)
	o := s.outcome(key, now)
	o.savedAt = &now
	o.version = version
	o.lastError = ""
	o.lastErrorAt = nil
}

func (s *AutoSaveScheduler) recordFailure(key string, err error) {
	now := s.clock.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneOutcomesLocked(now)
	o := s.outcome(key, now)
	o.lastError = err.Error()
	o.lastErrorAt = &now
}

func (s *AutoSaveScheduler) outcome(key string, now time.Time) *saveOutcome {
	o, ok := s.outcomes[key]
	if !ok {
		o = &saveOutcome{}
		s.outcomes[key] = o
	}
	o.touched = now
	return o
}

// pruneOutcomesLocked forgets keys idle for longer than the retention, at most once per retention period.
func (s *AutoSaveScheduler) pruneOutcomesLocked(now time.Time) {
	if now.Sub(s.lastPrune) < s.retention {
		return
	}
	s.lastPrune = now
	cutoff := now.Add(-s.retention)
	for key, o := range s.outcomes {
		if _, pending := s.pending[key]; !pending && o.touched.Before(cutoff) {
			delete(s.outcomes, key)
		}
	}
}

// CancelPendingSaves discards every pending save of the project and returns how many there were.
// The project's save statuses are forgotten too.
func (s *AutoSaveScheduler) CancelPendingSaves(projectID string) int {
	prefix := projectID + ":"

	s.mu.Lock()
	defer s.mu.Unlock()
	cancelled := 0
	for key, p := range s.pending {
		if strings.HasPrefix(key, prefix) {
			p.timer.Stop()
			delete(s.pending, key)
			cancelled++
		}
	}
	for key := range s.outcomes {
		if strings.HasPrefix(key, prefix) {
			delete(s.outcomes, key)
		}
	}
	s.metrics.SetAutoSavePending(len(s.pending))
	return cancelled
}

// GetSaveStatus reports the pending state and last outcome of one key.
func (s *AutoSaveScheduler) GetSaveStatus(projectID, section string) (*domain.SaveStatus, error) {
	if _, err := resolveSection(section); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusLocked(projectID, section), nil
}

func (s *AutoSaveScheduler) statusLocked(projectID, section string) *domain.SaveStatus {
	key := saveKey(projectID, section)
	st := &domain.SaveStatus{ProjectID: projectID, Section: section}
	if p, ok := s.pending[key]; ok {
		st.Pending = true
		st.RemainingMs = max(p.dueAt.Sub(s.clock.Now()).Milliseconds(), 0)
	}
	if o, ok := s.outcomes[key]; ok {
		st.LastSavedAt = o.savedAt
		st.LastVersion = o.version
		st.LastError = o.lastError
		st.LastErrorAt = o.lastErrorAt
	}
	return st
}

// PendingCount returns the number of armed timers.
func (s *AutoSaveScheduler) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Shutdown stops every timer and waits for flushes already running.
func (s *AutoSaveScheduler) Shutdown() {
	s.mu.Lock()
	s.closed = true
	dropped := len(s.pending)
	for key, p := range s.pending {
		p.timer.Stop()
		delete(s.pending, key)
	}
	s.metrics.SetAutoSavePending(0)
	s.mu.Unlock()

	s.inflight.Wait()
	if dropped > 0 {
		s.logger.Warn("Auto-save shut down with pending saves", slog.Int("dropped", dropped))
	}
}
