package services_test

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/SscSPs/fin_model_app/internal/core/domain"
	portsrepo "github.com/SscSPs/fin_model_app/internal/core/ports/repositories"
	"github.com/SscSPs/fin_model_app/internal/core/services"
	"github.com/SscSPs/fin_model_app/internal/platform/scriptrunner"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/mock"
)

// --- Transactions ---

// MockTxManager records Begin/Commit/Rollback. Begin hands out a nil pgx.Tx.
type MockTxManager struct {
	mock.Mock
}

func (m *MockTxManager) Begin(ctx context.Context) (pgx.Tx, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(pgx.Tx), args.Error(1)
}

func (m *MockTxManager) Commit(ctx context.Context, tx pgx.Tx) error {
	return m.Called(ctx, tx).Error(0)
}

func (m *MockTxManager) Rollback(ctx context.Context, tx pgx.Tx) error {
	return m.Called(ctx, tx).Error(0)
}

// --- Section records ---

type MockSectionRecordRepository struct {
	MockTxManager
}

func (m *MockSectionRecordRepository) WithTx(pgx.Tx) portsrepo.SectionRecordRepositoryFacade {
	return m
}

func (m *MockSectionRecordRepository) FindLatestByProjectID(ctx context.Context, schema *domain.SectionSchema, projectID string) (*domain.SectionRecord, error) {
	args := m.Called(ctx, schema, projectID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.SectionRecord), args.Error(1)
}

func (m *MockSectionRecordRepository) Insert(ctx context.Context, schema *domain.SectionSchema, projectID string, fields domain.FieldValues, userID, changeReason string) (*domain.SectionRecord, error) {
	args := m.Called(ctx, schema, projectID, fields, userID, changeReason)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.SectionRecord), args.Error(1)
}

func (m *MockSectionRecordRepository) UpdateFields(ctx context.Context, schema *domain.SectionSchema, recordID int64, expectedVersion int, fields domain.FieldValues, userID, changeReason string) (*domain.SectionRecord, error) {
	args := m.Called(ctx, schema, recordID, expectedVersion, fields, userID, changeReason)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.SectionRecord), args.Error(1)
}

func (m *MockSectionRecordRepository) DeleteByProjectID(ctx context.Context, schema *domain.SectionSchema, projectID string) ([]domain.SectionRecord, error) {
	args := m.Called(ctx, schema, projectID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.SectionRecord), args.Error(1)
}

// --- Audit log ---

type MockAuditLogRepository struct {
	MockTxManager
}

func (m *MockAuditLogRepository) WithTx(pgx.Tx) portsrepo.AuditLogRepositoryFacade {
	return m
}

func (m *MockAuditLogRepository) Create(ctx context.Context, entry *domain.AuditLogEntry, projectID string) error {
	return m.Called(ctx, entry, projectID).Error(0)
}

func (m *MockAuditLogRepository) DeleteByIDs(ctx context.Context, ids []int64) (int64, error) {
	args := m.Called(ctx, ids)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockAuditLogRepository) FindByID(ctx context.Context, id int64) (*domain.AuditLogEntry, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.AuditLogEntry), args.Error(1)
}

func (m *MockAuditLogRepository) ListByRecord(ctx context.Context, tableName, recordID string, filter domain.AuditHistoryFilter) ([]domain.AuditLogEntry, error) {
	args := m.Called(ctx, tableName, recordID, filter)
	return entriesOf(args.Get(0)), args.Error(1)
}

func (m *MockAuditLogRepository) ListBySection(ctx context.Context, tableName, projectID string, filter domain.AuditHistoryFilter) ([]domain.AuditLogEntry, error) {
	args := m.Called(ctx, tableName, projectID, filter)
	return entriesOf(args.Get(0)), args.Error(1)
}

func (m *MockAuditLogRepository) ListFieldHistory(ctx context.Context, tableName, projectID, field string, limit int) ([]domain.AuditLogEntry, error) {
	args := m.Called(ctx, tableName, projectID, field, limit)
	return entriesOf(args.Get(0)), args.Error(1)
}

func (m *MockAuditLogRepository) ListByProject(ctx context.Context, projectID string, filter domain.AuditHistoryFilter) ([]domain.AuditLogEntry, error) {
	args := m.Called(ctx, projectID, filter)
	return entriesOf(args.Get(0)), args.Error(1)
}

func (m *MockAuditLogRepository) StatsByRecord(ctx context.Context, tableName, recordID string) ([]domain.AuditStat, error) {
	args := m.Called(ctx, tableName, recordID)
	return statsOf(args.Get(0)), args.Error(1)
}

func (m *MockAuditLogRepository) StatsBySection(ctx context.Context, tableName, projectID string) ([]domain.AuditStat, error) {
	args := m.Called(ctx, tableName, projectID)
	return statsOf(args.Get(0)), args.Error(1)
}

func (m *MockAuditLogRepository) StatsByProject(ctx context.Context, projectID string) ([]domain.AuditStat, error) {
	args := m.Called(ctx, projectID)
	return statsOf(args.Get(0)), args.Error(1)
}

func (m *MockAuditLogRepository) ListOlderThan(ctx context.Context, before time.Time, limit int) ([]domain.AuditLogEntry, error) {
	args := m.Called(ctx, before, limit)
	return entriesOf(args.Get(0)), args.Error(1)
}

func entriesOf(v any) []domain.AuditLogEntry {
	if v == nil {
		return nil
	}
	return v.([]domain.AuditLogEntry)
}

func statsOf(v any) []domain.AuditStat {
	if v == nil {
		return nil
	}
	return v.([]domain.AuditStat)
}

// --- Calculation runs ---

type MockCalculationRunRepository struct {
	MockTxManager
}

func (m *MockCalculationRunRepository) WithTx(pgx.Tx) portsrepo.CalculationRunRepositoryFacade {
	return m
}

func (m *MockCalculationRunRepository) FindRunByID(ctx context.Context, runID string) (*domain.CalculationRun, error) {
	args := m.Called(ctx, runID)
	return runOf(args.Get(0)), args.Error(1)
}

func (m *MockCalculationRunRepository) FindLatestRun(ctx context.Context, projectID string, calcType domain.CalculationType, status domain.CalculationStatus) (*domain.CalculationRun, error) {
	args := m.Called(ctx, projectID, calcType, status)
	return runOf(args.Get(0)), args.Error(1)
}

func (m *MockCalculationRunRepository) ListRunsByProject(ctx context.Context, projectID string, calcType domain.CalculationType, limit int) ([]domain.CalculationRun, error) {
	args := m.Called(ctx, projectID, calcType, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.CalculationRun), args.Error(1)
}

func (m *MockCalculationRunRepository) ListIterations(ctx context.Context, runID string) ([]domain.CalculationIteration, error) {
	args := m.Called(ctx, runID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.CalculationIteration), args.Error(1)
}

func (m *MockCalculationRunRepository) ListSchedules(ctx context.Context, runID string) ([]domain.CalculationSchedule, error) {
	args := m.Called(ctx, runID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.CalculationSchedule), args.Error(1)
}

func (m *MockCalculationRunRepository) StatsByProject(ctx context.Context, projectID string) ([]domain.CalculationStat, error) {
	args := m.Called(ctx, projectID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.CalculationStat), args.Error(1)
}

func (m *MockCalculationRunRepository) CreateRun(ctx context.Context, run domain.NewCalculationRun) (*domain.CalculationRun, error) {
	args := m.Called(ctx, run)
	return runOf(args.Get(0)), args.Error(1)
}

func (m *MockCalculationRunRepository) CompleteRun(ctx context.Context, runID string, output map[string]any, executionTimeMs int64) (*domain.CalculationRun, error) {
	args := m.Called(ctx, runID, output, executionTimeMs)
	return runOf(args.Get(0)), args.Error(1)
}

func (m *MockCalculationRunRepository) FailRun(ctx context.Context, runID string, errorMessage string, executionTimeMs *int64) (*domain.CalculationRun, error) {
	args := m.Called(ctx, runID, errorMessage, executionTimeMs)
	return runOf(args.Get(0)), args.Error(1)
}

func (m *MockCalculationRunRepository) CreateIteration(ctx context.Context, iteration domain.CalculationIteration) (*domain.CalculationIteration, error) {
	args := m.Called(ctx, iteration)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CalculationIteration), args.Error(1)
}

func (m *MockCalculationRunRepository) CreateSchedules(ctx context.Context, runID string, schedules []domain.ScheduleInput) ([]domain.CalculationSchedule, error) {
	args := m.Called(ctx, runID, schedules)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.CalculationSchedule), args.Error(1)
}

func (m *MockCalculationRunRepository) DeleteOldRuns(ctx context.Context, projectID string, calcType domain.CalculationType, keep int) (int64, error) {
	args := m.Called(ctx, projectID, calcType, keep)
	return args.Get(0).(int64), args.Error(1)
}

func runOf(v any) *domain.CalculationRun {
	if v == nil {
		return nil
	}
	return v.(*domain.CalculationRun)
}

// --- Platform ---

type MockArchiver struct {
	mock.Mock
}

func (m *MockArchiver) ArchiveAuditEntries(ctx context.Context, entries []domain.AuditLogEntry) (string, error) {
	args := m.Called(ctx, entries)
	return args.String(0), args.Error(1)
}

type MockRunner struct {
	mock.Mock
}

func (m *MockRunner) Run(ctx context.Context, script, projectID, runID string) (*scriptrunner.Result, error) {
	args := m.Called(ctx, script, projectID, runID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*scriptrunner.Result), args.Error(1)
}

type recordedEvent struct {
	DistinctID string
	Event      string
	Properties map[string]any
}

type fakeTracker struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (t *fakeTracker) Enqueue(distinctID, event string, properties map[string]any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = append(t.events, recordedEvent{DistinctID: distinctID, Event: event, Properties: properties})
}

func (t *fakeTracker) Events() []recordedEvent {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]recordedEvent(nil), t.events...)
}

// --- Clock ---

// fakeClock fires timers synchronously from Advance.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Time
	fn      func()
	stopped bool
	fired   bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Clock() services.Clock {
	return services.Clock{Now: c.Now, AfterFunc: c.AfterFunc}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) services.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now.Add(d), fn: f}
	c.timers = append(c.timers, t)
	return t
}

// Advance moves time forward and runs every timer that became due, in due order.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && !t.at.After(c.now) {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()

	sort.SliceStable(due, func(i, j int) bool { return due[i].at.Before(due[j].at) })
	for _, t := range due {
		t.fn()
	}
}

// Armed returns the number of timers that are neither stopped nor fired.
func (c *fakeClock) Armed() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}
