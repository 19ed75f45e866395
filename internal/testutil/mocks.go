// Package testutil provides shared mock implementations of domain interfaces
// for use in tests across the codebase. This follows the Go convention of a
// shared test utility package (like net/http/httptest).
package testutil

import (
	"context"
	"sync"
	"time"

	"searchads-tap/internal/domain"
)

// === Report Job Client Mock ===

// MockReportJobClient implements domain.ReportJobClient for testing.
type MockReportJobClient struct {
	CreateFn func(ctx context.Context, tmpl domain.ReportTemplate) (*domain.ReportJob, error)
	PollFn   func(ctx context.Context, job *domain.ReportJob) (*domain.ReportJob, error)

	mu        sync.Mutex
	Templates []domain.ReportTemplate // templates passed to Create, in call order
	Polls     []string                // job ids passed to Poll, in call order
}

// Create implements the interface method for testing.
func (m *MockReportJobClient) Create(ctx context.Context, tmpl domain.ReportTemplate) (*domain.ReportJob, error) {
	m.mu.Lock()
	m.Templates = append(m.Templates, tmpl)
	m.mu.Unlock()
	if m.CreateFn != nil {
		return m.CreateFn(ctx, tmpl)
	}
	panic("unexpected call to MockReportJobClient.Create")
}

// Poll implements the interface method for testing.
func (m *MockReportJobClient) Poll(ctx context.Context, job *domain.ReportJob) (*domain.ReportJob, error) {
	m.mu.Lock()
	m.Polls = append(m.Polls, job.ID)
	m.mu.Unlock()
	if m.PollFn != nil {
		return m.PollFn(ctx, job)
	}
	panic("unexpected call to MockReportJobClient.Poll")
}

// CreateCalls returns the number of Create calls.
func (m *MockReportJobClient) CreateCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Templates)
}

// PollCalls returns the number of Poll calls.
func (m *MockReportJobClient) PollCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Polls)
}

// === Report Downloader Mock ===

// MockReportDownloader implements domain.ReportDownloader for testing.
type MockReportDownloader struct {
	FetchFn func(ctx context.Context, location string) ([]byte, error)
	ParseFn func(payload []byte, joinValue string) ([]domain.ReportRow, error)

	mu         sync.Mutex
	Locations  []string
	JoinValues []string
}

// Fetch implements the interface method for testing.
func (m *MockReportDownloader) Fetch(ctx context.Context, location string) ([]byte, error) {
	m.mu.Lock()
	m.Locations = append(m.Locations, location)
	m.mu.Unlock()
	if m.FetchFn != nil {
		return m.FetchFn(ctx, location)
	}
	panic("unexpected call to MockReportDownloader.Fetch")
}

// Parse implements the interface method for testing.
func (m *MockReportDownloader) Parse(payload []byte, joinValue string) ([]domain.ReportRow, error) {
	m.mu.Lock()
	m.JoinValues = append(m.JoinValues, joinValue)
	m.mu.Unlock()
	if m.ParseFn != nil {
		return m.ParseFn(payload, joinValue)
	}
	panic("unexpected call to MockReportDownloader.Parse")
}

// === Wait Strategy Mock ===

// MockWaitStrategy implements domain.WaitStrategy without sleeping.
type MockWaitStrategy struct {
	WaitFn func(ctx context.Context, attempt int) error

	mu       sync.Mutex
	Attempts []int
}

// Wait implements the interface method for testing.
func (m *MockWaitStrategy) Wait(ctx context.Context, attempt int) error {
	m.mu.Lock()
	m.Attempts = append(m.Attempts, attempt)
	m.mu.Unlock()
	if m.WaitFn != nil {
		return m.WaitFn(ctx, attempt)
	}
	return ctx.Err()
}

// Delay implements the interface method for testing.
func (m *MockWaitStrategy) Delay(int) time.Duration { return 0 }

// Waits returns the number of Wait calls.
func (m *MockWaitStrategy) Waits() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Attempts)
}

// === Report Job Repository Mock ===

// MockReportJobRepo implements domain.ReportJobRepository for testing.
type MockReportJobRepo struct {
	CreateFn            func(ctx context.Context, rec *domain.ReportJobRecord) (*domain.ReportJobRecord, error)
	UpdateStateFn       func(ctx context.Context, id string, state domain.JobState, location *string) error
	MarkMergedFn        func(ctx context.Context, id string, rowCount int) error
	MarkFailedFn        func(ctx context.Context, id string, message string) error
	ListFn              func(ctx context.Context, filter domain.ReportJobFilter) ([]domain.ReportJobRecord, error)
	CountCreatedSinceFn func(ctx context.Context, since time.Time) (int, error)
}

// Create implements the interface method for testing.
func (m *MockReportJobRepo) Create(ctx context.Context, rec *domain.ReportJobRecord) (*domain.ReportJobRecord, error) {
	if m.CreateFn != nil {
		return m.CreateFn(ctx, rec)
	}
	panic("unexpected call to MockReportJobRepo.Create")
}

// UpdateState implements the interface method for testing.
func (m *MockReportJobRepo) UpdateState(ctx context.Context, id string, state domain.JobState, location *string) error {
	if m.UpdateStateFn != nil {
		return m.UpdateStateFn(ctx, id, state, location)
	}
	panic("unexpected call to MockReportJobRepo.UpdateState")
}

// MarkMerged implements the interface method for testing.
func (m *MockReportJobRepo) MarkMerged(ctx context.Context, id string, rowCount int) error {
	if m.MarkMergedFn != nil {
		return m.MarkMergedFn(ctx, id, rowCount)
	}
	panic("unexpected call to MockReportJobRepo.MarkMerged")
}

// MarkFailed implements the interface method for testing.
func (m *MockReportJobRepo) MarkFailed(ctx context.Context, id string, message string) error {
	if m.MarkFailedFn != nil {
		return m.MarkFailedFn(ctx, id, message)
	}
	panic("unexpected call to MockReportJobRepo.MarkFailed")
}

// List implements the interface method for testing.
func (m *MockReportJobRepo) List(ctx context.Context, filter domain.ReportJobFilter) ([]domain.ReportJobRecord, error) {
	if m.ListFn != nil {
		return m.ListFn(ctx, filter)
	}
	panic("unexpected call to MockReportJobRepo.List")
}

// CountCreatedSince implements the interface method for testing.
func (m *MockReportJobRepo) CountCreatedSince(ctx context.Context, since time.Time) (int, error) {
	if m.CountCreatedSinceFn != nil {
		return m.CountCreatedSinceFn(ctx, since)
	}
	panic("unexpected call to MockReportJobRepo.CountCreatedSince")
}

// === Row Sink Mock ===

// MockRowSink implements domain.RowSink, collecting written records.
type MockRowSink struct {
	WriteFn func(ctx context.Context, records []any) error

	mu      sync.Mutex
	Records []any
	Closed  bool
}

// Write implements the interface method for testing.
func (m *MockRowSink) Write(ctx context.Context, records []any) error {
	if m.WriteFn != nil {
		if err := m.WriteFn(ctx, records); err != nil {
			return err
		}
	}
	m.mu.Lock()
	m.Records = append(m.Records, records...)
	m.mu.Unlock()
	return nil
}

// Close implements the interface method for testing.
func (m *MockRowSink) Close(context.Context) error {
	m.mu.Lock()
	m.Closed = true
	m.mu.Unlock()
	return nil
}

// === Campaign API Mock ===

// MockCampaignAPI implements domain.CampaignAPI for testing.
type MockCampaignAPI struct {
	ListCampaignsFn  func(ctx context.Context) ([]domain.Record, error)
	CampaignReportFn func(ctx context.Context, tmpl domain.ReportTemplate) ([]domain.Record, error)
}

// ListCampaigns implements the interface method for testing.
func (m *MockCampaignAPI) ListCampaigns(ctx context.Context) ([]domain.Record, error) {
	if m.ListCampaignsFn != nil {
		return m.ListCampaignsFn(ctx)
	}
	panic("unexpected call to MockCampaignAPI.ListCampaigns")
}

// CampaignReport implements the interface method for testing.
func (m *MockCampaignAPI) CampaignReport(ctx context.Context, tmpl domain.ReportTemplate) ([]domain.Record, error) {
	if m.CampaignReportFn != nil {
		return m.CampaignReportFn(ctx, tmpl)
	}
	panic("unexpected call to MockCampaignAPI.CampaignReport")
}
