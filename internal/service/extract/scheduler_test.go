package extract

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"searchads-tap/internal/domain"
)

type streamRunnerFunc func(ctx context.Context, streams []string, dr domain.DateRange) ([]Result, error)

func (f streamRunnerFunc) Run(ctx context.Context, streams []string, dr domain.DateRange) ([]Result, error) {
	return f(ctx, streams, dr)
}

func TestLookbackRange(t *testing.T) {
	t.Parallel()

	now := time.Date(2023, 3, 1, 2, 0, 0, 0, time.UTC)
	tests := []struct {
		days    int
		want    string
		wantErr bool
	}{
		{days: 1, want: "2023-02-28..2023-02-28"},
		{days: 7, want: "2023-02-22..2023-02-28"},
		{days: 0, wantErr: true},
	}
	for _, tc := range tests {
		dr, err := LookbackRange(now, tc.days)
		if tc.wantErr {
			require.Error(t, err)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tc.want, dr.String())
		assert.Equal(t, tc.days, dr.Days())
	}
}

func TestScheduler_Trigger(t *testing.T) {
	t.Parallel()

	var gotStreams []string
	var gotRange domain.DateRange
	runner := streamRunnerFunc(func(_ context.Context, streams []string, dr domain.DateRange) ([]Result, error) {
		gotStreams, gotRange = streams, dr
		return []Result{{Stream: StreamCampaigns, Rows: 3}}, nil
	})
	s := NewScheduler(runner, []string{StreamCampaigns}, 2, discardLogger())
	s.now = func() time.Time { return time.Date(2023, 1, 10, 6, 0, 0, 0, time.UTC) }

	assert.Nil(t, s.LastRun())

	results, err := s.Trigger(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []Result{{Stream: StreamCampaigns, Rows: 3}}, results)
	assert.Equal(t, []string{StreamCampaigns}, gotStreams)
	assert.Equal(t, "2023-01-08..2023-01-09", gotRange.String())

	last := s.LastRun()
	require.NotNil(t, last)
	assert.Equal(t, "2023-01-08..2023-01-09", last.Range)
	assert.Empty(t, last.Error)
	assert.Equal(t, results, last.Results)
}

func TestScheduler_TriggerFailureRecorded(t *testing.T) {
	t.Parallel()

	runner := streamRunnerFunc(func(context.Context, []string, domain.DateRange) ([]Result, error) {
		return nil, errors.New("backend down")
	})
	s := NewScheduler(runner, Streams, 1, discardLogger())

	_, err := s.Trigger(context.Background())
	require.Error(t, err)
	require.NotNil(t, s.LastRun())
	assert.Equal(t, "backend down", s.LastRun().Error)
}

func TestScheduler_OverlappingTriggerSkipped(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	started := make(chan struct{})
	runner := streamRunnerFunc(func(context.Context, []string, domain.DateRange) ([]Result, error) {
		close(started)
		<-release
		return nil, nil
	})
	s := NewScheduler(runner, Streams, 1, discardLogger())

	done := make(chan error, 1)
	go func() {
		_, err := s.Trigger(context.Background())
		done <- err
	}()
	<-started

	_, err := s.Trigger(context.Background())
	var ce *domain.ConflictError
	require.ErrorAs(t, err, &ce)

	close(release)
	require.NoError(t, <-done)
}

func TestScheduler_Start(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		spec    string
		wantErr bool
	}{
		{name: "daily", spec: "0 6 * * *"},
		{name: "descriptor", spec: "@hourly"},
		{name: "garbage", spec: "every morning", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := NewScheduler(streamRunnerFunc(func(context.Context, []string, domain.DateRange) ([]Result, error) {
				return nil, nil
			}), Streams, 1, discardLogger())
			err := s.Start(tt.spec)
			if tt.wantErr {
				var ve *domain.ValidationError
				require.ErrorAs(t, err, &ve)
				return
			}
			require.NoError(t, err)
			s.Stop()
		})
	}
}
