package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/mautic-sync/internal/config"
	"github.com/ignite/mautic-sync/internal/domain"
)

type fakeSyncer struct {
	calls int32
	fn    func(n int32) (domain.BatchSyncReport, error)
}

func (f *fakeSyncer) SyncAllClients(ctx context.Context) (domain.BatchSyncReport, error) {
	n := atomic.AddInt32(&f.calls, 1)
	if f.fn != nil {
		return f.fn(n)
	}
	return domain.BatchSyncReport{Success: true}, nil
}

func (f *fakeSyncer) count() int32 { return atomic.LoadInt32(&f.calls) }

func TestSyncScheduler_NextRunDaily(t *testing.T) {
	ss, err := NewSyncScheduler(&fakeSyncer{}, config.SchedulerConfig{DailyAt: "02:00"})
	require.NoError(t, err)
	loc := time.FixedZone("test", 2*3600)

	tests := []struct {
		name string
		from time.Time
		want time.Time
	}{
		{"before trigger", time.Date(2026, 5, 1, 1, 30, 0, 0, loc), time.Date(2026, 5, 1, 2, 0, 0, 0, loc)},
		{"exactly at trigger", time.Date(2026, 5, 1, 2, 0, 0, 0, loc), time.Date(2026, 5, 2, 2, 0, 0, 0, loc)},
		{"after trigger", time.Date(2026, 5, 1, 14, 0, 0, 0, loc), time.Date(2026, 5, 2, 2, 0, 0, 0, loc)},
		{"month rollover", time.Date(2026, 5, 31, 3, 0, 0, 0, loc), time.Date(2026, 6, 1, 2, 0, 0, 0, loc)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.want.Equal(ss.NextRun(tt.from)), "got %v", ss.NextRun(tt.from))
		})
	}
}

func TestSyncScheduler_NextRunInterval(t *testing.T) {
	at := func(h, m int) time.Time { return time.Date(2026, 5, 1, h, m, 0, 0, time.UTC) }
	tests := []struct {
		name    string
		minutes int
		from    time.Time
		want    time.Time
	}{
		{"hourly mid-hour", 60, at(1, 30), at(2, 0)},
		{"hourly on the hour", 60, at(2, 0), at(3, 0)},
		{"quarter hour", 15, at(1, 31), at(1, 45)},
		{"last slot rolls to midnight", 60, at(23, 10), time.Date(2026, 5, 2, 0, 0, 0, 0, time.UTC)},
		{"uneven interval restarts at midnight", 7 * 60, at(22, 0), time.Date(2026, 5, 2, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ss, err := NewSyncScheduler(&fakeSyncer{}, config.SchedulerConfig{IntervalMinutes: tt.minutes, DailyAt: "bogus"})
			require.NoError(t, err)
			assert.Equal(t, tt.want, ss.NextRun(tt.from))
		})
	}
}

func TestNewSyncScheduler_InvalidDailyAt(t *testing.T) {
	_, err := NewSyncScheduler(&fakeSyncer{}, config.SchedulerConfig{DailyAt: "25:99"})
	assert.Error(t, err)
}

func TestSyncScheduler_StartStop(t *testing.T) {
	ss, err := NewSyncScheduler(&fakeSyncer{}, config.SchedulerConfig{DailyAt: "02:00"})
	require.NoError(t, err)

	require.NoError(t, ss.StartAll())
	assert.True(t, ss.Running())
	assert.Error(t, ss.StartAll(), "double start")

	ss.StopAll()
	assert.False(t, ss.Running())
	ss.StopAll()
}

func TestSyncScheduler_FiresAtTrigger(t *testing.T) {
	syncer := &fakeSyncer{}
	ss, err := NewSyncScheduler(syncer, config.SchedulerConfig{DailyAt: "02:00"})
	require.NoError(t, err)

	// The first trigger is armed 20ms ahead of the fake clock; later ones a day out.
	base := time.Date(2026, 5, 1, 1, 59, 59, 980_000_000, time.Local)
	var armed int32
	ss.SetClock(func() time.Time {
		if atomic.AddInt32(&armed, 1) == 1 {
			return base
		}
		return base.Add(time.Hour)
	})

	require.NoError(t, ss.StartAll())
	defer ss.StopAll()

	assert.Eventually(t, func() bool { return syncer.count() == 1 }, 2*time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), syncer.count())
}

func TestSyncScheduler_SurvivesFailures(t *testing.T) {
	syncer := &fakeSyncer{fn: func(n int32) (domain.BatchSyncReport, error) {
		switch n {
		case 1:
			panic("boom")
		case 2:
			return domain.BatchSyncReport{}, errors.New("db down")
		}
		return domain.BatchSyncReport{Success: true}, nil
	}}
	ss := &SyncScheduler{syncer: syncer, interval: 10 * time.Millisecond, now: time.Now}

	require.NoError(t, ss.StartAll())
	assert.Eventually(t, func() bool { return syncer.count() >= 3 }, 2*time.Second, 5*time.Millisecond)
	ss.StopAll()

	assert.GreaterOrEqual(t, atomic.LoadInt64(&ss.failed), int64(2))
}

func TestSyncScheduler_StopCancelsInFlightRun(t *testing.T) {
	b := &blockingSyncer{started: make(chan struct{}), cancelled: make(chan struct{})}
	ss := &SyncScheduler{syncer: b, interval: time.Millisecond, now: time.Now}

	require.NoError(t, ss.StartAll())
	<-b.started
	ss.StopAll()

	select {
	case <-b.cancelled:
	default:
		t.Fatal("in-flight run was not cancelled before StopAll returned")
	}
}

type blockingSyncer struct {
	once      sync.Once
	started   chan struct{}
	cancelled chan struct{}
}

func (b *blockingSyncer) SyncAllClients(ctx context.Context) (domain.BatchSyncReport, error) {
	first := false
	b.once.Do(func() { first = true })
	if !first {
		return domain.BatchSyncReport{}, ctx.Err()
	}
	close(b.started)
	<-ctx.Done()
	close(b.cancelled)
	return domain.BatchSyncReport{}, ctx.Err()
}
