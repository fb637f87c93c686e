package worker

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ignite/mautic-sync/internal/config"
	"github.com/ignite/mautic-sync/internal/domain"
	"github.com/ignite/mautic-sync/internal/metrics"
)

// BatchSyncer runs one sync over every active tenant.
type BatchSyncer interface {
	SyncAllClients(ctx context.Context) (domain.BatchSyncReport, error)
}

// SyncScheduler triggers SyncAllClients once a day at a fixed local time,
// or on clock-aligned intervals when one is configured. Each run completes before
// the next trigger is armed, so runs never overlap.
type SyncScheduler struct {
	syncer   BatchSyncer
	hour     int
	minute   int
	interval time.Duration
	now      func() time.Time

	runs   int64
	failed int64

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.Mutex
}

// NewSyncScheduler creates a scheduler from cfg. DailyAt is only parsed
// when no interval is set.
func NewSyncScheduler(syncer BatchSyncer, cfg config.SchedulerConfig) (*SyncScheduler, error) {
	ss := &SyncScheduler{syncer: syncer, interval: cfg.Interval(), now: time.Now}
	if ss.interval <= 0 {
		h, m, err := cfg.DailyTime()
		if err != nil {
			return nil, err
		}
		ss.hour, ss.minute = h, m
	}
	return ss, nil
}

// SetClock overrides the time source (useful for testing).
func (ss *SyncScheduler) SetClock(now func() time.Time) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	ss.now = now
}

// StartAll arms the recurring trigger.
func (ss *SyncScheduler) StartAll() error {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	if ss.running {
		return fmt.Errorf("sync scheduler already running")
	}
	ss.running = true
	ss.ctx, ss.cancel = context.WithCancel(context.Background())

	if ss.interval > 0 {
		log.Printf("[SyncScheduler] Starting with interval %v", ss.interval)
	} else {
		log.Printf("[SyncScheduler] Starting, daily at %02d:%02d local time", ss.hour, ss.minute)
	}

	ss.wg.Add(1)
	go ss.loop()
	return nil
}

// StopAll cancels the trigger and any in-flight run, then waits for it to return.
func (ss *SyncScheduler) StopAll() {
	ss.mu.Lock()
	if !ss.running {
		ss.mu.Unlock()
		return
	}
	ss.running = false
	ss.mu.Unlock()

	log.Printf("[SyncScheduler] Stopping...")
	ss.cancel()
	ss.wg.Wait()
	log.Printf("[SyncScheduler] Stopped. Runs: %d, failed: %d",
		atomic.LoadInt64(&ss.runs), atomic.LoadInt64(&ss.failed))
}

// Running reports whether StartAll has been called without a matching StopAll.
func (ss *SyncScheduler) Running() bool {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	return ss.running
}

// NextRun returns the first trigger strictly after from. Interval triggers
// sit on wall-clock multiples of the interval counted from local midnight,
// so an hourly schedule fires at the top of each hour. The count restarts
// at midnight when the interval does not divide the day.
func (ss *SyncScheduler) NextRun(from time.Time) time.Time {
	if ss.interval > 0 {
		midnight := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, from.Location())
		slots := from.Sub(midnight)/ss.interval + 1
		next := midnight.Add(slots * ss.interval)
		if tomorrow := midnight.AddDate(0, 0, 1); next.After(tomorrow) {
			next = tomorrow
		}
		return next
	}
	next := time.Date(from.Year(), from.Month(), from.Day(), ss.hour, ss.minute, 0, 0, from.Location())
	if !next.After(from) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

func (ss *SyncScheduler) clock() time.Time {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	return ss.now()
}

func (ss *SyncScheduler) loop() {
	defer ss.wg.Done()

	for {
		now := ss.clock()
		next := ss.NextRun(now)
		metrics.SchedulerNextRun.Set(float64(next.Unix()))

		timer := time.NewTimer(next.Sub(now))
		select {
		case <-ss.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		ss.runOnce()
	}
}

func (ss *SyncScheduler) runOnce() {
	started := time.Now()
	atomic.AddInt64(&ss.runs, 1)
	defer func() {
		if r := recover(); r != nil {
			atomic.AddInt64(&ss.failed, 1)
			log.Printf("[SyncScheduler] PANIC in scheduled sync: %v", r)
		}
		metrics.SchedulerLastRun.SetToCurrentTime()
	}()

	log.Printf("[SyncScheduler] Scheduled sync starting")
	report, err := ss.syncer.SyncAllClients(ss.ctx)
	if err != nil {
		atomic.AddInt64(&ss.failed, 1)
		log.Printf("[SyncScheduler] Scheduled sync failed: %v", err)
		return
	}
	log.Printf("[SyncScheduler] Scheduled sync finished in %v: %d tenants, %d failed",
		time.Since(started).Round(time.Millisecond), len(report.Results), report.Failed())
}
