// Package jobs runs the scheduled background work: the nightly metrics cache
// sync over all connected businesses.
package jobs

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/caangogi/local-digital-eye-sub000/internal/pkg/env"
	"github.com/caangogi/local-digital-eye-sub000/internal/pkg/metricscache"
)

// Manager owns the background tickers. One per process.
type Manager struct {
	sync     *metricscache.Service
	interval time.Duration

	syncTicker *time.Ticker
	stopCh     chan struct{}
	wg         sync.WaitGroup
	mu         sync.Mutex
	running    bool
}

var (
	globalManager *Manager
	managerOnce   sync.Once
)

// GetManager returns the global job manager (singleton). The sync service is
// bound on first call; later calls ignore the argument.
func GetManager(syncService *metricscache.Service) *Manager {
	managerOnce.Do(func() {
		hours := 24
		if v, err := strconv.Atoi(env.GetEnv("METRICS_SYNC_INTERVAL_HOURS", "24")); err == nil && v > 0 {
			hours = v
		}
		globalManager = &Manager{
			sync:     syncService,
			interval: time.Duration(hours) * time.Hour,
			stopCh:   make(chan struct{}),
		}
	})
	return globalManager
}

// Start launches the sync ticker. Safe to call twice.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}
	// Recreate stop channel for each start cycle so the manager can be
	// restarted safely.
	m.stopCh = make(chan struct{})
	m.running = true

	log.Infof("[Jobs] Starting metrics sync worker (interval=%s)", m.interval)
	m.syncTicker = time.NewTicker(m.interval)
	m.wg.Add(1)
	go m.syncWorker()
}

// Stop halts the tickers and waits for a running sync to finish.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}
	log.Info("[Jobs] Stopping background workers...")
	close(m.stopCh)
	m.syncTicker.Stop()
	m.running = false
	m.wg.Wait()
	log.Info("[Jobs] All background workers stopped")
}

func (m *Manager) syncWorker() {
	defer m.wg.Done()
	for {
		select {
		case <-m.stopCh:
			return
		case <-m.syncTicker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
			summary := m.sync.SyncAll(ctx)
			cancel()
			log.Infof("[Jobs] metrics sync finished: processed=%d ok=%d failed=%d",
				summary.TotalProcessed, summary.Successful, summary.Failed)
		}
	}
}
