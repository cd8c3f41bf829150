package jobqueue

import (
	"context"
	"sync"
	"time"

	"github.com/ManuelReschke/MemoWindow/app/models"
	"github.com/gofiber/fiber/v2/log"
)

const (
	DefaultSweepInterval = 5 * time.Minute
	DefaultStaleAfter    = 15 * time.Minute

	reconcileLockPrefix = "reconcile_lock:"
	sweepBatchSize      = 100
)

// StaleOrderSource lists orders stuck after an inconclusive fulfillment attempt.
type StaleOrderSource interface {
	ListStale(ctx context.Context, before time.Time, limit int) ([]models.Order, error)
}

// Manager runs the job queue plus the periodic stale order sweep.
type Manager struct {
	queue         *Queue
	stale         StaleOrderSource
	sweepInterval time.Duration
	staleAfter    time.Duration
	sweepTicker   *time.Ticker
	stopCh        chan struct{}
	wg            sync.WaitGroup
	mu            sync.Mutex
	running       bool
}

// NewManager wires a queue with an optional stale order source.
func NewManager(queue *Queue, stale StaleOrderSource) *Manager {
	return &Manager{
		queue:         queue,
		stale:         stale,
		sweepInterval: DefaultSweepInterval,
		staleAfter:    DefaultStaleAfter,
		stopCh:        make(chan struct{}),
	}
}

// Start starts the job queue and background tasks
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}

	// Recreate stop channel for each start cycle so manager can be restarted safely.
	m.stopCh = make(chan struct{})
	m.running = true
	log.Info("[JobQueue Manager] Starting job queue and background tasks")

	m.queue.Start()

	if m.stale != nil {
		m.sweepTicker = time.NewTicker(m.sweepInterval)
		m.wg.Add(1)
		go m.sweepWorker(m.stopCh, m.sweepTicker)
	}

	log.Info("[JobQueue Manager] Started successfully")
}

// Stop stops the job queue and background tasks
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	log.Info("[JobQueue Manager] Stopping job queue and background tasks...")

	if m.sweepTicker != nil {
		m.sweepTicker.Stop()
	}
	close(m.stopCh)
	m.running = false
	m.wg.Wait()

	m.queue.Stop()

	log.Info("[JobQueue Manager] Stopped successfully")
}

func (m *Manager) sweepWorker(stopCh <-chan struct{}, ticker *time.Ticker) {
	defer m.wg.Done()
	log.Infof("[JobQueue Manager] Started stale order sweep (interval: %s)", m.sweepInterval)

	for {
		select {
		case <-stopCh:
			log.Info("[JobQueue Manager] Stale order sweep stopping")
			return
		case <-ticker.C:
			if _, err := m.SweepStaleOrdersOnce(context.Background()); err != nil {
				log.Errorf("[JobQueue Manager] Stale order sweep error: %v", err)
			}
		}
	}
}

// SweepStaleOrdersOnce enqueues one reconcile job per stale order. A Redis
// lock keeps repeated sweeps from piling up jobs for the same session.
func (m *Manager) SweepStaleOrdersOnce(ctx context.Context) (int, error) {
	if m.stale == nil {
		return 0, nil
	}
	list, err := m.stale.ListStale(ctx, time.Now().UTC().Add(-m.staleAfter), sweepBatchSize)
	if err != nil {
		return 0, err
	}

	enqueued := 0
	for _, o := range list {
		ok, err := m.queue.client.SetNX(ctx, reconcileLockPrefix+o.StripeSessionID, o.ID, m.staleAfter).Result()
		if err != nil {
			return enqueued, err
		}
		if !ok {
			continue
		}
		if err := m.queue.EnqueueReconcile(ctx, o.StripeSessionID, o.ExternalID, o.ProviderOrderID()); err != nil {
			return enqueued, err
		}
		enqueued++
	}
	if enqueued > 0 {
		log.Infof("[JobQueue Manager] Enqueued %d stale orders for reconciliation", enqueued)
	}
	return enqueued, nil
}

// IsRunning returns whether the manager is currently running
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}
