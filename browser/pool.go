package browser

import (
	"log/slog"
	"math"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// PageHandle wraps one pooled page with health-tracking metadata so the
// pool can retire pages that are crashing or leaking rather than reusing
// them forever.
type PageHandle struct {
	ID       int64
	errScore float64
	useCount int
	created  time.Time
	mu       sync.Mutex
}

func newPageHandle(id int64) *PageHandle {
	return &PageHandle{ID: id, created: time.Now()}
}

// RecordSuccess lowers the error score (floored at 0).
func (h *PageHandle) RecordSuccess() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.useCount++
	h.errScore = math.Max(0, h.errScore-0.5)
}

// RecordFailure raises the error score.
func (h *PageHandle) RecordFailure() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.useCount++
	h.errScore += 1.0
}

// ShouldRetire reports whether the page has crashed too often, been reused
// too many times, or grown too old to trust.
func (h *PageHandle) ShouldRetire() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.errScore >= 3.0 {
		return true
	}
	if h.useCount >= 50 {
		return true
	}
	if time.Since(h.created) >= 50*time.Minute {
		return true
	}
	return false
}

// PoolConfig bounds pool size and memory-driven scaling.
type PoolConfig struct {
	MinPages     int
	HardMax      int
	MemThreshold float64 // 0.0-1.0, fraction of system memory
	ScaleStep    float64 // 0.0-1.0, fraction to grow/shrink by
}

// PageFactory creates one new underlying page, returning its handle ID.
type PageFactory func() (int64, error)

// PageDestroyer closes the underlying page for a handle ID.
type PageDestroyer func(id int64)

// AdaptivePool manages a pool of page handles, growing it under load and
// shrinking it under memory pressure, so a full-browser tier can be called
// repeatedly without a page per call.
type AdaptivePool struct {
	cfg       PoolConfig
	factory   PageFactory
	destroyer PageDestroyer

	idle    chan *PageHandle
	mu      sync.Mutex
	all     map[int64]*PageHandle
	nextID  atomic.Int64
	active  atomic.Int32
	stopped chan struct{}
}

// NewAdaptivePool creates a pool and pre-creates cfg.MinPages pages.
func NewAdaptivePool(cfg PoolConfig, factory PageFactory, destroyer PageDestroyer) (*AdaptivePool, error) {
	if cfg.MinPages < 1 {
		cfg.MinPages = 1
	}
	if cfg.HardMax < cfg.MinPages {
		cfg.HardMax = cfg.MinPages
	}
	if cfg.MemThreshold <= 0 {
		cfg.MemThreshold = 0.9
	}
	if cfg.ScaleStep <= 0 {
		cfg.ScaleStep = 0.05
	}

	ap := &AdaptivePool{
		cfg:       cfg,
		factory:   factory,
		destroyer: destroyer,
		idle:      make(chan *PageHandle, cfg.HardMax),
		all:       make(map[int64]*PageHandle),
		stopped:   make(chan struct{}),
	}

	for i := 0; i < cfg.MinPages; i++ {
		h, err := ap.createHandle()
		if err != nil {
			slog.Warn("browser: failed to pre-create page", "error", err)
			continue
		}
		ap.idle <- h
	}

	go ap.scalingLoop()
	return ap, nil
}

// Get acquires a handle, creating one if under HardMax, else blocking.
func (ap *AdaptivePool) Get() (*PageHandle, error) {
	select {
	case h := <-ap.idle:
		ap.active.Add(1)
		return h, nil
	default:
	}

	ap.mu.Lock()
	if len(ap.all) < ap.cfg.HardMax {
		h, err := ap.createHandleLocked()
		ap.mu.Unlock()
		if err == nil {
			ap.active.Add(1)
			return h, nil
		}
	} else {
		ap.mu.Unlock()
	}

	h := <-ap.idle
	ap.active.Add(1)
	return h, nil
}

// Put returns a handle, retiring (and replacing, if below MinPages) it when
// its health score says so.
func (ap *AdaptivePool) Put(h *PageHandle, success bool) {
	ap.active.Add(-1)

	if success {
		h.RecordSuccess()
	} else {
		h.RecordFailure()
	}

	if h.ShouldRetire() {
		slog.Debug("browser: retiring page", "id", h.ID, "useCount", h.useCount)
		ap.destroyHandle(h)

		ap.mu.Lock()
		if len(ap.all) < ap.cfg.MinPages {
			if newH, err := ap.createHandleLocked(); err == nil {
				ap.mu.Unlock()
				ap.idle <- newH
				return
			}
		}
		ap.mu.Unlock()
		return
	}

	ap.idle <- h
}

// Size returns the number of live handles.
func (ap *AdaptivePool) Size() int {
	ap.mu.Lock()
	defer ap.mu.Unlock()
	return len(ap.all)
}

// ActiveCount returns the number of checked-out handles.
func (ap *AdaptivePool) ActiveCount() int {
	return int(ap.active.Load())
}

// Stop drains idle handles and destroys everything still tracked.
func (ap *AdaptivePool) Stop() {
	close(ap.stopped)

drainLoop:
	for {
		select {
		case h := <-ap.idle:
			ap.destroyHandle(h)
		default:
			break drainLoop
		}
	}

	ap.mu.Lock()
	for id, h := range ap.all {
		ap.destroyer(h.ID)
		delete(ap.all, id)
	}
	ap.mu.Unlock()
}

func (ap *AdaptivePool) createHandle() (*PageHandle, error) {
	ap.mu.Lock()
	defer ap.mu.Unlock()
	return ap.createHandleLocked()
}

func (ap *AdaptivePool) createHandleLocked() (*PageHandle, error) {
	id, err := ap.factory()
	if err != nil {
		return nil, err
	}
	h := newPageHandle(id)
	ap.all[id] = h
	return h, nil
}

func (ap *AdaptivePool) destroyHandle(h *PageHandle) {
	ap.mu.Lock()
	delete(ap.all, h.ID)
	ap.mu.Unlock()
	ap.destroyer(h.ID)
}

func (ap *AdaptivePool) scalingLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ap.stopped:
			return
		case <-ticker.C:
			ap.scaleCheck()
		}
	}
}

func (ap *AdaptivePool) scaleCheck() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	var memPressure float64
	if m.HeapSys > 0 {
		memPressure = float64(m.HeapInuse) / float64(m.HeapSys)
	}

	ap.mu.Lock()
	totalSize := len(ap.all)
	ap.mu.Unlock()

	active := int(ap.active.Load())
	var activeRate float64
	if totalSize > 0 {
		activeRate = float64(active) / float64(totalSize)
	}

	if memPressure > ap.cfg.MemThreshold {
		shrinkCount := int(math.Ceil(float64(totalSize) * ap.cfg.ScaleStep))
		for i := 0; i < shrinkCount; i++ {
			ap.mu.Lock()
			if len(ap.all) <= ap.cfg.MinPages {
				ap.mu.Unlock()
				break
			}
			ap.mu.Unlock()

			select {
			case h := <-ap.idle:
				ap.destroyHandle(h)
			default:
				return
			}
		}
	} else if activeRate > 0.8 {
		growCount := int(math.Ceil(float64(totalSize) * ap.cfg.ScaleStep))
		for i := 0; i < growCount; i++ {
			ap.mu.Lock()
			if len(ap.all) >= ap.cfg.HardMax {
				ap.mu.Unlock()
				break
			}
			h, err := ap.createHandleLocked()
			ap.mu.Unlock()
			if err != nil {
				slog.Warn("browser: failed to grow pool", "error", err)
				break
			}
			ap.idle <- h
		}
	}
}
