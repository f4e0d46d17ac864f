// -----------------------------------------------------------------------
// Control Hub - In-process fast path for pause/cancel signals
// -----------------------------------------------------------------------

package scheduler

import (
	"sync"

	"github.com/ternarybob/mediaparser/internal/models"
)

// ControlHub carries pause/cancel/resume nudges to running control loops.
// The durable source of truth is always the job's status column; when the
// web frontend and the worker share a process, the hub lets a signal land
// before the next commit-window re-read.
type ControlHub struct {
	mu    sync.Mutex
	loops map[int64]chan models.ControlAction
}

// NewControlHub creates an empty hub.
func NewControlHub() *ControlHub {
	return &ControlHub{loops: make(map[int64]chan models.ControlAction)}
}

// register announces a control loop for a job. The channel holds at most
// one pending signal; newer signals replace older ones.
func (h *ControlHub) register(jobID int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.loops[jobID] = make(chan models.ControlAction, 1)
}

// unregister removes a job's channel when its control loop exits.
func (h *ControlHub) unregister(jobID int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.loops, jobID)
}

// Signal posts an action to a running loop. A job with no loop in this
// process is ignored; the status column re-read covers it.
func (h *ControlHub) Signal(jobID int64, action models.ControlAction) {
	h.mu.Lock()
	ch, ok := h.loops[jobID]
	h.mu.Unlock()
	if !ok {
		return
	}

	// Replace any stale pending signal.
	select {
	case <-ch:
	default:
	}
	ch <- action
}

// drain consumes a pending signal without blocking. The caller re-reads
// the durable status immediately after, so the action value itself is
// irrelevant here.
func (h *ControlHub) drain(jobID int64) {
	h.mu.Lock()
	ch, ok := h.loops[jobID]
	h.mu.Unlock()
	if !ok {
		return
	}
	select {
	case <-ch:
	default:
	}
}
