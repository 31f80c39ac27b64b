package engine

import "context"

// Run evicts expired rooms every SweepInterval until ctx is done. Only the
// in-memory state is dropped; durable records are never touched.
func (e *Engine) Run(ctx context.Context) error {
	ticker := e.opts.Clock.NewTicker(e.opts.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.Chan():
			if n := e.sweep(); n > 0 {
				e.logger.Info("rooms evicted", "count", n, "remaining", e.Rooms())
			}
		}
	}
}

// sweep removes rooms that finished more than FinishedTTL ago, and unfinished
// rooms with no members idle for longer than IdleTTL. Rooms with commands in
// flight are skipped.
func (e *Engine) sweep() int {
	now := e.opts.Clock.Now()

	e.mu.Lock()
	defer e.mu.Unlock()

	evicted := 0
	for id, r := range e.rooms {
		if r.refs > 0 || !r.expired(now, e.opts.IdleTTL, e.opts.FinishedTTL) {
			continue
		}
		delete(e.rooms, id)
		close(r.quit)
		for connID, sessions := range e.conns {
			delete(sessions, id)
			if len(sessions) == 0 {
				delete(e.conns, connID)
			}
		}
		evicted++
	}
	return evicted
}
