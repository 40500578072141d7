package engine

import "time"

// timerHandle wraps a fired-or-cancelled one-shot timer. Cancel is safe to
// call on a nil handle, after the timer has fired, and any number of times;
// callbacks are responsible for their own staleness checks since Stop does
// not guarantee the function has not already started.
type timerHandle struct {
	t *time.Timer
}

func after(d time.Duration, fn func()) *timerHandle {
	if d < 0 {
		d = 0
	}
	return &timerHandle{t: time.AfterFunc(d, fn)}
}

func (h *timerHandle) cancel() {
	if h == nil || h.t == nil {
		return
	}
	h.t.Stop()
}
