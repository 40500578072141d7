package http

import (
	"sync"

	"trivia-session-service/internal/domain"
)

// ChannelHub fans session snapshots out to websocket subscribers, keyed by
// channel. It implements the engine's Renderer port, so every forced or
// throttle-permitted render becomes a broadcast.
type ChannelHub struct {
	mu   sync.RWMutex
	subs map[string]map[chan domain.SessionSummary]struct{}
}

func NewChannelHub() *ChannelHub {
	return &ChannelHub{subs: make(map[string]map[chan domain.SessionSummary]struct{})}
}

// RenderStatus broadcasts a snapshot to every subscriber of its channel.
// A slow subscriber has its stale snapshot dropped rather than blocking
// the session's timer or answer path.
func (h *ChannelHub) RenderStatus(summary domain.SessionSummary) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs[summary.ChannelID] {
		select {
		case ch <- summary:
		default:
			// Make room by dropping the oldest buffered snapshot. The
			// retry stays non-blocking: losing one frame to a racing
			// broadcast beats stalling the render path.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- summary:
			default:
			}
		}
	}
	return nil
}

// Subscribe returns a channel receiving snapshots for channelID. The
// caller must invoke the returned cancel function to avoid leaks.
func (h *ChannelHub) Subscribe(channelID string) (<-chan domain.SessionSummary, func()) {
	ch := make(chan domain.SessionSummary, 8)

	h.mu.Lock()
	if h.subs[channelID] == nil {
		h.subs[channelID] = make(map[chan domain.SessionSummary]struct{})
	}
	h.subs[channelID][ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if set, ok := h.subs[channelID]; ok {
			if _, ok := set[ch]; ok {
				delete(set, ch)
				close(ch)
			}
			if len(set) == 0 {
				delete(h.subs, channelID)
			}
		}
		h.mu.Unlock()
	}
	return ch, cancel
}
