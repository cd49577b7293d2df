package orchestrator

import (
	"encoding/json"
	"sync"
	"time"
)

// Event is a generic SSE payload wrapper.
type Event struct {
	Event     string `json:"event"`
	MissionID string `json:"mission_id"`
	Payload   any    `json:"payload,omitempty"`
}

type subscriber chan []byte

// Hub fans JSON events out to subscribers and coalesces streamed tokens per
// log entry.
type Hub struct {
	mu   sync.RWMutex
	subs map[subscriber]struct{}

	flushEvery time.Duration

	tokMu   sync.Mutex
	tokBuf  map[string]map[string]string // missionID -> entryID -> buffered chunk(s)
	tokTick map[string]chan struct{}     // missionID -> stop channel
}

func NewHub() *Hub {
	return &Hub{
		subs:       map[subscriber]struct{}{},
		flushEvery: 100 * time.Millisecond,
		tokBuf:     map[string]map[string]string{},
		tokTick:    map[string]chan struct{}{},
	}
}

func (h *Hub) Subscribe() (<-chan []byte, func()) {
	ch := make(subscriber, 64)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, ch)
			close(ch)
			h.mu.Unlock()
		})
	}
	return ch, unsubscribe
}

// Publish never blocks; slow subscribers miss events.
func (h *Hub) Publish(ev Event) {
	b, err := json.Marshal(ev)
	if err != nil {
		return
	}
	h.mu.RLock()
	for ch := range h.subs {
		select {
		case ch <- b:
		default:
		}
	}
	h.mu.RUnlock()
}

// TokenAppender returns a function that buffers chunks per log entry of a
// mission. Buffers are flushed as coalesced 'token' events every 100ms.
func (h *Hub) TokenAppender(missionID string) func(entryID, chunk string) {
	h.tokMu.Lock()
	if _, ok := h.tokBuf[missionID]; !ok {
		h.tokBuf[missionID] = map[string]string{}
	}
	if _, ok := h.tokTick[missionID]; !ok {
		stop := make(chan struct{})
		h.tokTick[missionID] = stop
		go h.flushLoop(missionID, stop)
	}
	h.tokMu.Unlock()
	return func(entryID, chunk string) {
		if chunk == "" || entryID == "" {
			return
		}
		h.tokMu.Lock()
		// the mission was stopped; late chunks are dropped
		if buf, ok := h.tokBuf[missionID]; ok {
			buf[entryID] += chunk
		}
		h.tokMu.Unlock()
	}
}

func (h *Hub) flushLoop(missionID string, stop <-chan struct{}) {
	ticker := time.NewTicker(h.flushEvery)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			h.Flush(missionID)
		}
	}
}

// Flush publishes whatever is buffered for a mission right away.
func (h *Hub) Flush(missionID string) {
	h.tokMu.Lock()
	buf := h.tokBuf[missionID]
	payloads := make(map[string]string, len(buf))
	for id, s := range buf {
		if s != "" {
			payloads[id] = s
		}
		delete(buf, id)
	}
	h.tokMu.Unlock()
	h.publishTokens(missionID, payloads)
}

// StopTokenAppender stops the coalescer for a mission and flushes remaining chunks.
func (h *Hub) StopTokenAppender(missionID string) {
	h.tokMu.Lock()
	if ch, ok := h.tokTick[missionID]; ok {
		close(ch)
		delete(h.tokTick, missionID)
	}
	buf := h.tokBuf[missionID]
	delete(h.tokBuf, missionID)
	h.tokMu.Unlock()
	h.publishTokens(missionID, buf)
}

func (h *Hub) publishTokens(missionID string, chunks map[string]string) {
	for id, chunk := range chunks {
		if chunk == "" {
			continue
		}
		h.Publish(Event{Event: "token", MissionID: missionID, Payload: map[string]any{"entry_id": id, "chunk": chunk}})
	}
}
