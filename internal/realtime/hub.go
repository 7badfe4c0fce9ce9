package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"codenvibe/internal/domain/model"
	"codenvibe/internal/platform/logger"

	"go.uber.org/zap"
)

const MessageTypeLeaderboardUpdate = "leaderboard_update"

// Message is the only server-to-client frame.
type Message struct {
	Type    string                   `json:"type"`
	Year    int                      `json:"year"`
	Entries []model.LeaderboardEntry `json:"entries"`
}

// Hub keeps the open channels of every cohort. Membership changes go through
// Run; Publish only reads the registry.
type Hub struct {
	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	mu    sync.RWMutex
	rooms map[int]map[*Client]struct{}
}

func NewHub() *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		rooms:      make(map[int]map[*Client]struct{}),
	}
}

// Run owns registry mutations until ctx is cancelled, then closes every
// remaining channel.
func (h *Hub) Run(ctx context.Context) {
	logger.Info(ctx, "realtime hub started", zap.String("component", "realtime"))
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			room, ok := h.rooms[c.year]
			if !ok {
				room = make(map[*Client]struct{})
				h.rooms[c.year] = room
			}
			room[c] = struct{}{}
			c.setState(StateOpen)
			n := len(room)
			h.mu.Unlock()
			logger.Debug(ctx, "channel registered",
				zap.String("component", "realtime"), zap.Int("year", c.year), zap.Int("clients", n))

		case c := <-h.unregister:
			h.mu.Lock()
			if room, ok := h.rooms[c.year]; ok {
				if _, ok := room[c]; ok {
					delete(room, c)
					c.setState(StateClosing)
					close(c.send)
					if len(room) == 0 {
						delete(h.rooms, c.year)
					}
				}
			}
			h.mu.Unlock()

		case <-ctx.Done():
			h.mu.Lock()
			for year, room := range h.rooms {
				for c := range room {
					c.setState(StateClosing)
					close(c.send)
				}
				delete(h.rooms, year)
			}
			h.mu.Unlock()
			close(h.done)
			logger.Info(ctx, "realtime hub stopped", zap.String("component", "realtime"))
			return
		}
	}
}

// Register adds c to its cohort room. It reports false once the hub stopped.
func (h *Hub) Register(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Publish sends the ranking to every channel of the cohort. Delivery is
// at-most-once: slow channels lose their oldest pending update.
func (h *Hub) Publish(year int, entries []model.LeaderboardEntry) error {
	if entries == nil {
		entries = []model.LeaderboardEntry{}
	}
	payload, err := json.Marshal(Message{Type: MessageTypeLeaderboardUpdate, Year: year, Entries: entries})
	if err != nil {
		return fmt.Errorf("Hub.Publish: %w", err)
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.rooms[year] {
		c.enqueue(payload)
	}
	return nil
}

func (h *Hub) ClientCount(year int) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[year])
}
