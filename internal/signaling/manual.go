package signaling

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// record is one persisted signaling message.
type record struct {
	From    string `msgpack:"from"`
	Type    string `msgpack:"type"`
	RoomID  string `msgpack:"roomId"`
	Payload []byte `msgpack:"payload"`
	SentAt  int64  `msgpack:"sentAt"`
}

// RoomKey is the store key holding a room's signaling log.
func RoomKey(roomID string) string {
	return "huddle:room:" + roomID + ":signals"
}

// Manual is a debug Transport. Outbound messages are appended to a persisted
// room log; inbound messages are delivered only when Poll is called.
type Manual struct {
	store  Store
	key    string
	self   string
	logger *slog.Logger

	mu       sync.Mutex
	offset   int64
	closed   bool
	incoming chan *Message
}

// NewManual creates a manual transport for self in roomID.
func NewManual(store Store, roomID, self string, logger *slog.Logger) *Manual {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manual{
		store:    store,
		key:      RoomKey(roomID),
		self:     self,
		logger:   logger.With("transport", "manual", "room", roomID),
		incoming: make(chan *Message, 64),
	}
}

// Connect skips the history already in the log, so a late joiner does not
// replay signaling meant for earlier sessions.
func (m *Manual) Connect(ctx context.Context) error {
	n, err := m.store.Len(ctx, m.key)
	if err != nil {
		return fmt.Errorf("read signaling log: %w", err)
	}

	m.mu.Lock()
	m.offset = n
	m.mu.Unlock()
	return nil
}

func (m *Manual) Send(ctx context.Context, msg *Message) error {
	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return ErrClosed
	}

	data, err := msgpack.Marshal(&record{
		From:    m.self,
		Type:    msg.Type,
		RoomID:  msg.RoomID,
		Payload: msg.Payload,
		SentAt:  time.Now().UnixMilli(),
	})
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	return m.store.Append(ctx, m.key, data)
}

// Poll delivers every record appended since the last poll, except our own,
// and returns how many messages were delivered.
func (m *Manual) Poll(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, ErrClosed
	}

	recs, err := m.store.Range(ctx, m.key, m.offset)
	if err != nil {
		return 0, fmt.Errorf("read signaling log: %w", err)
	}

	delivered := 0
	for _, data := range recs {
		var rec record
		if err := msgpack.Unmarshal(data, &rec); err != nil {
			m.logger.Warn("skipping malformed record", "offset", m.offset, "error", err)
			m.offset++
			continue
		}
		if rec.From == m.self {
			m.offset++
			continue
		}

		// The offset only moves past a record once it is handed over.
		select {
		case m.incoming <- &Message{Type: rec.Type, RoomID: rec.RoomID, Payload: rec.Payload}:
			m.offset++
			delivered++
		case <-ctx.Done():
			return delivered, ctx.Err()
		}
	}
	return delivered, nil
}

// AutoPoll polls every interval until ctx is done or the transport closes.
func (m *Manual) AutoPoll(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := m.Poll(ctx); err != nil {
				if errors.Is(err, ErrClosed) || ctx.Err() != nil {
					return
				}
				m.logger.Warn("poll failed", "error", err)
			}
		}
	}
}

func (m *Manual) Incoming() <-chan *Message {
	return m.incoming
}

// Close stops delivery. The store is owned by the caller and stays open.
func (m *Manual) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.incoming)
	}
	return nil
}
