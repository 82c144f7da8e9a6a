// Package reconciler keeps a client-side view of one group's message
// timeline consistent while the user hops between rooms. It merges the
// history snapshot with the live event stream: events that race the
// snapshot are buffered, duplicates are dropped by message ID, and
// anything arriving after the user switched rooms is discarded.
package reconciler

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	logger "github.com/campuslink/groupchat/middleware/log"

	"github.com/campuslink/groupchat/internal/models"
	"github.com/campuslink/groupchat/internal/ws"
)

// ErrNoSelection is returned by Send when no group is selected.
var ErrNoSelection = errors.New("no group selected")

// HistoryFetcher loads the persisted timeline for a group, oldest first.
type HistoryFetcher interface {
	History(ctx context.Context, groupID uint) ([]models.Message, error)
}

// LiveConn is the subscription transport the session drives. Conn
// implements it over a websocket; tests substitute an in-memory fake.
type LiveConn interface {
	Subscribe(groupID uint) error
	Unsubscribe() error
	Send(groupID uint, content string) error
	Events() <-chan ws.ServerFrame
}

// Session reconciles one user's current-room view. All exported methods
// are safe for concurrent use.
type Session struct {
	conn    LiveConn
	history HistoryFetcher
	log     *logger.Logger

	mu sync.Mutex
	// epoch increments on every Select/Deselect; a history fetch that
	// comes back under an older epoch is stale and dropped whole.
	epoch   uint64
	group   uint
	applied bool
	pending []models.Message
	seen    map[int64]bool
	view    []models.Message

	done chan struct{}
}

// NewSession starts consuming the connection's event stream immediately.
// Events arriving before the first Select are discarded.
func NewSession(conn LiveConn, history HistoryFetcher, log *logger.Logger) *Session {
	s := &Session{
		conn:    conn,
		history: history,
		log:     log,
		seen:    make(map[int64]bool),
		done:    make(chan struct{}),
	}
	go s.consume()
	return s
}

// Close stops the event consumer. It does not close the connection; the
// owner of the Conn does that.
func (s *Session) Close() {
	close(s.done)
}

// Select switches the session to groupID: subscribes on the live
// connection first, then fetches history, so no event can fall in the gap
// between the two. The view is empty until history is applied.
//
// A failed history fetch degrades to an empty timeline fed by live events
// only; it does not fail the switch.
func (s *Session) Select(ctx context.Context, groupID uint) error {
	s.mu.Lock()
	s.epoch++
	epoch := s.epoch
	s.group = groupID
	s.applied = false
	s.pending = nil
	s.seen = make(map[int64]bool)
	s.view = nil
	s.mu.Unlock()

	if err := s.conn.Subscribe(groupID); err != nil {
		return err
	}

	msgs, err := s.history.History(ctx, groupID)
	if err != nil {
		s.log.Warn("history fetch failed, starting from empty view",
			zap.Uint("group_id", groupID), zap.Error(err))
		msgs = nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != epoch {
		// The user moved on while the fetch was in flight.
		return nil
	}
	for i := range msgs {
		if s.seen[msgs[i].ID] {
			continue
		}
		s.seen[msgs[i].ID] = true
		s.view = append(s.view, msgs[i])
	}
	for i := range s.pending {
		s.applyLocked(&s.pending[i])
	}
	s.pending = nil
	s.applied = true
	return nil
}

// Deselect leaves the current room and clears the view.
func (s *Session) Deselect() error {
	s.mu.Lock()
	s.epoch++
	s.group = 0
	s.applied = false
	s.pending = nil
	s.seen = make(map[int64]bool)
	s.view = nil
	s.mu.Unlock()
	return s.conn.Unsubscribe()
}

// Send posts content to the selected group. The sent message is not
// appended locally; it arrives through the same live stream as everyone
// else's copy, which keeps ordering identical across all members.
func (s *Session) Send(content string) error {
	s.mu.Lock()
	group := s.group
	s.mu.Unlock()
	if group == 0 {
		return ErrNoSelection
	}
	return s.conn.Send(group, content)
}

// Group returns the currently selected group, 0 if none.
func (s *Session) Group() uint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.group
}

// Messages returns a copy of the current view, oldest first.
func (s *Session) Messages() []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Message, len(s.view))
	copy(out, s.view)
	return out
}

func (s *Session) consume() {
	for {
		select {
		case <-s.done:
			return
		case frame, ok := <-s.conn.Events():
			if !ok {
				return
			}
			if frame.Type != ws.FrameEvent || frame.Message == nil {
				continue
			}
			s.ingest(&frame)
		}
	}
}

func (s *Session) ingest(frame *ws.ServerFrame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.group == 0 || frame.GroupID != s.group {
		// Late event from a room we already left.
		return
	}
	if !s.applied {
		s.pending = append(s.pending, *frame.Message)
		return
	}
	s.applyLocked(frame.Message)
}

func (s *Session) applyLocked(msg *models.Message) {
	if s.seen[msg.ID] {
		return
	}
	s.seen[msg.ID] = true
	s.view = append(s.view, *msg)
}
