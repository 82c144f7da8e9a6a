package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	logger "github.com/campuslink/groupchat/middleware/log"

	"github.com/campuslink/groupchat/internal/models"
)

const redisChannel = "groupchat:rooms"

// ErrForbidden is returned by Subscribe when the user is not a current
// member of the group. The check runs at subscribe time; membership state
// cached by the client is never trusted.
var ErrForbidden = errors.New("not a member of this group")

// Membership is the broker's view of the membership store.
type Membership interface {
	IsMember(groupID, userID uint) bool
}

// Presence records which members hold a live room subscription; optional.
// Entries carry a TTL, so the broker must keep refreshing them for as long
// as the connection stays healthy.
type Presence interface {
	SetOnline(ctx context.Context, groupID, userID uint) error
	SetOffline(ctx context.Context, groupID, userID uint) error
	Refresh(ctx context.Context, groupID, userID uint) error
}

/// Hub is the room broker: it maps each group to the set of currently
// subscribed connections and fans every published message out to exactly
// that set. One mutex serializes room mutations and publish ordering, so a
// group's subscriber set and its delivery order can never disagree.
//
// The hub does not persist messages; history replay is the message store's
// concern.
type Hub struct {
	mu      sync.Mutex
	clients map[*Client]bool
	rooms   map[uint]map[*Client]bool

	membership Membership
	presence   Presence
	rdb        *redis.Client
	log        *logger.Logger
}

// roomEvent is the envelope published through redis for cross-node fan-out.
type roomEvent struct {
	GroupID uint            `json:"group_id"`
	Message *models.Message `json:"message"`
}

func NewHub(membership Membership, presence Presence, rdb *redis.Client, log *logger.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		rooms:      make(map[uint]map[*Client]bool),
		membership: membership,
		presence:   presence,
		rdb:        rdb,
		log:        log,
	}
}

// Run starts the cross-node subscription loop when redis is configured. It
// blocks until ctx is cancelled; without redis it is a no-op.
func (h *Hub) Run(ctx context.Context) {
	if h.rdb == nil {
		return
	}
	pubsub := h.rdb.Subscribe(ctx, redisChannel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var ev roomEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				h.log.Warn("dropping malformed room event", zap.Error(err))
				continue
			}
			h.deliver(ev.GroupID, ev.Message)
		}
	}
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = true
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	group := c.groupID
	h.leaveRoomLocked(c)
	delete(h.clients, c)
	close(c.send)
	h.mu.Unlock()

	if h.presence != nil && group != 0 {
		if err := h.presence.SetOffline(context.Background(), group, c.userID); err != nil {
			h.log.Warn("failed to clear presence", zap.Uint("group_id", group), zap.Error(err))
		}
	}
}

// refreshPresence extends the client's presence entry. The read pump calls
// it on every pong, which keeps the entry alive for the lifetime of a
// healthy connection; a dead connection stops ponging and ages out.
func (h *Hub) refreshPresence(c *Client) {
	if h.presence == nil {
		return
	}
	h.mu.Lock()
	group := c.groupID
	h.mu.Unlock()
	if group == 0 {
		return
	}
	if err := h.presence.Refresh(context.Background(), group, c.userID); err != nil {
		h.log.Warn("failed to refresh presence", zap.Uint("group_id", group), zap.Error(err))
	}
}

// leaveRoomLocked removes the client from its current room, if any.
func (h *Hub) leaveRoomLocked(c *Client) {
	if c.groupID == 0 {
		return
	}
	if room, ok := h.rooms[c.groupID]; ok {
		delete(room, c)
		if len(room) == 0 {
			delete(h.rooms, c.groupID)
		}
	}
	c.groupID = 0
}

// Subscribe admits the connection to the group's room after re-checking
// membership at call time. A connection occupies at most one room, so
// subscribing implicitly unsubscribes from the previous one. The ack frame
// is enqueued under the room lock, so it always precedes any event
// published after admission.
func (h *Hub) Subscribe(c *Client, groupID uint) error {
	if !h.membership.IsMember(groupID, c.userID) {
		return ErrForbidden
	}

	h.mu.Lock()
	previous := c.groupID
	h.leaveRoomLocked(c)
	if _, ok := h.rooms[groupID]; !ok {
		h.rooms[groupID] = make(map[*Client]bool)
	}
	h.rooms[groupID][c] = true
	c.groupID = groupID
	c.enqueue(&ServerFrame{Type: FrameSubscribed, GroupID: groupID})
	h.mu.Unlock()

	if h.presence != nil {
		ctx := context.Background()
		if previous != 0 && previous != groupID {
			if err := h.presence.SetOffline(ctx, previous, c.userID); err != nil {
				h.log.Warn("failed to clear presence", zap.Uint("group_id", previous), zap.Error(err))
			}
		}
		if err := h.presence.SetOnline(ctx, groupID, c.userID); err != nil {
			h.log.Warn("failed to record presence", zap.Uint("group_id", groupID), zap.Error(err))
		}
	}
	return nil
}

// Unsubscribe removes the connection from whatever room it occupies. It is
// idempotent; unsubscribing an unsubscribed connection is a no-op.
func (h *Hub) Unsubscribe(c *Client) {
	h.mu.Lock()
	previous := c.groupID
	h.leaveRoomLocked(c)
	c.enqueue(&ServerFrame{Type: FrameUnsubscribed, GroupID: previous})
	h.mu.Unlock()

	if h.presence != nil && previous != 0 {
		if err := h.presence.SetOffline(context.Background(), previous, c.userID); err != nil {
			h.log.Warn("failed to clear presence", zap.Uint("group_id", previous), zap.Error(err))
		}
	}
}

// Publish fans the message out to the group's current subscribers, in the
// order Publish is called for that group. Publishing to an empty room is a
// successful no-op. With redis configured the event takes a round trip
// through pub/sub so every node, this one included, delivers it locally.
func (h *Hub) Publish(groupID uint, msg *models.Message) {
	if h.rdb != nil {
		payload, err := json.Marshal(&roomEvent{GroupID: groupID, Message: msg})
		if err != nil {
			h.log.Error("failed to encode room event", zap.Error(err))
			return
		}
		if err := h.rdb.Publish(context.Background(), redisChannel, payload).Err(); err != nil {
			h.log.Warn("redis publish failed, delivering locally", zap.Error(err))
			h.deliver(groupID, msg)
		}
		return
	}
	h.deliver(groupID, msg)
}

func (h *Hub) deliver(groupID uint, msg *models.Message) {
	frame := &ServerFrame{Type: FrameEvent, GroupID: groupID, Message: msg}

	h.mu.Lock()
	var evicted []*Client
	for c := range h.rooms[groupID] {
		if !c.enqueue(frame) {
			// Send buffer full: the consumer is too slow to keep the
			// room's ordering guarantee, so drop the connection.
			evicted = append(evicted, c)
		}
	}
	for _, c := range evicted {
		if _, ok := h.clients[c]; ok {
			h.leaveRoomLocked(c)
			delete(h.clients, c)
			close(c.send)
		}
	}
	h.mu.Unlock()
}
