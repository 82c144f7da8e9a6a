package ws

import (
	"encoding/json"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campuslink/groupchat/internal/models"
	"github.com/campuslink/groupchat/internal/services"
	logger "github.com/campuslink/groupchat/middleware/log"
)

type fakeMembership struct {
	mu      sync.Mutex
	members map[uint]map[uint]bool // groupID -> userID set
}

func newFakeMembership() *fakeMembership {
	return &fakeMembership{members: make(map[uint]map[uint]bool)}
}

func (f *fakeMembership) add(groupID, userID uint) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.members[groupID] == nil {
		f.members[groupID] = make(map[uint]bool)
	}
	f.members[groupID][userID] = true
}

func (f *fakeMembership) remove(groupID, userID uint) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.members[groupID], userID)
}

func (f *fakeMembership) IsMember(groupID, userID uint) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.members[groupID][userID]
}

// hubSender publishes straight through the hub, standing in for the full
// persistence pipeline.
type hubSender struct {
	hub        *Hub
	membership *fakeMembership
	nextID     atomic.Int64
}

func (s *hubSender) Send(groupID, userID uint, senderName, content string) (*models.Message, error) {
	if !s.membership.IsMember(groupID, userID) {
		return nil, services.ErrNotMember
	}
	msg := &models.Message{
		ID:         s.nextID.Add(1),
		GroupID:    groupID,
		SenderID:   userID,
		SenderName: senderName,
		Content:    content,
		CreatedAt:  time.Now(),
	}
	s.hub.Publish(groupID, msg)
	return msg, nil
}

type hubFixture struct {
	hub        *Hub
	membership *fakeMembership
	server     *httptest.Server
}

func newHubFixture(t *testing.T) *hubFixture {
	return newHubFixtureWithPresence(t, nil)
}

func newHubFixtureWithPresence(t *testing.T, presence Presence) *hubFixture {
	t.Helper()
	log, err := logger.NewDevelopmentLogger()
	require.NoError(t, err)

	membership := newFakeMembership()
	hub := NewHub(membership, presence, nil, log)
	sender := &hubSender{hub: hub, membership: membership}

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/ws", func(c *gin.Context) {
		uid, _ := strconv.ParseUint(c.Query("uid"), 10, 32)
		c.Set("user_id", uint(uid))
		c.Set("display_name", c.Query("name"))
		ServeWS(hub, sender, log, c)
	})
	server := httptest.NewServer(r)
	t.Cleanup(server.Close)

	return &hubFixture{hub: hub, membership: membership, server: server}
}

func (f *hubFixture) dial(t *testing.T, userID uint, name string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") +
		"/ws?uid=" + strconv.FormatUint(uint64(userID), 10) + "&name=" + name
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func sendFrame(t *testing.T, conn *websocket.Conn, frame *ClientFrame) {
	t.Helper()
	payload, err := json.Marshal(frame)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, payload))
}

func readFrame(t *testing.T, conn *websocket.Conn) *ServerFrame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	var frame ServerFrame
	require.NoError(t, json.Unmarshal(raw, &frame))
	return &frame
}

func subscribe(t *testing.T, conn *websocket.Conn, groupID uint) {
	t.Helper()
	sendFrame(t, conn, &ClientFrame{Type: FrameSubscribe, GroupID: groupID})
	ack := readFrame(t, conn)
	require.Equal(t, FrameSubscribed, ack.Type)
	require.Equal(t, groupID, ack.GroupID)
}

// assertNoFrame proves silence by timing out a read. The timeout poisons
// the connection for further reads, so call it last per connection.
func assertNoFrame(t *testing.T, conn *websocket.Conn, within time.Duration) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(within)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err, "expected no frame")
}

func TestRoundTrip_SenderReceivesOwnMessageOnce(t *testing.T) {
	f := newHubFixture(t)
	f.membership.add(10, 1)
	f.membership.add(10, 2)

	alice := f.dial(t, 1, "alice")
	bob := f.dial(t, 2, "bob")
	subscribe(t, alice, 10)
	subscribe(t, bob, 10)

	sendFrame(t, alice, &ClientFrame{Type: FrameMessage, GroupID: 10, Content: "hello room"})

	for _, conn := range []*websocket.Conn{alice, bob} {
		ev := readFrame(t, conn)
		require.Equal(t, FrameEvent, ev.Type)
		require.NotNil(t, ev.Message)
		assert.Equal(t, uint(10), ev.GroupID)
		assert.Equal(t, "hello room", ev.Message.Content)
		assert.Equal(t, uint(1), ev.Message.SenderID)
		assert.Equal(t, "alice", ev.Message.SenderName)
	}

	// Exactly once: no echo, no duplicate delivery.
	assertNoFrame(t, alice, 200*time.Millisecond)
	assertNoFrame(t, bob, 200*time.Millisecond)
}

func TestSubscribe_NonMemberForbidden(t *testing.T) {
	f := newHubFixture(t)
	f.membership.add(10, 1)

	eve := f.dial(t, 3, "eve")
	sendFrame(t, eve, &ClientFrame{Type: FrameSubscribe, GroupID: 10})

	errFrame := readFrame(t, eve)
	assert.Equal(t, FrameError, errFrame.Type)
	assert.Equal(t, CodeForbidden, errFrame.Code)
	assert.Equal(t, uint(10), errFrame.GroupID)
}

func TestSubscribe_MembershipCheckedAtCallTime(t *testing.T) {
	f := newHubFixture(t)
	f.membership.add(10, 1)

	alice := f.dial(t, 1, "alice")
	subscribe(t, alice, 10)

	// Membership revoked after subscribing: a resubscribe must fail even
	// though the connection was previously admitted.
	f.membership.remove(10, 1)
	sendFrame(t, alice, &ClientFrame{Type: FrameSubscribe, GroupID: 10})
	errFrame := readFrame(t, alice)
	assert.Equal(t, FrameError, errFrame.Type)
	assert.Equal(t, CodeForbidden, errFrame.Code)
}

func TestSubscribe_SingleRoomPerConnection(t *testing.T) {
	f := newHubFixture(t)
	f.membership.add(10, 1)
	f.membership.add(20, 1)

	alice := f.dial(t, 1, "alice")
	subscribe(t, alice, 10)
	subscribe(t, alice, 20)

	// Events for the abandoned room must not arrive.
	f.hub.Publish(10, &models.Message{ID: 1, GroupID: 10, SenderID: 9, Content: "old room"})
	f.hub.Publish(20, &models.Message{ID: 2, GroupID: 20, SenderID: 9, Content: "new room"})

	ev := readFrame(t, alice)
	require.Equal(t, FrameEvent, ev.Type)
	assert.Equal(t, uint(20), ev.GroupID)
	assert.Equal(t, "new room", ev.Message.Content)
	assertNoFrame(t, alice, 200*time.Millisecond)
}

func TestUnsubscribe_Idempotent(t *testing.T) {
	f := newHubFixture(t)
	f.membership.add(10, 1)

	alice := f.dial(t, 1, "alice")
	subscribe(t, alice, 10)

	sendFrame(t, alice, &ClientFrame{Type: FrameUnsubscribe})
	ack := readFrame(t, alice)
	assert.Equal(t, FrameUnsubscribed, ack.Type)
	assert.Equal(t, uint(10), ack.GroupID)

	// Second unsubscribe is a harmless no-op.
	sendFrame(t, alice, &ClientFrame{Type: FrameUnsubscribe})
	ack = readFrame(t, alice)
	assert.Equal(t, FrameUnsubscribed, ack.Type)
	assert.Equal(t, uint(0), ack.GroupID)

	f.hub.Publish(10, &models.Message{ID: 3, GroupID: 10, SenderID: 9, Content: "after leave"})
	assertNoFrame(t, alice, 200*time.Millisecond)
}

func TestPublish_EmptyRoomIsNoOp(t *testing.T) {
	f := newHubFixture(t)
	// No subscribers at all; this must simply not panic.
	f.hub.Publish(42, &models.Message{ID: 4, GroupID: 42, SenderID: 1, Content: "into the void"})
}

func TestSend_NonMemberGetsErrorFrame(t *testing.T) {
	f := newHubFixture(t)

	eve := f.dial(t, 3, "eve")
	sendFrame(t, eve, &ClientFrame{Type: FrameMessage, GroupID: 10, Content: "let me in"})

	errFrame := readFrame(t, eve)
	assert.Equal(t, FrameError, errFrame.Type)
	assert.Equal(t, CodeForbidden, errFrame.Code)
}

func TestBadFrame(t *testing.T) {
	f := newHubFixture(t)

	conn := f.dial(t, 1, "alice")
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))

	errFrame := readFrame(t, conn)
	assert.Equal(t, FrameError, errFrame.Type)
	assert.Equal(t, CodeBadFrame, errFrame.Code)
}

func TestPublish_OrderPreservedPerGroup(t *testing.T) {
	f := newHubFixture(t)
	f.membership.add(10, 1)

	alice := f.dial(t, 1, "alice")
	subscribe(t, alice, 10)

	for i := int64(1); i <= 20; i++ {
		f.hub.Publish(10, &models.Message{ID: i, GroupID: 10, SenderID: 2, Content: "m"})
	}
	for i := int64(1); i <= 20; i++ {
		ev := readFrame(t, alice)
		require.Equal(t, FrameEvent, ev.Type)
		assert.Equal(t, i, ev.Message.ID, "delivery must preserve publish order")
	}
}
