package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"
	"whiteboard-relay/codec"
	"whiteboard-relay/contract"
	"whiteboard-relay/domain"
	"whiteboard-relay/mocks"
	"whiteboard-relay/observability"

	"github.com/mama165/sdk-go/logs"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

const waitFor = time.Second

func newTestRelay() (*Relay, *Registry) {
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	registry := NewRegistry()
	return NewRelay(log, registry, observability.NewMetrics(registry)), registry
}

// serve runs HandleConnection in its own goroutine and closes the returned
// channel when it returns.
func serve(ctx context.Context, relay *Relay, roomID domain.RoomID, conn contract.Connection) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		relay.HandleConnection(ctx, roomID, conn)
	}()
	return done
}

func waitMembers(t *testing.T, registry *Registry, roomID domain.RoomID, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return registry.MemberCount(roomID) == n
	}, waitFor, time.Millisecond)
}

func waitSent(t *testing.T, conn *fakeConn, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(conn.Sent()) >= n
	}, waitFor, time.Millisecond)
}

func waitDone(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(waitFor):
		require.Fail(t, "connection loop did not return in time")
	}
}

func TestRelay_Three_Members_Then_Disconnects(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	relay, registry := newTestRelay()
	roomID := domain.RoomID("r1")
	c1, c2, c3 := newFakeConn(), newFakeConn(), newFakeConn()

	// Given three connections joined r1
	done1 := serve(ctx, relay, roomID, c1)
	done2 := serve(ctx, relay, roomID, c2)
	done3 := serve(ctx, relay, roomID, c3)
	waitMembers(t, registry, roomID, 3)

	// When c1 sends a document
	c1.inbox <- []byte(`{"x":1}`)

	// Then c2 and c3 receive it, c1 receives nothing
	waitSent(t, c2, 1)
	waitSent(t, c3, 1)
	req.Equal([]string{`{"x":1}`}, c2.Sent())
	req.Equal([]string{`{"x":1}`}, c3.Sent())
	req.Empty(c1.Sent())

	// When c2 disconnects and c1 sends again
	close(c2.inbox)
	waitDone(t, done2)
	req.Equal(2, registry.MemberCount(roomID))
	c1.inbox <- []byte(`{"x":2}`)

	// Then only c3 receives it
	waitSent(t, c3, 2)
	req.Equal([]string{`{"x":1}`, `{"x":2}`}, c3.Sent())
	req.Equal([]string{`{"x":1}`}, c2.Sent())
	req.ElementsMatch([]contract.Connection{c1, c3}, registry.MembersOf(roomID, nil))

	// When c3 then c1 disconnect
	close(c3.inbox)
	waitDone(t, done3)
	close(c1.inbox)
	waitDone(t, done1)

	// Then the room no longer exists
	req.False(registry.Has(roomID))
}

func TestRelay_Raw_Text_Is_Wrapped_For_Other_Members(t *testing.T) {
	req := require.New(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	relay, registry := newTestRelay()
	roomID := domain.RoomID("r2")
	c, d := newFakeConn(), newFakeConn()

	// Given c and d are in r2
	serve(ctx, relay, roomID, c)
	serve(ctx, relay, roomID, d)
	waitMembers(t, registry, roomID, 2)

	// When c sends plain text
	c.inbox <- []byte("hello")

	// Then d receives the raw envelope
	waitSent(t, d, 1)
	req.Equal([]string{`{"type":"raw","payload":"hello"}`}, d.Sent())
	req.Empty(c.Sent())
}

func TestRelay_Rooms_Are_Isolated(t *testing.T) {
	req := require.New(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	relay, registry := newTestRelay()
	a1, a2, b1 := newFakeConn(), newFakeConn(), newFakeConn()

	serve(ctx, relay, "a", a1)
	serve(ctx, relay, "a", a2)
	serve(ctx, relay, "b", b1)
	waitMembers(t, registry, "a", 2)
	waitMembers(t, registry, "b", 1)

	// When a1 sends in room a
	a1.inbox <- []byte(`{"room":"a"}`)
	waitSent(t, a2, 1)

	// Then nothing reaches room b
	b1.inbox <- []byte(`{"room":"b"}`)
	time.Sleep(20 * time.Millisecond)
	req.Empty(b1.Sent())
	req.Equal([]string{`{"room":"a"}`}, a2.Sent())
}

func TestRelay_Failed_Target_Is_Reaped(t *testing.T) {
	req := require.New(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	relay, registry := newTestRelay()
	roomID := domain.RoomID("r1")
	sender, healthy, broken := newFakeConn(), newFakeConn(), newFakeConn()

	// Given three members, one of which can no longer be written to
	serve(ctx, relay, roomID, sender)
	serve(ctx, relay, roomID, healthy)
	brokenDone := serve(ctx, relay, roomID, broken)
	waitMembers(t, registry, roomID, 3)
	broken.failSend.Store(true)

	// When the sender broadcasts
	sender.inbox <- []byte(`{"stroke":1}`)

	// Then the healthy member still receives the message
	waitSent(t, healthy, 1)
	req.Equal([]string{`{"stroke":1}`}, healthy.Sent())

	// And the broken one is removed, closed and its loop ends
	waitDone(t, brokenDone)
	req.GreaterOrEqual(broken.closes.Load(), int32(1))
	req.ElementsMatch([]contract.Connection{sender, healthy}, registry.MembersOf(roomID, nil))

	// And the sender keeps relaying
	sender.inbox <- []byte(`{"stroke":2}`)
	waitSent(t, healthy, 2)
	req.Empty(sender.Sent())
}

func TestRelay_Per_Sender_Order_Is_Preserved(t *testing.T) {
	req := require.New(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	relay, registry := newTestRelay()
	roomID := domain.RoomID("order")
	sender, receiver := newFakeConn(), newFakeConn()

	serve(ctx, relay, roomID, sender)
	serve(ctx, relay, roomID, receiver)
	waitMembers(t, registry, roomID, 2)

	const count = 200
	go func() {
		for i := range count {
			sender.inbox <- []byte(fmt.Sprintf(`{"seq":%d}`, i))
		}
	}()

	waitSent(t, receiver, count)
	got := receiver.Sent()
	for i := range count {
		req.Equal(fmt.Sprintf(`{"seq":%d}`, i), got[i])
	}
}

func TestRelay_Context_Cancellation_Ends_Loop(t *testing.T) {
	req := require.New(t)
	ctx, cancel := context.WithCancel(context.Background())
	relay, registry := newTestRelay()
	conn := newFakeConn()

	// Given a connection blocked in Receive
	done := serve(ctx, relay, "r1", conn)
	waitMembers(t, registry, "r1", 1)

	// When the server shuts down
	cancel()

	// Then the connection is closed and leaves the room
	waitDone(t, done)
	req.Equal(int32(1), conn.closes.Load())
	req.False(registry.Has("r1"))
}

type panicConn struct {
	*fakeConn
}

func (c *panicConn) Receive() ([]byte, error) {
	panic("decoder exploded")
}

func TestRelay_Panic_Still_Leaves_Room(t *testing.T) {
	req := require.New(t)
	relay, registry := newTestRelay()
	conn := &panicConn{fakeConn: newFakeConn()}
	other := newFakeConn()
	registry.Join("r1", other)

	// When the loop panics
	req.NotPanics(func() {
		relay.HandleConnection(context.Background(), "r1", conn)
	})

	// Then the connection is gone and the other member is untouched
	req.Equal([]contract.Connection{other}, registry.MembersOf("r1", nil))
}

func TestRelay_Same_Connection_Twice_Does_Not_Duplicate(t *testing.T) {
	req := require.New(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	relay, registry := newTestRelay()
	conn := newFakeConn()

	serve(ctx, relay, "r1", conn)
	waitMembers(t, registry, "r1", 1)

	// When the same connection is handed over again it returns at once
	waitDone(t, serve(ctx, relay, "r1", conn))

	// And the first loop still owns the membership
	req.Equal(1, registry.MemberCount("r1"))
	req.Zero(conn.closes.Load())
}

func TestRelay_Broadcast_Reaps_Failed_Target(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockRegistry := mocks.NewMockIRegistry(ctrl)
	mockRecorder := mocks.NewMockRecorder(ctrl)
	sender := mocks.NewMockConnection(ctrl)
	healthy := mocks.NewMockConnection(ctrl)
	broken := mocks.NewMockConnection(ctrl)
	relay := NewRelay(log, mockRegistry, mockRecorder)
	roomID := domain.RoomID("r1")
	msg := codec.Decode([]byte(`{"x":1}`))

	// Given the room holds a healthy and a broken target
	mockRegistry.EXPECT().MembersOf(roomID, sender).
		Return([]contract.Connection{broken, healthy}).Times(1)

	// And the broken target fails, is removed then closed
	gomock.InOrder(
		broken.EXPECT().Send([]byte(`{"x":1}`)).Return(fmt.Errorf("broken pipe")),
		mockRecorder.EXPECT().DeliveryFailed(),
		mockRegistry.EXPECT().Leave(roomID, broken).Return(true),
		broken.EXPECT().Close().Return(nil),
	)
	broken.EXPECT().ID().Return("broken").AnyTimes()

	// And the healthy target receives the frame
	healthy.EXPECT().Send([]byte(`{"x":1}`)).Return(nil).Times(1)
	mockRecorder.EXPECT().Delivered().Times(1)

	// When broadcasting
	delivered := relay.Broadcast(roomID, sender, msg)

	// Then only one delivery succeeded
	req.Equal(1, delivered)
}

func TestRelay_Broadcast_To_Empty_Room(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockRegistry := mocks.NewMockIRegistry(ctrl)
	mockRecorder := mocks.NewMockRecorder(ctrl)
	sender := mocks.NewMockConnection(ctrl)
	relay := NewRelay(log, mockRegistry, mockRecorder)

	// Given the sender is alone
	mockRegistry.EXPECT().MembersOf(domain.RoomID("solo"), sender).Return(nil).Times(1)

	// When broadcasting, then nothing is sent and nothing recorded
	req.Zero(relay.Broadcast("solo", sender, codec.Decode([]byte("hi"))))
}

func TestRelay_Active_Rooms_Gauge_Tracks_Concurrent_Leaves(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	registry := NewRegistry()
	metrics := observability.NewMetrics(registry)
	relay := NewRelay(log, registry, metrics)

	// Given one long-lived room and twenty short-lived ones
	keeper := newFakeConn()
	serve(ctx, relay, "live", keeper)
	waitMembers(t, registry, "live", 1)

	conns := make([]*fakeConn, 20)
	dones := make([]<-chan struct{}, 20)
	for i := range conns {
		conns[i] = newFakeConn()
		dones[i] = serve(ctx, relay, domain.RoomID(fmt.Sprintf("r%d", i)), conns[i])
	}
	require.Eventually(t, func() bool {
		rooms, _ := registry.Stats()
		return rooms == 21
	}, waitFor, time.Millisecond)
	req.Equal(float64(21), testutil.ToFloat64(metrics.ActiveRooms()))

	// When every short-lived connection hangs up at once
	for _, conn := range conns {
		close(conn.inbox)
	}
	for _, done := range dones {
		waitDone(t, done)
	}

	// Then the gauge still counts the live room
	req.Equal(float64(1), testutil.ToFloat64(metrics.ActiveRooms()))
	_ = keeper.Close()
}
