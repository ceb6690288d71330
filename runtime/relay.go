package runtime

import (
	"context"
	"log/slog"
	"whiteboard-relay/codec"
	"whiteboard-relay/contract"
	"whiteboard-relay/domain"
	"whiteboard-relay/errors"
)

// Relay fans every inbound frame of a connection out to the other members of
// its room. It owns no goroutines: each connection is driven by the caller's
// goroutine inside HandleConnection.
type Relay struct {
	log      *slog.Logger
	registry contract.IRegistry
	recorder contract.Recorder
}

func NewRelay(log *slog.Logger, registry contract.IRegistry, recorder contract.Recorder) *Relay {
	return &Relay{
		log:      log,
		registry: registry,
		recorder: recorder,
	}
}

// HandleConnection joins conn to roomID and relays its frames until the
// connection ends or ctx is cancelled. The connection leaves the room on
// every exit path, panics included.
//
// Cancelling ctx closes conn so that a blocked Receive returns.
// A connection already present in the room is left untouched.
func (r *Relay) HandleConnection(ctx context.Context, roomID domain.RoomID, conn contract.Connection) {
	log := r.log.With("room_id", roomID, "conn_id", conn.ID())

	if !r.registry.Join(roomID, conn) {
		log.Warn("connection already joined this room")
		return
	}
	r.recorder.ConnectionOpened()
	log.Debug("connection joined room")

	stop := context.AfterFunc(ctx, func() {
		_ = conn.Close()
	})

	defer func() {
		stop()
		if rec := recover(); rec != nil {
			log.Error("connection loop crashed", "error", errors.ErrConnectionPanic, "panic", rec)
		}
		r.registry.Leave(roomID, conn)
		r.recorder.ConnectionClosed()
		log.Debug("connection left room")
	}()

	for {
		frame, err := conn.Receive()
		if err != nil {
			log.Debug("receive ended", "error", err)
			return
		}

		msg := codec.Decode(frame)
		r.recorder.FrameReceived(msg.Raw)
		r.Broadcast(roomID, conn, msg)
	}
}

// Broadcast delivers msg to every member of roomID except sender, using the
// membership snapshot taken at call time. A target whose Send fails is removed
// from the room and closed; the remaining targets are still attempted.
// It returns the number of successful deliveries.
func (r *Relay) Broadcast(roomID domain.RoomID, sender contract.Connection, msg domain.Message) int {
	targets := r.registry.MembersOf(roomID, sender)
	if len(targets) == 0 {
		return 0
	}

	frame := codec.Encode(msg)
	delivered := 0
	for _, target := range targets {
		if err := target.Send(frame); err != nil {
			r.reap(roomID, target, err)
			continue
		}
		delivered++
		r.recorder.Delivered()
	}
	return delivered
}

func (r *Relay) reap(roomID domain.RoomID, target contract.Connection, cause error) {
	r.recorder.DeliveryFailed()
	r.registry.Leave(roomID, target)
	// Unblocks the target's own loop, which then leaves as a no-op.
	_ = target.Close()
	r.log.Debug("dropped unreachable connection",
		"room_id", roomID, "conn_id", target.ID(), "error", cause)
}
