//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"reflect"
	"whiteboard-relay/domain"
)

// Connection is one live bidirectional session with a peer.
// Any error returned by Send or Receive means the connection is gone;
// callers must not branch on the error type.
type Connection interface {
	ID() string
	Send(frame []byte) error
	// Receive blocks until a frame arrives or the transport ends.
	// Close must unblock a pending Receive.
	Receive() ([]byte, error)
	Close() error
}

type IRegistry interface {
	Join(roomID domain.RoomID, conn Connection) bool
	Leave(roomID domain.RoomID, conn Connection) bool
	MembersOf(roomID domain.RoomID, exclude Connection) []Connection
	Stats() (rooms, connections int)
}

// Recorder receives relay counters. Implementations must be safe for
// concurrent use since every connection loop reports through it.
type Recorder interface {
	ConnectionOpened()
	ConnectionClosed()
	FrameReceived(raw bool)
	Delivered()
	DeliveryFailed()
}

// Worker is a background loop run under a supervisor.
// It returns nil when it is done for good.
type Worker interface {
	Run(ctx context.Context) error
}

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
}

// GetWorkerName returns the type name of w for logs.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}
