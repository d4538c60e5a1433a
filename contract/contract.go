//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"group-cart/domain"
	"reflect"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

type WorkerName string

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// It is used for logging and supervision purposes.
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

// Connection is the outbound side of one live channel.
// Send must never block: a slow peer loses frames, it never stalls a broadcast.
type Connection interface {
	ID() domain.ConnectionID
	Send(frame []byte) error
}

type IRegistry interface {
	Register(connID domain.ConnectionID, conn Connection)
	Bind(connID domain.ConnectionID, groupID domain.GroupID, userID domain.UserID)
	Unregister(connID domain.ConnectionID) domain.Session
	ConnectionsInGroup(groupID domain.GroupID) []domain.ConnectionID
	IsOnline(userID domain.UserID) bool
	Session(connID domain.ConnectionID) (domain.Session, bool)
	Connection(connID domain.ConnectionID) (Connection, bool)
}

type IBroadcaster interface {
	SendTo(ctx context.Context, connID domain.ConnectionID, eventName string, payload any)
	BroadcastToGroup(ctx context.Context, groupID domain.GroupID, eventName string, payload any, exclude ...domain.ConnectionID) int
}

// IDispatcher consumes inbound frames of one connection.
type IDispatcher interface {
	Dispatch(ctx context.Context, connID domain.ConnectionID, frame []byte)
	Forget(connID domain.ConnectionID)
}

// ISessionHooks reacts to channel open and close.
type ISessionHooks interface {
	OnConnect(ctx context.Context, connID domain.ConnectionID, hello domain.Hello)
	OnDisconnect(ctx context.Context, session domain.Session)
}
