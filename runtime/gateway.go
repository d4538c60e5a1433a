package runtime

import (
	"context"
	"fmt"
	"group-cart/contract"
	"group-cart/domain"
	"group-cart/errors"
	"group-cart/observability"
	"group-cart/sink"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// FrameConn is a message-framed, full-duplex transport channel.
// ReadFrame returns io.EOF once the peer has closed the channel normally.
type FrameConn interface {
	ReadFrame(ctx context.Context) ([]byte, error)
	WriteFrame(ctx context.Context, frame []byte) error
	Close() error
}

// Gateway runs the lifecycle of every connection, whatever its transport:
// register, announce, pump frames both ways, and always unregister.
type Gateway struct {
	log          *slog.Logger
	registry     contract.IRegistry
	dispatcher   contract.IDispatcher
	hooks        contract.ISessionHooks
	metrics      *observability.Metrics
	outboxSize   int
	writeTimeout time.Duration
}

func NewGateway(log *slog.Logger, registry contract.IRegistry, dispatcher contract.IDispatcher,
	hooks contract.ISessionHooks, metrics *observability.Metrics, outboxSize int, writeTimeout time.Duration) *Gateway {
	return &Gateway{
		log:          log,
		registry:     registry,
		dispatcher:   dispatcher,
		hooks:        hooks,
		metrics:      metrics,
		outboxSize:   outboxSize,
		writeTimeout: writeTimeout,
	}
}

// Serve blocks until the channel is closed by the peer, fails, or ctx is canceled.
// A normal close returns nil.
func (g *Gateway) Serve(ctx context.Context, conn FrameConn, hello domain.Hello) error {
	connID := domain.ConnectionID(uuid.NewString())
	log := g.log.With("connection_id", connID)
	outbox := sink.NewOutbox(connID, g.outboxSize)

	g.registry.Register(connID, outbox)
	g.metrics.ConnectionOpened()
	log.Debug("Connection opened", "group_id", hello.GroupID, "user_id", hello.UserID)

	defer func() {
		outbox.Close()
		session := g.registry.Unregister(connID)
		g.dispatcher.Forget(connID)
		g.metrics.ConnectionClosed()
		// The request context is gone by now, presence must still be pushed.
		g.hooks.OnDisconnect(context.WithoutCancel(ctx), session)
		log.Debug("Connection closed", "group_id", session.GroupID, "user_id", session.UserID)
	}()

	grp, gctx := errgroup.WithContext(ctx)
	grp.Go(func() error {
		return g.writeLoop(gctx, conn, outbox)
	})
	grp.Go(func() error {
		// Unblocks a reader stuck in ReadFrame once anything else has stopped.
		<-gctx.Done()
		_ = conn.Close()
		return nil
	})

	g.hooks.OnConnect(gctx, connID, hello)

	grp.Go(func() error {
		return g.readLoop(gctx, conn, connID)
	})

	err := grp.Wait()
	if err == nil || errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// readLoop dispatches frames sequentially: one logical worker per connection.
// It always returns a non-nil error so that the group is canceled.
func (g *Gateway) readLoop(ctx context.Context, conn FrameConn, connID domain.ConnectionID) error {
	for {
		frame, err := conn.ReadFrame(ctx)
		if err != nil {
			return err
		}
		g.dispatcher.Dispatch(ctx, connID, frame)
	}
}

func (g *Gateway) writeLoop(ctx context.Context, conn FrameConn, outbox *sink.Outbox) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-outbox.Done():
			return io.EOF
		case frame := <-outbox.Frames():
			if err := g.write(ctx, conn, frame); err != nil {
				return fmt.Errorf("write frame: %w", err)
			}
		}
	}
}

func (g *Gateway) write(ctx context.Context, conn FrameConn, frame []byte) error {
	if g.writeTimeout <= 0 {
		return conn.WriteFrame(ctx, frame)
	}
	writeCtx, cancel := context.WithTimeout(ctx, g.writeTimeout)
	defer cancel()
	return conn.WriteFrame(writeCtx, frame)
}
