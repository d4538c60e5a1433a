package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"group-cart/contract"
	"group-cart/domain"
	"group-cart/domain/event"
	"group-cart/errors"
	"group-cart/observability"
	"log/slog"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/time/rate"
)

// Request is what a handler knows about the sender of an event.
type Request struct {
	Event   string
	Session domain.Session
}

func (r Request) ConnectionID() domain.ConnectionID { return r.Session.ConnectionID }

type HandlerFunc func(ctx context.Context, req Request, data json.RawMessage) error

// Router decodes inbound frames and invokes exactly one handler per event name.
// Failures never leave the router: they become an "error" event sent to the
// originating connection only.
type Router struct {
	log         *slog.Logger
	registry    contract.IRegistry
	broadcaster contract.IBroadcaster
	metrics     *observability.Metrics
	validate    *validator.Validate
	handlers    map[string]HandlerFunc
	limit       rate.Limit
	burst       int
	mu          sync.Mutex
	limiters    map[domain.ConnectionID]*rate.Limiter
}

// NewRouter builds a router. A non-positive eventRate disables rate limiting.
func NewRouter(log *slog.Logger, registry contract.IRegistry, broadcaster contract.IBroadcaster,
	metrics *observability.Metrics, eventRate float64, burst int) *Router {
	limit := rate.Inf
	if eventRate > 0 {
		limit = rate.Limit(eventRate)
	}
	return &Router{
		log:         log,
		registry:    registry,
		broadcaster: broadcaster,
		metrics:     metrics,
		validate:    newValidator(),
		handlers:    make(map[string]HandlerFunc),
		limit:       limit,
		burst:       max(burst, 1),
		limiters:    make(map[domain.ConnectionID]*rate.Limiter),
	}
}

// Handle registers a typed handler. The payload is decoded and validated
// before fn runs. Handlers must be registered before the first Dispatch,
// and registering the same event twice panics.
func Handle[T any](r *Router, name string, fn func(ctx context.Context, req Request, payload T) error) {
	if _, exists := r.handlers[name]; exists {
		panic(fmt.Sprintf("handler already registered for %q", name))
	}
	r.handlers[name] = func(ctx context.Context, req Request, data json.RawMessage) error {
		var payload T
		if err := r.decode(data, &payload); err != nil {
			return err
		}
		return fn(ctx, req, payload)
	}
}

// Dispatch handles one inbound frame of connID.
func (r *Router) Dispatch(ctx context.Context, connID domain.ConnectionID, frame []byte) {
	start := time.Now()
	env, err := event.Decode(frame)
	if err != nil || env.Event == "" {
		r.fail(ctx, connID, "invalid", errors.Validation("malformed frame"), start)
		return
	}
	if !r.allow(connID) {
		r.fail(ctx, connID, env.Event, fmt.Errorf("%w: slow down", errors.ErrRateLimited), start)
		return
	}
	handler, ok := r.handlers[env.Event]
	if !ok {
		r.fail(ctx, connID, env.Event, fmt.Errorf("%w: %q", errors.ErrUnknownEvent, env.Event), start)
		return
	}
	session, ok := r.registry.Session(connID)
	if !ok {
		r.log.Debug("Frame from unregistered connection", "connection_id", connID, "event", env.Event)
		return
	}

	if err = r.invoke(ctx, handler, Request{Event: env.Event, Session: session}, env.Data); err != nil {
		r.fail(ctx, connID, env.Event, err, start)
		return
	}
	r.metrics.ObserveEvent(env.Event, observability.OutcomeOK, time.Since(start))
}

// Forget releases the per-connection state kept by the router.
func (r *Router) Forget(connID domain.ConnectionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.limiters, connID)
}

// invoke isolates the handler: a panic is turned into an error.
func (r *Router) invoke(ctx context.Context, handler HandlerFunc, req Request, data json.RawMessage) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("Handler panicked", "event", req.Event, "connection_id", req.ConnectionID(), "panic", rec)
			err = fmt.Errorf("%w: %v", errors.ErrWorkerPanic, rec)
		}
	}()
	return handler(ctx, req, data)
}

func (r *Router) fail(ctx context.Context, connID domain.ConnectionID, eventName string, err error, start time.Time) {
	code := errors.Code(err)
	outcome := observability.OutcomeRejected
	switch {
	case errors.Is(err, errors.ErrWorkerPanic):
		outcome = observability.OutcomePanic
	case code == errors.CodePersistence || code == errors.CodeInternal:
		outcome = observability.OutcomeFailed
		r.log.Error("Handler failed", "event", eventName, "connection_id", connID, "error", err)
	default:
		r.log.Debug("Event rejected", "event", eventName, "connection_id", connID, "error", err)
	}
	metricName := eventName
	if _, known := r.handlers[eventName]; !known {
		metricName = "unknown"
	}
	r.metrics.ObserveEvent(metricName, outcome, time.Since(start))
	r.broadcaster.SendTo(ctx, connID, event.Error, event.ErrorPayload{
		Code:    code,
		Message: errors.Message(err),
		Event:   eventName,
	})
}

func (r *Router) decode(data json.RawMessage, payload any) error {
	if len(data) > 0 && string(data) != "null" {
		if err := json.Unmarshal(data, payload); err != nil {
			return errors.Validation("invalid payload: %v", err)
		}
	}
	if reflect.Indirect(reflect.ValueOf(payload)).Kind() != reflect.Struct {
		return nil
	}
	if err := r.validate.Struct(payload); err != nil {
		var fieldErrors validator.ValidationErrors
		if errors.As(err, &fieldErrors) {
			parts := make([]string, 0, len(fieldErrors))
			for _, fe := range fieldErrors {
				parts = append(parts, fmt.Sprintf("%s: %s", fe.Field(), fe.Tag()))
			}
			return errors.Validation("%s", strings.Join(parts, ", "))
		}
		return errors.Validation("%v", err)
	}
	return nil
}

func (r *Router) allow(connID domain.ConnectionID) bool {
	if r.limit == rate.Inf {
		return true
	}
	r.mu.Lock()
	limiter, ok := r.limiters[connID]
	if !ok {
		limiter = rate.NewLimiter(r.limit, r.burst)
		r.limiters[connID] = limiter
	}
	r.mu.Unlock()
	return limiter.Allow()
}

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}
