// Package autosave keeps tracked HTML forms in sync with a durable local
// cache and submits them to their action endpoints on request.
//
// A Session is the unit of state: it owns the registry of tracked forms, the
// deferred-value table for async selects and the in-flight submissions.
// Every workflow runs under the session lock; only the network request of a
// submission happens outside it. Hooks, validators and form mutations
// triggered by the session run with the lock held and must not call back
// into the session.
package autosave

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/zjrosen/activesave/internal/fingerprint"
	"github.com/zjrosen/activesave/internal/flags"
	"github.com/zjrosen/activesave/internal/form"
	"github.com/zjrosen/activesave/internal/keys"
	"github.com/zjrosen/activesave/internal/log"
	"github.com/zjrosen/activesave/internal/pubsub"
	"github.com/zjrosen/activesave/internal/registry"
	"github.com/zjrosen/activesave/internal/store"
	"github.com/zjrosen/activesave/internal/submit"
	"github.com/zjrosen/activesave/internal/tracing"
	"github.com/zjrosen/activesave/internal/validation"
)

var (
	// ErrNoFormID is returned when tracking a form without an id attribute.
	ErrNoFormID = errors.New("form has no id")
	// ErrNotTracked is returned for operations on a form id the session does not track.
	ErrNotTracked = errors.New("form is not tracked")
	// ErrNoControl is returned when a named control does not exist on a tracked form.
	ErrNoControl = errors.New("control not found")
	// ErrUnknownSignal is returned by Dispatch for signals that do not name a workflow.
	ErrUnknownSignal = errors.New("unknown signal")
)

var errNoSender = errors.New("no sender configured")

// Sender delivers a prepared submission. *submit.Client implements it.
type Sender interface {
	Send(ctx context.Context, req submit.Request) (submit.Response, error)
}

// Signal is the payload of every event a session publishes.
type Signal struct {
	FormID    string
	Scope     string
	Subscope  string
	ControlID string
	// Targets are the form ids a workflow was asked to run for; empty means all.
	Targets []string
}

// TrackOptions configures Track.
type TrackOptions struct {
	// Scope defaults to the session's default scope.
	Scope string
	// PreSubmit may veto a submission attempt.
	PreSubmit registry.PreSubmitFunc
	// SkipAppend snapshots the form into the cache without first applying
	// cached values to it.
	SkipAppend bool
	// Dirty registers the form as holding unsaved edits, so the next
	// submission is sent even if nothing changes after tracking.
	Dirty bool
}

// FormState describes a tracked form for display.
type FormState struct {
	ID          string
	Scope       string
	Subscope    string
	Key         string
	Fingerprint string
	// Dirty is true when the form was marked dirty by a push or differs from
	// its clean fingerprint now.
	Dirty bool
}

// Option configures a Session.
type Option func(*Session)

// WithValidator gates submissions on v. The default accepts every form.
func WithValidator(v validation.Validator) Option {
	return func(s *Session) {
		if v != nil {
			s.validator = v
		}
	}
}

// WithFlags sets the feature flag registry.
func WithFlags(f *flags.Registry) Option {
	return func(s *Session) { s.flags = f }
}

// WithTracer records workflow spans on t.
func WithTracer(t trace.Tracer) Option {
	return func(s *Session) { s.tracer = t }
}

// WithUnloadTimeout bounds how long Unload waits when the await-unload flag is on.
func WithUnloadTimeout(d time.Duration) Option {
	return func(s *Session) { s.unloadTimeout = d }
}

// WithDefaultScope sets the scope used when TrackOptions.Scope is empty.
func WithDefaultScope(scope string) Option {
	return func(s *Session) {
		if scope != "" {
			s.scope = scope
		}
	}
}

// Session coordinates tracked forms, the cache and submissions.
type Session struct {
	mu       sync.Mutex
	registry *registry.Registry
	deferred map[string]*deferredValue
	inflight map[string]*Submission
	queued   map[string]*Submission
	pending  sync.WaitGroup

	cache         *store.Store
	sender        Sender
	validator     validation.Validator
	flags         *flags.Registry
	broker        *pubsub.Broker[Signal]
	tracer        trace.Tracer
	scope         string
	unloadTimeout time.Duration
}

// New creates a session over cache. sender may be nil for sessions that never
// submit; their submissions fail.
func New(cache *store.Store, sender Sender, opts ...Option) *Session {
	s := &Session{
		registry:      registry.New(),
		deferred:      make(map[string]*deferredValue),
		inflight:      make(map[string]*Submission),
		queued:        make(map[string]*Submission),
		cache:         cache,
		sender:        sender,
		validator:     validation.None,
		broker:        pubsub.NewBroker[Signal](),
		scope:         keys.DefaultScope,
		unloadTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close stops event delivery. In-flight submissions still complete.
func (s *Session) Close() {
	s.broker.Close()
}

// Subscribe returns a channel of session events, optionally filtered by type.
func (s *Session) Subscribe(ctx context.Context, types ...pubsub.EventType) <-chan pubsub.Event[Signal] {
	return s.broker.Subscribe(ctx, types...)
}

var _ pubsub.Subscriber[Signal] = (*Session)(nil)

// Track registers f, applies any cached values to it and snapshots it into
// the cache. Tracking an id again replaces the earlier registration.
func (s *Session) Track(ctx context.Context, f *form.Form, opts TrackOptions) error {
	id := f.ID()
	if id == "" {
		return ErrNoFormID
	}
	scope := opts.Scope
	if scope == "" {
		scope = s.scope
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec := &registry.Record{
		ID:          id,
		Scope:       scope,
		Subscope:    f.Subscope(),
		Form:        f,
		Fingerprint: fingerprint.Form(f),
		Dirty:       opts.Dirty,
		PreSubmit:   opts.PreSubmit,
	}
	ctx, span := tracing.Start(ctx, s.tracer, tracing.SpanTrack,
		attribute.String(tracing.AttrFormID, id),
		attribute.String(tracing.AttrNamespaceKey, rec.Key()),
	)
	defer span.End()

	s.registry.Put(rec)
	s.retargetDeferred(rec)
	log.Info(log.CatSession, "tracking form", "form", id, "key", rec.Key())

	targets := []*registry.Record{rec}
	if !opts.SkipAppend {
		s.appendLocked(ctx, targets)
	}
	s.pushLocked(ctx, targets)
	return nil
}

// Untrack drops a form without saving it.
func (s *Session) Untrack(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.registry.Delete(id)
	s.dropDeferred(id)
}

// Tracked returns the tracked form ids in registration order.
func (s *Session) Tracked() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registry.IDs()
}

// State reports a tracked form's namespace and dirty state.
func (s *Session) State(id string) (FormState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.registry.Get(id)
	if !ok {
		return FormState{}, fmt.Errorf("%w: %s", ErrNotTracked, id)
	}
	return FormState{
		ID:          rec.ID,
		Scope:       rec.Scope,
		Subscope:    rec.Subscope,
		Key:         rec.Key(),
		Fingerprint: rec.Fingerprint,
		Dirty:       rec.Dirty || fingerprint.Dirty(rec.Fingerprint, rec.Form),
	}, nil
}

// Push writes the targeted forms' current values into the cache. No ids
// targets every tracked form.
func (s *Session) Push(ctx context.Context, ids ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.broker.Publish(pubsub.PushEvent, Signal{Targets: ids})
	s.pushLocked(ctx, s.registry.Resolve(ids...))
}

// Append applies cached values to the targeted forms and makes the result
// their clean baseline.
func (s *Session) Append(ctx context.Context, ids ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.broker.Publish(pubsub.AppendEvent, Signal{Targets: ids})
	s.appendLocked(ctx, s.registry.Resolve(ids...))
}

// Persist pushes the targeted forms and starts a submission for each. The
// returned submissions settle independently; see Wait.
func (s *Session) Persist(ctx context.Context, ids ...string) []*Submission {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.broker.Publish(pubsub.PersistEvent, Signal{Targets: ids})
	return s.persistLocked(ctx, s.registry.Resolve(ids...), nil)
}

// Submit runs the submission protocol for one tracked form, as a native
// form submit would.
func (s *Session) Submit(ctx context.Context, id string) (*Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.registry.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotTracked, id)
	}
	return s.submitLocked(ctx, rec, nil), nil
}

// Unload persists the targeted forms, clears each form's namespace once its
// save is confirmed and stops tracking them. Forms are dropped right after
// the submissions start unless the await-unload flag is set, in which case
// Unload first waits up to the unload timeout for them to settle.
func (s *Session) Unload(ctx context.Context, ids ...string) []*Submission {
	s.mu.Lock()
	defer s.mu.Unlock()

	targets := s.registry.Resolve(ids...)
	ctx, span := tracing.Start(ctx, s.tracer, tracing.SpanUnload,
		attribute.Int(tracing.AttrTargetCount, len(targets)))
	defer span.End()
	s.broker.Publish(pubsub.UnloadEvent, Signal{Targets: ids})

	subs := s.persistLocked(ctx, targets, func(rec *registry.Record) func() {
		pushed := fingerprint.Form(rec.Form)
		return func() {
			if rec.Fingerprint != pushed {
				log.Warn(log.CatSession, "keeping namespace, confirmed save predates the unloaded values", "form", rec.ID, "key", rec.Key())
				return
			}
			if err := s.cache.Remove(context.WithoutCancel(ctx), rec.Key()); err != nil {
				log.ErrorErr(log.CatSession, "failed to clear persisted namespace", err, "key", rec.Key())
				return
			}
			log.Debug(log.CatSession, "cleared persisted namespace", "form", rec.ID, "key", rec.Key())
		}
	})

	if s.flags.Enabled(flags.FlagAwaitUnload) {
		s.mu.Unlock()
		settled := awaitAll(ctx, subs, s.unloadTimeout)
		s.mu.Lock()
		if !settled {
			log.Warn(log.CatSession, "unload timed out waiting for submissions", "timeout", s.unloadTimeout)
		}
	}

	for _, rec := range targets {
		if current, ok := s.registry.Get(rec.ID); ok && current == rec {
			s.registry.Delete(rec.ID)
			s.dropDeferred(rec.ID)
		}
	}
	log.Info(log.CatSession, "unloaded forms", "count", len(targets))
	return subs
}

func awaitAll(ctx context.Context, subs []*Submission, timeout time.Duration) bool {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	for _, sub := range subs {
		select {
		case <-sub.Done():
		case <-ctx.Done():
			return false
		}
	}
	return true
}

// Dispatch runs the workflow a request signal names.
func (s *Session) Dispatch(ctx context.Context, signal pubsub.EventType, ids ...string) ([]*Submission, error) {
	switch signal {
	case pubsub.PushEvent:
		s.Push(ctx, ids...)
	case pubsub.AppendEvent:
		s.Append(ctx, ids...)
	case pubsub.PersistEvent:
		return s.Persist(ctx, ids...), nil
	case pubsub.UnloadEvent:
		return s.Unload(ctx, ids...), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownSignal, signal)
	}
	return nil, nil
}

// Set stores a value for the namespace of scope and subscope. When a
// tracked form uses that namespace the value is written into the first such
// form, and reaches the cache on its next push; otherwise it goes straight
// into the cache.
func (s *Session) Set(ctx context.Context, scope, subscope, name string, value any) error {
	if scope == "" {
		scope = s.scope
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rec := range s.registry.All() {
		if rec.Scope == scope && rec.Subscope == subscope {
			s.setField(rec, name, value)
			return nil
		}
	}
	return s.cache.SetField(ctx, keys.Derive(scope, subscope), name, value)
}

// SetField writes a value into one control of a tracked form.
func (s *Session) SetField(_ context.Context, formID, name string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.registry.Get(formID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotTracked, formID)
	}
	s.setField(rec, name, value)
	return nil
}

// Retrieve returns the cached namespace, or nil.
func (s *Session) Retrieve(ctx context.Context, scope, subscope string) store.Values {
	return s.cache.Get(ctx, keys.Derive(s.orDefault(scope), subscope))
}

// RetrieveField returns one cached value, or nil.
func (s *Session) RetrieveField(ctx context.Context, scope, subscope, name string) any {
	return s.cache.GetField(ctx, keys.Derive(s.orDefault(scope), subscope), name)
}

// Remove clears a cached namespace, or only name within it when name is set.
func (s *Session) Remove(ctx context.Context, scope, subscope, name string) error {
	key := keys.Derive(s.orDefault(scope), subscope)
	if name == "" {
		return s.cache.Remove(ctx, key)
	}
	return s.cache.RemoveField(ctx, key, name)
}

func (s *Session) orDefault(scope string) string {
	if scope == "" {
		return s.scope
	}
	return scope
}

// OptionsLoaded populates an async select and applies any value deferred
// for it. control is the select's id, or its name when it has no id.
func (s *Session) OptionsLoaded(formID, control string, options []form.Option) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.registry.Get(formID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotTracked, formID)
	}
	c, ok := rec.Form.Control(control)
	if !ok {
		for _, candidate := range rec.Form.ByName(control) {
			if candidate.Kind() == form.KindSelect && candidate.ID() == "" {
				c, ok = candidate, true
				break
			}
		}
	}
	if !ok || c.Kind() != form.KindSelect {
		return fmt.Errorf("%w: %s on form %s", ErrNoControl, control, formID)
	}
	c.SetOptions(options)
	return nil
}

// Wait blocks until every started submission has settled or ctx ends.
func (s *Session) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.pending.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) pushLocked(ctx context.Context, targets []*registry.Record) {
	_, span := tracing.Start(ctx, s.tracer, tracing.SpanPush,
		attribute.Int(tracing.AttrTargetCount, len(targets)))
	defer span.End()

	for _, rec := range targets {
		if fingerprint.Dirty(rec.Fingerprint, rec.Form) {
			rec.Dirty = true
		}
		values := s.cache.Get(ctx, rec.Key())
		if values == nil {
			values = store.Values{}
		}
		for name, value := range rec.Form.Snapshot() {
			values[name] = value
		}
		// a select still waiting for its options keeps the value it will receive
		for _, d := range s.deferred {
			if d.rec == rec {
				values[d.name] = d.value
			}
		}
		if err := s.cache.Set(ctx, rec.Key(), values); err != nil {
			log.ErrorErr(log.CatSession, "push failed", err, "form", rec.ID, "key", rec.Key())
			tracing.RecordError(span, err)
			continue
		}
		span.AddEvent(tracing.EventCacheWritten, trace.WithAttributes(
			attribute.String(tracing.AttrFormID, rec.ID),
			attribute.String(tracing.AttrNamespaceKey, rec.Key()),
		))
		log.Debug(log.CatSession, "pushed form", "form", rec.ID, "key", rec.Key(), "dirty", rec.Dirty)
	}
}

func (s *Session) appendLocked(ctx context.Context, targets []*registry.Record) {
	_, span := tracing.Start(ctx, s.tracer, tracing.SpanAppend,
		attribute.Int(tracing.AttrTargetCount, len(targets)))
	defer span.End()

	for _, rec := range targets {
		values := s.cache.Get(ctx, rec.Key())
		for _, name := range values.Names() {
			s.setField(rec, name, values[name])
		}
		s.broker.Publish(pubsub.AppendCompletedEvent, Signal{
			FormID:   rec.ID,
			Scope:    rec.Scope,
			Subscope: rec.Subscope,
		})
		rec.Fingerprint = fingerprint.Form(rec.Form)
		log.Debug(log.CatSession, "appended cached values", "form", rec.ID, "key", rec.Key(), "fields", len(values))
	}
}

// persistLocked pushes targets then submits each. onPersisted, when set,
// builds a callback per record that runs after that record's save is confirmed.
func (s *Session) persistLocked(ctx context.Context, targets []*registry.Record, onPersisted func(*registry.Record) func()) []*Submission {
	ctx, span := tracing.Start(ctx, s.tracer, tracing.SpanPersist,
		attribute.Int(tracing.AttrTargetCount, len(targets)))
	defer span.End()

	s.pushLocked(ctx, targets)
	subs := make([]*Submission, 0, len(targets))
	for _, rec := range targets {
		var cb func()
		if onPersisted != nil {
			cb = onPersisted(rec)
		}
		log.Debug(log.CatSession, "attempting to save", "form", rec.ID, "key", rec.Key())
		subs = append(subs, s.submitLocked(ctx, rec, cb))
	}
	return subs
}
