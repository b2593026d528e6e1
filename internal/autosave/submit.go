package autosave

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/zjrosen/activesave/internal/fingerprint"
	"github.com/zjrosen/activesave/internal/flags"
	"github.com/zjrosen/activesave/internal/log"
	"github.com/zjrosen/activesave/internal/pubsub"
	"github.com/zjrosen/activesave/internal/registry"
	"github.com/zjrosen/activesave/internal/submit"
	"github.com/zjrosen/activesave/internal/tracing"
)

// submitLocked runs the submission protocol for rec. Unless the
// allow-duplicate-submissions flag is set, a request already in flight for
// rec is joined when it carries the form's current content; otherwise a
// follow-up is queued behind it and later calls join that follow-up.
// onPersisted may be nil.
func (s *Session) submitLocked(ctx context.Context, rec *registry.Record, onPersisted func()) *Submission {
	if !s.flags.Enabled(flags.FlagAllowDuplicateSubmissions) {
		if queued, ok := s.queued[rec.ID]; ok {
			queued.addCallback(onPersisted)
			log.Debug(log.CatSubmit, "joining queued submission", "form", rec.ID, "submission", queued.ID())
			return queued
		}
		if running, ok := s.inflight[rec.ID]; ok {
			if running.sent == fingerprint.Form(rec.Form) {
				running.addCallback(onPersisted)
				log.Debug(log.CatSubmit, "joining in-flight submission", "form", rec.ID, "submission", running.ID())
				return running
			}
			sub := newSubmission(rec.ID)
			sub.addCallback(onPersisted)
			s.queued[rec.ID] = sub
			s.pending.Add(1)
			go s.followUp(ctx, rec, running, sub)
			log.Debug(log.CatSubmit, "queued submission behind in-flight one", "form", rec.ID, "submission", sub.ID(), "after", running.ID())
			return sub
		}
	}

	sub := newSubmission(rec.ID)
	sub.addCallback(onPersisted)
	return s.startLocked(ctx, rec, sub)
}

// followUp starts sub once after has settled. The form is read at that
// point, so edits made while sub was queued are included.
func (s *Session) followUp(ctx context.Context, rec *registry.Record, after, sub *Submission) {
	defer s.pending.Done()
	<-after.Done()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queued[rec.ID] == sub {
		delete(s.queued, rec.ID)
	}
	s.startLocked(ctx, rec, sub)
}

func (s *Session) startLocked(ctx context.Context, rec *registry.Record, sub *Submission) *Submission {
	ctx, span := tracing.Start(context.WithoutCancel(ctx), s.tracer, tracing.SpanSubmit,
		attribute.String(tracing.AttrFormID, rec.ID),
		attribute.String(tracing.AttrNamespaceKey, rec.Key()),
		attribute.String(tracing.AttrSubmissionID, sub.ID()),
	)

	settle := func(outcome Outcome, err error) *Submission {
		span.SetAttributes(attribute.String(tracing.AttrSubmissionOutcome, outcome.String()))
		tracing.RecordError(span, err)
		span.End()
		sub.finish(outcome, err)
		return sub
	}

	if !rec.AllowSubmit() {
		log.Debug(log.CatSubmit, "pre-submit hook refused", "form", rec.ID, "submission", sub.ID())
		return settle(Aborted, nil)
	}
	if err := s.validator.Validate(rec.Form); err != nil {
		log.Info(log.CatSubmit, "form failed validation", "form", rec.ID, "submission", sub.ID(), "error", err)
		return settle(Invalid, err)
	}
	current := fingerprint.Form(rec.Form)
	if !rec.Dirty && current == rec.Fingerprint {
		log.Debug(log.CatSubmit, "nothing to save", "form", rec.ID, "submission", sub.ID())
		return settle(Unchanged, nil)
	}
	req, err := submit.Prepare(rec.Form)
	if err != nil {
		log.ErrorErr(log.CatSubmit, "could not prepare submission", err, "form", rec.ID, "submission", sub.ID())
		return settle(Failed, err)
	}
	if s.sender == nil {
		log.ErrorErr(log.CatSubmit, "could not send submission", errNoSender, "form", rec.ID, "submission", sub.ID())
		return settle(Failed, errNoSender)
	}

	sub.sent = current
	s.inflight[rec.ID] = sub
	s.pending.Add(1)
	go s.send(ctx, span, rec, sub, req, current)
	return sub
}

// send performs the request outside the session lock and applies the result under it.
func (s *Session) send(ctx context.Context, span trace.Span, rec *registry.Record, sub *Submission, req submit.Request, sent string) {
	defer s.pending.Done()
	defer span.End()
	span.SetAttributes(attribute.String(tracing.AttrHTTPMethod, req.Method))

	resp, err := s.sender.Send(ctx, req)
	if err == nil {
		span.SetAttributes(attribute.Int(tracing.AttrHTTPStatus, resp.StatusCode))
		if !submit.Succeeded(resp) {
			err = fmt.Errorf("server rejected submission: status %d", resp.StatusCode)
			if resp.HeaderErr != nil {
				err = fmt.Errorf("server rejected submission: %w", resp.HeaderErr)
			} else if resp.Reported != nil && resp.StatusCode == 200 {
				err = fmt.Errorf("server rejected submission: reported status %d", *resp.Reported)
			}
		}
	}

	s.mu.Lock()
	if s.inflight[rec.ID] == sub {
		delete(s.inflight, rec.ID)
	}
	if err != nil {
		s.mu.Unlock()
		log.ErrorErr(log.CatSubmit, "submission failed", err, "form", rec.ID, "submission", sub.ID())
		span.SetAttributes(attribute.String(tracing.AttrSubmissionOutcome, Failed.String()))
		tracing.RecordError(span, err)
		sub.finish(Failed, err)
		return
	}

	rec.Dirty = false
	rec.Fingerprint = sent
	s.broker.Publish(pubsub.PersistedEvent, Signal{FormID: rec.ID, Scope: rec.Scope, Subscope: rec.Subscope})
	for _, fn := range sub.onPersisted {
		fn()
	}
	s.mu.Unlock()

	log.Info(log.CatSubmit, "form persisted", "form", rec.ID, "submission", sub.ID(), "key", rec.Key())
	span.SetAttributes(attribute.String(tracing.AttrSubmissionOutcome, Persisted.String()))
	sub.finish(Persisted, nil)
}
