package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	mqcontracts "posagent/contracts/mq"
	"posagent/internal/classifier"
	"posagent/internal/config"
	"posagent/internal/forwarder"
	"posagent/internal/intent"
	"posagent/internal/model"
	"posagent/internal/repository"
	"posagent/pkg/logger"
	"posagent/pkg/metrics"
	"posagent/pkg/trace"
)

// ErrNotFound marks a COMPLETE_TASK lookup miss. No mutation is performed.
var ErrNotFound = errors.New("no task matches the given title")

// Classifier is the language-understanding collaborator.
type Classifier interface {
	Classify(ctx context.Context, message string, now time.Time) (string, error)
}

// RecordStore is the persistence gateway to the external document store.
type RecordStore interface {
	Create(ctx context.Context, task *model.TaskRecord) (string, error)
	PatchLink(ctx context.Context, id, field, url string) error
	PatchStatus(ctx context.Context, id string, status model.Status) error
	QueryByTitle(ctx context.Context, substring string) (*model.TaskRef, error)
}

// ForwardClient sends payloads to downstream handler collaborators.
type ForwardClient interface {
	Forward(ctx context.Context, kind forwarder.Kind, payload any) model.DownstreamResponse
}

// EventPublisher publishes resolved-intent events, best-effort.
type EventPublisher interface {
	Publish(routingKey string, payload any) error
}

// ReplayGuard reports whether a message is the first sighting within the
// dedup window. A false return skips the side-effecting dispatch.
type ReplayGuard interface {
	AcquireOnce(ctx context.Context, message string) bool
}

// Dispatcher runs the classify -> sanitize -> normalize -> dispatch ->
// persist -> forward -> reconcile pipeline for one request at a time.
// It holds no cross-request state.
type Dispatcher struct {
	classifier Classifier
	normalizer *intent.Normalizer
	store      RecordStore
	forward    ForwardClient

	// Optional collaborators; nil disables each.
	publisher EventPublisher
	audit     *repository.AuditRepository
	deduper   ReplayGuard

	source        string
	emailLinkBase string
	now           func() time.Time
	logger        *zap.Logger
}

func NewDispatcher(
	cls Classifier,
	normalizer *intent.Normalizer,
	store RecordStore,
	forward ForwardClient,
	cfg config.AgentConfig,
	log *zap.Logger,
) *Dispatcher {
	return &Dispatcher{
		classifier:    cls,
		normalizer:    normalizer,
		store:         store,
		forward:       forward,
		source:        cfg.SourceTag,
		emailLinkBase: cfg.EmailLinkBase,
		now:           time.Now,
		logger:        log,
	}
}

// WithPublisher enables best-effort resolved-intent events.
func (d *Dispatcher) WithPublisher(p EventPublisher) *Dispatcher {
	d.publisher = p
	return d
}

// WithAudit enables the best-effort request journal.
func (d *Dispatcher) WithAudit(a *repository.AuditRepository) *Dispatcher {
	d.audit = a
	return d
}

// WithDeduper enables the inbound replay guard.
func (d *Dispatcher) WithDeduper(dd ReplayGuard) *Dispatcher {
	d.deduper = dd
	return d
}

// WithClock fixes the pipeline clock, used by tests.
func (d *Dispatcher) WithClock(now func() time.Time) *Dispatcher {
	d.now = now
	return d
}

// route declares the action sequence for one intent tag. The dispatch loop
// is the same for every tag; only these fields differ.
type route struct {
	persist       bool
	forwardKind   forwarder.Kind
	buildRecord   func(rec *model.IntentRecord) *model.TaskRecord
	shouldForward func(rec *model.IntentRecord) bool
	payload       func(rec *model.IntentRecord, taskID string) any
	linkField     string
	extractLink   func(d *Dispatcher, body string) (string, bool)
}

var routes = map[model.IntentTag]route{
	model.IntentTask: {
		persist:     true,
		forwardKind: forwarder.KindCalendar,
		buildRecord: buildTaskRecord,
		shouldForward: func(rec *model.IntentRecord) bool {
			return !rec.Task.Due.IsZero()
		},
		payload: func(rec *model.IntentRecord, _ string) any {
			return map[string]any{
				"title":      rec.Task.Title,
				"start_time": rec.Task.Due.Format(time.RFC3339),
				"end_time":   rec.Task.Due.Add(30 * time.Minute).Format(time.RFC3339),
				"context":    rec.Context,
				"source":     rec.Source,
			}
		},
		linkField: repository.FieldCalendarLink,
		extractLink: func(_ *Dispatcher, body string) (string, bool) {
			return extractCalendarLink(body)
		},
	},
	model.IntentCalendar: {
		persist:     true,
		forwardKind: forwarder.KindCalendar,
		buildRecord: buildCalendarRecord,
		payload: func(rec *model.IntentRecord, _ string) any {
			return map[string]any{
				"title":       rec.Calendar.Title,
				"start_time":  rec.Calendar.Start.Format(time.RFC3339),
				"end_time":    rec.Calendar.End.Format(time.RFC3339),
				"description": rec.Calendar.Description,
				"context":     rec.Context,
				"source":      rec.Source,
			}
		},
		linkField: repository.FieldCalendarLink,
		extractLink: func(_ *Dispatcher, body string) (string, bool) {
			return extractCalendarLink(body)
		},
	},
	model.IntentEmail: {
		persist:     true,
		forwardKind: forwarder.KindEmail,
		buildRecord: buildEmailRecord,
		payload: func(rec *model.IntentRecord, _ string) any {
			return map[string]any{
				"to":      rec.Email.Recipient,
				"subject": rec.Email.Subject,
				"body":    rec.Email.Body,
				"context": rec.Context,
				"source":  rec.Source,
			}
		},
		linkField: repository.FieldEmailLink,
		extractLink: func(d *Dispatcher, body string) (string, bool) {
			return extractEmailLink(body, d.emailLinkBase)
		},
	},
	model.IntentResearch: {
		forwardKind: forwarder.KindResearch,
		payload: func(rec *model.IntentRecord, _ string) any {
			return map[string]any{
				"query":   rec.Research.Query,
				"context": rec.Context,
				"source":  rec.Source,
			}
		},
	},
	model.IntentMessage: {
		forwardKind: forwarder.KindMessage,
		payload: func(rec *model.IntentRecord, _ string) any {
			return map[string]any{
				"priority": rec.Message.Priority,
				"text":     rec.Message.Text,
				"context":  rec.Context,
				"source":   rec.Source,
			}
		},
	},
}

// Route runs the full pipeline for one inbound message. The returned error
// is non-nil only for the outcomes that change the user-visible result:
// COMPLETE_TASK misses and persistence-create failures. Everything after a
// successful create degrades into warnings.
func (d *Dispatcher) Route(ctx context.Context, message string) (*model.RouteResult, error) {
	now := d.now()
	log := logger.WithTrace(ctx, d.logger)

	res := &model.RouteResult{
		Intent:  string(model.IntentUnknown),
		Message: message,
	}

	raw, err := d.classifier.Classify(ctx, message, now)
	if err != nil {
		log.Warn("Classifier unavailable, degrading to UNKNOWN", zap.Error(err))
		res.Warnings = append(res.Warnings, "classifier unavailable: "+err.Error())
		metrics.IncrementIntentResolved(res.Intent)
		d.finish(ctx, res, now, "classifier_unavailable")
		return res, nil
	}

	rec := d.resolve(raw, message, now, log)
	res.Intent = string(rec.Tag)
	metrics.IncrementIntentResolved(res.Intent)

	if rec.Tag == model.IntentUnknown {
		res.Raw = rec.Raw
		d.finish(ctx, res, now, "unknown")
		return res, nil
	}

	if d.deduper != nil && !d.deduper.AcquireOnce(ctx, message) {
		res.Duplicate = true
		metrics.IncrementDuplicateSkipped()
		d.finish(ctx, res, now, "duplicate")
		return res, nil
	}

	var dispatchErr error
	if rec.Tag == model.IntentCompleteTask {
		dispatchErr = d.completeTask(ctx, &rec, res, log)
	} else {
		dispatchErr = d.dispatch(ctx, &rec, res, log)
	}

	outcome := "ok"
	if dispatchErr != nil {
		switch {
		case errors.Is(dispatchErr, ErrNotFound):
			outcome = "not_found"
		case errors.Is(dispatchErr, repository.ErrPersistence):
			outcome = "persistence_error"
		default:
			outcome = "error"
		}
	}
	d.finish(ctx, res, now, outcome)

	return res, dispatchErr
}

// resolve sanitizes and normalizes the raw classifier text.
func (d *Dispatcher) resolve(raw, message string, now time.Time, log *zap.Logger) model.IntentRecord {
	sanitized, err := classifier.ExtractJSON(raw)
	if err != nil {
		log.Warn("Classifier output unparseable, degrading to UNKNOWN",
			zap.String("raw", raw),
		)
		return model.IntentRecord{
			Tag:        model.IntentUnknown,
			Context:    message,
			Source:     d.source,
			Raw:        raw,
			ReceivedAt: now,
		}
	}
	return d.normalizer.Normalize(sanitized, message, raw, now)
}

// dispatch runs the declarative action sequence for TASK, CALENDAR, EMAIL,
// RESEARCH and MESSAGE.
func (d *Dispatcher) dispatch(ctx context.Context, rec *model.IntentRecord, res *model.RouteResult, log *zap.Logger) error {
	rt, ok := routes[rec.Tag]
	if !ok {
		return nil
	}

	var taskID string
	if rt.persist {
		id, err := d.store.Create(ctx, rt.buildRecord(rec))
		if err != nil {
			// Create failure degrades the request; no downstream call.
			log.Error("Task record creation failed", zap.Error(err))
			return err
		}
		taskID = id
		res.TaskID = id
	}

	if rt.forwardKind == "" {
		return nil
	}
	if rt.shouldForward != nil && !rt.shouldForward(rec) {
		return nil
	}

	dr := d.forward.Forward(ctx, rt.forwardKind, rt.payload(rec, taskID))
	res.Downstream = &dr

	if taskID != "" && rt.linkField != "" {
		d.reconcileLink(ctx, taskID, rt, dr, res, log)
	}

	return nil
}

// completeTask locates the record by title containment (first match wins),
// marks it completed, then notifies the experience handler. The lookup may
// race a concurrent creation of the same title; that gap is accepted.
func (d *Dispatcher) completeTask(ctx context.Context, rec *model.IntentRecord, res *model.RouteResult, log *zap.Logger) error {
	ref, err := d.store.QueryByTitle(ctx, rec.Complete.TaskName)
	if err != nil {
		return fmt.Errorf("task lookup: %w", err)
	}
	if ref == nil {
		log.Info("No task matched completion request",
			zap.String("task_name", rec.Complete.TaskName),
		)
		return ErrNotFound
	}

	res.TaskID = ref.ID
	if err := d.store.PatchStatus(ctx, ref.ID, model.StatusCompleted); err != nil {
		// Patch failures are swallowed; the completion is still reported.
		log.Error("Status patch failed", zap.String("record_id", ref.ID), zap.Error(err))
		res.Warnings = append(res.Warnings, "status patch failed: "+err.Error())
	}

	dr := d.forward.Forward(ctx, forwarder.KindExperience, map[string]any{
		"task_id": ref.ID,
		"title":   ref.Title,
		"context": rec.Context,
		"source":  rec.Source,
	})
	res.Downstream = &dr

	return nil
}

// reconcileLink extracts the handler's reference and patches it onto the
// record. Strictly best-effort: any failure becomes a warning.
func (d *Dispatcher) reconcileLink(ctx context.Context, taskID string, rt route, dr model.DownstreamResponse, res *model.RouteResult, log *zap.Logger) {
	if !dr.Succeeded() {
		return
	}

	link, ok := rt.extractLink(d, dr.Body)
	if !ok {
		log.Debug("No reference found in handler response",
			zap.String("field", rt.linkField),
		)
		return
	}

	if err := d.store.PatchLink(ctx, taskID, rt.linkField, link); err != nil {
		log.Error("Link patch failed",
			zap.String("record_id", taskID),
			zap.String("field", rt.linkField),
			zap.Error(err),
		)
		res.Warnings = append(res.Warnings, "link patch failed: "+err.Error())
		return
	}

	switch rt.linkField {
	case repository.FieldCalendarLink:
		res.CalendarLink = link
	case repository.FieldEmailLink:
		res.EmailLink = link
	}
}

// finish emits the best-effort tail: resolved-intent event and audit entry.
func (d *Dispatcher) finish(ctx context.Context, res *model.RouteResult, now time.Time, outcome string) {
	log := logger.WithTrace(ctx, d.logger)

	if d.publisher != nil {
		evt := mqcontracts.IntentResolvedEvent{
			TraceID:    trace.FromContext(ctx),
			Intent:     res.Intent,
			TaskID:     res.TaskID,
			Message:    res.Message,
			Source:     d.source,
			OccurredAt: now,
		}
		if err := d.publisher.Publish(mqcontracts.RoutingKeyIntentResolved, evt); err != nil {
			log.Error("Event publish failed", zap.Error(err))
			res.Warnings = append(res.Warnings, "event publish failed: "+err.Error())
		}
	}

	if d.audit != nil {
		_ = d.audit.Record(ctx, repository.AuditEntry{
			TraceID:   trace.FromContext(ctx),
			Message:   res.Message,
			Intent:    res.Intent,
			TaskID:    res.TaskID,
			Outcome:   outcome,
			Raw:       res.Raw,
			CreatedAt: now,
		})
	}
}

func buildTaskRecord(rec *model.IntentRecord) *model.TaskRecord {
	due := rec.Task.Due
	return &model.TaskRecord{
		Title:      rec.Task.Title,
		Result:     rec.Task.Result,
		Purpose:    rec.Task.Purpose,
		ActionPlan: rec.Task.ActionPlan,
		Role:       rec.Task.Role,
		Status:     rec.Task.Status,
		Due:        &due,
		XP:         rec.Task.XP,
		CreatedAt:  rec.ReceivedAt,
		Source:     rec.Source,
		Context:    rec.Context,
	}
}

func buildCalendarRecord(rec *model.IntentRecord) *model.TaskRecord {
	start := rec.Calendar.Start
	return &model.TaskRecord{
		Title:     rec.Calendar.Title,
		Purpose:   rec.Calendar.Description,
		Role:      model.RoleProducer,
		Status:    model.StatusToDo,
		Due:       &start,
		CreatedAt: rec.ReceivedAt,
		Source:    rec.Source,
		Context:   rec.Context,
	}
}

func buildEmailRecord(rec *model.IntentRecord) *model.TaskRecord {
	title := rec.Email.Subject
	if title == "" {
		title = "Email to " + rec.Email.Recipient
	}
	return &model.TaskRecord{
		Title:     title,
		Role:      model.RoleProducer,
		Status:    model.StatusToDo,
		CreatedAt: rec.ReceivedAt,
		Source:    rec.Source,
		Context:   rec.Context,
	}
}
