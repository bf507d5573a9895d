package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"posagent/internal/classifier"
	"posagent/internal/config"
	"posagent/internal/forwarder"
	"posagent/internal/intent"
	"posagent/internal/model"
	"posagent/internal/repository"
)

type stubClassifier struct {
	raw   string
	err   error
	calls int
}

func (s *stubClassifier) Classify(ctx context.Context, message string, now time.Time) (string, error) {
	s.calls++
	return s.raw, s.err
}

type patchCall struct {
	id    string
	field string
	value string
}

type fakeStore struct {
	created   []*model.TaskRecord
	createID  string
	createErr error

	patches  []patchCall
	patchErr error

	statusPatches []patchCall

	queryRef *model.TaskRef
	queryErr error
	queries  []string
}

func (f *fakeStore) Create(ctx context.Context, task *model.TaskRecord) (string, error) {
	f.created = append(f.created, task)
	if f.createErr != nil {
		return "", f.createErr
	}
	return f.createID, nil
}

func (f *fakeStore) PatchLink(ctx context.Context, id, field, url string) error {
	f.patches = append(f.patches, patchCall{id: id, field: field, value: url})
	return f.patchErr
}

func (f *fakeStore) PatchStatus(ctx context.Context, id string, status model.Status) error {
	f.statusPatches = append(f.statusPatches, patchCall{id: id, field: repository.FieldStatus, value: string(status)})
	return f.patchErr
}

func (f *fakeStore) QueryByTitle(ctx context.Context, substring string) (*model.TaskRef, error) {
	f.queries = append(f.queries, substring)
	return f.queryRef, f.queryErr
}

type forwardCall struct {
	kind    forwarder.Kind
	payload any
}

type fakeForwarder struct {
	calls []forwardCall
	resp  model.DownstreamResponse
}

func (f *fakeForwarder) Forward(ctx context.Context, kind forwarder.Kind, payload any) model.DownstreamResponse {
	f.calls = append(f.calls, forwardCall{kind: kind, payload: payload})
	return f.resp
}

var fixedNow = time.Date(2025, 11, 12, 10, 0, 0, 0, time.UTC)

func newTestDispatcher(t *testing.T, cls Classifier, store *fakeStore, fwd *fakeForwarder) *Dispatcher {
	t.Helper()
	normalizer := intent.NewNormalizer("parent-agent", "fallback@example.com", time.UTC, zap.NewNop())
	cfg := config.AgentConfig{
		SourceTag:     "parent-agent",
		EmailLinkBase: "https://mail.example/#all/",
	}
	return NewDispatcher(cls, normalizer, store, fwd, cfg, zap.NewNop()).
		WithClock(func() time.Time { return fixedNow })
}

func TestRouteTaskCreatesForwardsAndPatchesLink(t *testing.T) {
	raw := "```json\n" + `{"intent":"TASK","data":"msg","task":{"title":"Call Aayush","due_date":"2025-11-12T21:00:00Z"}}` + "\n```"
	store := &fakeStore{createID: "rec-1"}
	fwd := &fakeForwarder{resp: model.DownstreamResponse{
		StatusCode: 200,
		Body:       `{"htmlLink":"https://calendar.example/evt-9"}`,
	}}

	d := newTestDispatcher(t, &stubClassifier{raw: raw}, store, fwd)
	res, err := d.Route(context.Background(), "Remind me to call Aayush at 9pm")
	require.NoError(t, err)

	assert.Equal(t, "TASK", res.Intent)
	assert.Equal(t, "rec-1", res.TaskID)

	require.Len(t, store.created, 1)
	created := store.created[0]
	assert.Equal(t, "Call Aayush", created.Title)
	assert.Equal(t, model.StatusToDo, created.Status)
	assert.Equal(t, "Remind me to call Aayush at 9pm", created.Context)
	require.NotNil(t, created.Due)

	require.Len(t, fwd.calls, 1)
	assert.Equal(t, forwarder.KindCalendar, fwd.calls[0].kind)

	require.Len(t, store.patches, 1)
	assert.Equal(t, patchCall{id: "rec-1", field: repository.FieldCalendarLink, value: "https://calendar.example/evt-9"}, store.patches[0])
	assert.Equal(t, "https://calendar.example/evt-9", res.CalendarLink)
	assert.Empty(t, res.Warnings)
}

func TestRouteEmailPatchesComposedLink(t *testing.T) {
	raw := `{"intent":"EMAIL","email":{"to":"priya@example.com","subject":"Hello","body":"hi"}}`
	store := &fakeStore{createID: "rec-7"}
	fwd := &fakeForwarder{resp: model.DownstreamResponse{
		StatusCode: 200,
		Body:       `{"message_id":"m-42"}`,
	}}

	d := newTestDispatcher(t, &stubClassifier{raw: raw}, store, fwd)
	res, err := d.Route(context.Background(), "email Priya saying hello")
	require.NoError(t, err)

	require.Len(t, fwd.calls, 1)
	assert.Equal(t, forwarder.KindEmail, fwd.calls[0].kind)

	require.Len(t, store.patches, 1)
	assert.Equal(t, repository.FieldEmailLink, store.patches[0].field)
	assert.Equal(t, "https://mail.example/#all/m-42", store.patches[0].value)
	assert.Equal(t, "https://mail.example/#all/m-42", res.EmailLink)
}

func TestRouteResearchAndMessageNeverPersist(t *testing.T) {
	cases := []struct {
		raw  string
		kind forwarder.Kind
	}{
		{`{"intent":"RESEARCH","query":"what is PAEI"}`, forwarder.KindResearch},
		{`{"intent":"MESSAGE","priority":"high","text":"ship it"}`, forwarder.KindMessage},
	}

	for _, tc := range cases {
		store := &fakeStore{createID: "never"}
		fwd := &fakeForwarder{resp: model.DownstreamResponse{StatusCode: 200, Body: `{"ok":true}`}}

		d := newTestDispatcher(t, &stubClassifier{raw: tc.raw}, store, fwd)
		res, err := d.Route(context.Background(), "message")
		require.NoError(t, err)

		assert.Empty(t, store.created, "no create call for %s", tc.kind)
		assert.Empty(t, store.patches)
		require.Len(t, fwd.calls, 1)
		assert.Equal(t, tc.kind, fwd.calls[0].kind)
		require.NotNil(t, res.Downstream)
		assert.Equal(t, `{"ok":true}`, res.Downstream.Body, "handler response returned verbatim")
	}
}

func TestRouteUnknownHasNoSideEffects(t *testing.T) {
	store := &fakeStore{}
	fwd := &fakeForwarder{}

	d := newTestDispatcher(t, &stubClassifier{raw: `{"intent":"DANCE"}`}, store, fwd)
	res, err := d.Route(context.Background(), "do a dance")
	require.NoError(t, err)

	assert.Equal(t, "UNKNOWN", res.Intent)
	assert.Equal(t, `{"intent":"DANCE"}`, res.Raw)
	assert.Empty(t, store.created)
	assert.Empty(t, store.patches)
	assert.Empty(t, fwd.calls)
}

func TestRouteClassifierOutageDegradesToUnknown(t *testing.T) {
	store := &fakeStore{}
	fwd := &fakeForwarder{}

	d := newTestDispatcher(t, &stubClassifier{err: fmt.Errorf("%w: dial tcp", classifier.ErrUpstreamUnavailable)}, store, fwd)
	res, err := d.Route(context.Background(), "anything")
	require.NoError(t, err)

	assert.Equal(t, "UNKNOWN", res.Intent)
	assert.NotEmpty(t, res.Warnings)
	assert.Empty(t, store.created)
	assert.Empty(t, fwd.calls)
}

func TestRouteMalformedOutputPreservesRaw(t *testing.T) {
	store := &fakeStore{}
	fwd := &fakeForwarder{}

	d := newTestDispatcher(t, &stubClassifier{raw: "I am not JSON, sorry."}, store, fwd)
	res, err := d.Route(context.Background(), "anything")
	require.NoError(t, err)

	assert.Equal(t, "UNKNOWN", res.Intent)
	assert.Equal(t, "I am not JSON, sorry.", res.Raw)
	assert.Empty(t, store.created)
	assert.Empty(t, fwd.calls)
}

func TestRouteCreateFailureSkipsDownstream(t *testing.T) {
	raw := `{"intent":"TASK","task":{"title":"Doomed"}}`
	store := &fakeStore{createErr: fmt.Errorf("%w: status 500", repository.ErrPersistence)}
	fwd := &fakeForwarder{}

	d := newTestDispatcher(t, &stubClassifier{raw: raw}, store, fwd)
	_, err := d.Route(context.Background(), "doomed task")
	require.Error(t, err)
	assert.True(t, errors.Is(err, repository.ErrPersistence))
	assert.Empty(t, fwd.calls, "no downstream call after a failed create")
}

func TestRouteCompleteTaskHappyPath(t *testing.T) {
	raw := `{"intent":"COMPLETE_TASK","task_name":"Call Aayush"}`
	store := &fakeStore{queryRef: &model.TaskRef{ID: "rec-1", Title: "Call Aayush", Status: model.StatusToDo}}
	fwd := &fakeForwarder{resp: model.DownstreamResponse{StatusCode: 200, Body: `{"awarded":10}`}}

	d := newTestDispatcher(t, &stubClassifier{raw: raw}, store, fwd)
	res, err := d.Route(context.Background(), "done calling Aayush")
	require.NoError(t, err)

	require.Equal(t, []string{"Call Aayush"}, store.queries)
	require.Len(t, store.statusPatches, 1)
	assert.Equal(t, "Completed", store.statusPatches[0].value)
	assert.Equal(t, "rec-1", res.TaskID)

	require.Len(t, fwd.calls, 1)
	assert.Equal(t, forwarder.KindExperience, fwd.calls[0].kind)
}

func TestRouteCompleteTaskMissIsNotFound(t *testing.T) {
	raw := `{"intent":"COMPLETE_TASK","task_name":"Ghost Task"}`
	store := &fakeStore{queryRef: nil}
	fwd := &fakeForwarder{}

	d := newTestDispatcher(t, &stubClassifier{raw: raw}, store, fwd)
	_, err := d.Route(context.Background(), "done with ghost task")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Empty(t, store.statusPatches, "no mutation on a lookup miss")
	assert.Empty(t, fwd.calls, "no experience call on a lookup miss")
}

func TestRouteLinkPatchFailureBecomesWarning(t *testing.T) {
	raw := `{"intent":"TASK","task":{"title":"Call Aayush","due_date":"2025-11-12T21:00:00Z"}}`
	store := &fakeStore{createID: "rec-1", patchErr: errors.New("store flaked")}
	fwd := &fakeForwarder{resp: model.DownstreamResponse{
		StatusCode: 200,
		Body:       `{"htmlLink":"https://calendar.example/evt-9"}`,
	}}

	d := newTestDispatcher(t, &stubClassifier{raw: raw}, store, fwd)
	res, err := d.Route(context.Background(), "call Aayush")
	require.NoError(t, err, "enrichment failure never fails the primary action")

	assert.Equal(t, "rec-1", res.TaskID)
	assert.Empty(t, res.CalendarLink)
	require.NotEmpty(t, res.Warnings)
	assert.Contains(t, res.Warnings[0], "link patch failed")
}

func TestRouteFailedForwardSkipsLinkPatch(t *testing.T) {
	raw := `{"intent":"CALENDAR","event":{"title":"Standup","start_time":"2025-11-13T09:00:00Z"}}`
	store := &fakeStore{createID: "rec-3"}
	fwd := &fakeForwarder{resp: model.DownstreamResponse{StatusCode: 500, Body: "dial tcp: timeout"}}

	d := newTestDispatcher(t, &stubClassifier{raw: raw}, store, fwd)
	res, err := d.Route(context.Background(), "schedule standup")
	require.NoError(t, err, "a failed forward never rolls back the created record")

	assert.Equal(t, "rec-3", res.TaskID)
	assert.Empty(t, store.patches)
	require.NotNil(t, res.Downstream)
	assert.Equal(t, 500, res.Downstream.StatusCode)
}

type stubGuard struct {
	allow bool
	seen  []string
}

func (g *stubGuard) AcquireOnce(ctx context.Context, message string) bool {
	g.seen = append(g.seen, message)
	return g.allow
}

func TestRouteDuplicateSkipsDispatch(t *testing.T) {
	raw := `{"intent":"TASK","task":{"title":"Call Aayush","due_date":"2025-11-12T21:00:00Z"}}`
	cls := &stubClassifier{raw: raw}
	store := &fakeStore{createID: "rec-1"}
	fwd := &fakeForwarder{}
	guard := &stubGuard{allow: false}

	d := newTestDispatcher(t, cls, store, fwd).WithDeduper(guard)
	res, err := d.Route(context.Background(), "Remind me to call Aayush at 9pm")
	require.NoError(t, err)

	assert.True(t, res.Duplicate)
	assert.Equal(t, "TASK", res.Intent, "a duplicate is still classified")
	assert.Equal(t, 1, cls.calls)
	assert.Equal(t, []string{"Remind me to call Aayush at 9pm"}, guard.seen)
	assert.Empty(t, store.created, "no create for a duplicate")
	assert.Empty(t, fwd.calls, "no forward for a duplicate")
}

func TestRouteFirstSightingDispatches(t *testing.T) {
	raw := `{"intent":"MESSAGE","text":"hi"}`
	store := &fakeStore{}
	fwd := &fakeForwarder{resp: model.DownstreamResponse{StatusCode: 200, Body: `{}`}}
	guard := &stubGuard{allow: true}

	d := newTestDispatcher(t, &stubClassifier{raw: raw}, store, fwd).WithDeduper(guard)
	res, err := d.Route(context.Background(), "hi")
	require.NoError(t, err)

	assert.False(t, res.Duplicate)
	require.Len(t, fwd.calls, 1)
}

type recordingPublisher struct {
	keys []string
	err  error
}

func (p *recordingPublisher) Publish(routingKey string, payload any) error {
	p.keys = append(p.keys, routingKey)
	return p.err
}

func TestRoutePublishesResolvedIntentEvent(t *testing.T) {
	store := &fakeStore{}
	fwd := &fakeForwarder{resp: model.DownstreamResponse{StatusCode: 200, Body: `{}`}}
	pub := &recordingPublisher{}

	d := newTestDispatcher(t, &stubClassifier{raw: `{"intent":"MESSAGE","text":"hi"}`}, store, fwd).
		WithPublisher(pub)
	_, err := d.Route(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, []string{"intent.resolved"}, pub.keys)
}

func TestRoutePublishFailureBecomesWarning(t *testing.T) {
	store := &fakeStore{}
	fwd := &fakeForwarder{resp: model.DownstreamResponse{StatusCode: 200, Body: `{}`}}
	pub := &recordingPublisher{err: errors.New("broker gone")}

	d := newTestDispatcher(t, &stubClassifier{raw: `{"intent":"RESEARCH","query":"q"}`}, store, fwd).
		WithPublisher(pub)
	res, err := d.Route(context.Background(), "q")
	require.NoError(t, err)
	require.NotEmpty(t, res.Warnings)
	assert.Contains(t, res.Warnings[0], "event publish failed")
}
