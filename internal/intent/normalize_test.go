package intent

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"posagent/internal/model"
)

const (
	testSource   = "parent-agent"
	testFallback = "fallback@example.com"
)

func newTestNormalizer(t *testing.T) (*Normalizer, *time.Location) {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)
	return NewNormalizer(testSource, testFallback, loc, zap.NewNop()), loc
}

func TestNormalizeTaskMissingDueDefaultsToInvocationTime(t *testing.T) {
	n, loc := newTestNormalizer(t)
	now := time.Date(2025, 11, 12, 10, 0, 0, 0, loc)

	// "Remind me to call Aayush at 9pm" classified without a due_date.
	sanitized := `{"intent":"TASK","data":"Remind me to call Aayush at 9pm","task":{"title":"Call Aayush"}}`
	rec := n.Normalize(sanitized, "Remind me to call Aayush at 9pm", sanitized, now)

	require.Equal(t, model.IntentTask, rec.Tag)
	require.NotNil(t, rec.Task)
	assert.True(t, rec.Task.Due.Equal(now), "due must equal the invocation time exactly")
	assert.False(t, rec.Task.Due.Before(now))
}

func TestNormalizeTaskDefaults(t *testing.T) {
	n, loc := newTestNormalizer(t)
	now := time.Date(2025, 11, 12, 10, 0, 0, 0, loc)

	rec := n.Normalize(`{"intent":"TASK"}`, "do the thing", "raw", now)

	require.Equal(t, model.IntentTask, rec.Tag)
	require.NotNil(t, rec.Task)
	assert.Equal(t, "Untitled Task", rec.Task.Title)
	assert.Empty(t, rec.Task.Result)
	assert.Empty(t, rec.Task.Purpose)
	assert.Empty(t, rec.Task.ActionPlan)
	assert.Equal(t, model.RoleProducer, rec.Task.Role)
	assert.Equal(t, model.StatusToDo, rec.Task.Status)
	assert.Equal(t, 0, rec.Task.XP)
	assert.True(t, rec.Task.Due.Equal(now))
	assert.Equal(t, "do the thing", rec.Context)
	assert.Equal(t, testSource, rec.Source)
}

func TestNormalizeTaskPastDueClampsToNow(t *testing.T) {
	n, loc := newTestNormalizer(t)
	now := time.Date(2025, 11, 12, 10, 0, 0, 0, loc)

	sanitized := `{"intent":"TASK","task":{"title":"Old","due_date":"2020-01-01T09:00:00+05:30"}}`
	rec := n.Normalize(sanitized, "old task", sanitized, now)

	require.NotNil(t, rec.Task)
	assert.True(t, rec.Task.Due.Equal(now))
}

func TestNormalizeTaskFutureDueKept(t *testing.T) {
	n, loc := newTestNormalizer(t)
	now := time.Date(2025, 11, 12, 10, 0, 0, 0, loc)

	sanitized := `{"intent":"TASK","task":{"title":"Call","due_date":"2025-11-12T21:00:00+05:30"}}`
	rec := n.Normalize(sanitized, "call at 9pm", sanitized, now)

	require.NotNil(t, rec.Task)
	expected := time.Date(2025, 11, 12, 21, 0, 0, 0, loc)
	assert.True(t, rec.Task.Due.Equal(expected))
}

func TestNormalizeTaskRoleAndPlanPassThrough(t *testing.T) {
	n, loc := newTestNormalizer(t)
	now := time.Now().In(loc)

	sanitized := `{"intent":"TASK","task":{"title":"Plan sprint","role":"Integrator","action_plan":["draft","review"],"result":"a plan","purpose":"alignment"}}`
	rec := n.Normalize(sanitized, "plan the sprint", sanitized, now)

	require.NotNil(t, rec.Task)
	assert.Equal(t, model.RoleIntegrator, rec.Task.Role)
	assert.Equal(t, []string{"draft", "review"}, rec.Task.ActionPlan)
	assert.Equal(t, "a plan", rec.Task.Result)
	assert.Equal(t, "alignment", rec.Task.Purpose)
}

func TestNormalizeTaskUnknownRoleDefaultsToProducer(t *testing.T) {
	n, loc := newTestNormalizer(t)
	rec := n.Normalize(`{"intent":"TASK","task":{"title":"x","role":"Wizard"}}`, "x", "", time.Now().In(loc))
	require.NotNil(t, rec.Task)
	assert.Equal(t, model.RoleProducer, rec.Task.Role)
}

func TestNormalizeIntentCaseInsensitive(t *testing.T) {
	n, loc := newTestNormalizer(t)
	now := time.Now().In(loc)

	for _, variant := range []string{"task", "Task", "TASK", " task "} {
		rec := n.Normalize(`{"intent":"`+variant+`"}`, "msg", "", now)
		assert.Equal(t, model.IntentTask, rec.Tag, "intent %q", variant)
	}
}

func TestNormalizeUnrecognizedIntentIsUnknown(t *testing.T) {
	n, loc := newTestNormalizer(t)
	now := time.Now().In(loc)

	for _, sanitized := range []string{
		`{"intent":"DANCE"}`,
		`{"data":"no intent field"}`,
		`not json at all`,
	} {
		rec := n.Normalize(sanitized, "msg", "the raw reply", now)
		assert.Equal(t, model.IntentUnknown, rec.Tag)
		assert.Equal(t, "the raw reply", rec.Raw, "raw text preserved for audit")
		assert.Equal(t, "msg", rec.Context)
	}
}

func TestNormalizeCompleteTask(t *testing.T) {
	n, loc := newTestNormalizer(t)
	now := time.Now().In(loc)

	rec := n.Normalize(`{"intent":"COMPLETE_TASK","task_name":"  Call Aayush  "}`, "done calling", "", now)
	require.Equal(t, model.IntentCompleteTask, rec.Tag)
	require.NotNil(t, rec.Complete)
	assert.Equal(t, "Call Aayush", rec.Complete.TaskName)
}

func TestNormalizeCompleteTaskBlankNameIsUnknown(t *testing.T) {
	n, loc := newTestNormalizer(t)
	rec := n.Normalize(`{"intent":"COMPLETE_TASK","task_name":"   "}`, "done", "", time.Now().In(loc))
	assert.Equal(t, model.IntentUnknown, rec.Tag)
	assert.Nil(t, rec.Complete)
}

func TestNormalizeCalendarDefaults(t *testing.T) {
	n, loc := newTestNormalizer(t)
	now := time.Date(2025, 11, 12, 10, 0, 0, 0, loc)

	// No event payload at all: title defaults to the message, start to now.
	rec := n.Normalize(`{"intent":"CALENDAR"}`, "meet Priya tomorrow", "", now)
	require.Equal(t, model.IntentCalendar, rec.Tag)
	require.NotNil(t, rec.Calendar)
	assert.Equal(t, "meet Priya tomorrow", rec.Calendar.Title)
	assert.True(t, rec.Calendar.Start.Equal(now))
	assert.True(t, rec.Calendar.End.Equal(now.Add(30*time.Minute)), "end defaults to start + 30 minutes")
}

func TestNormalizeCalendarEndDefaultsToStartPlus30(t *testing.T) {
	n, loc := newTestNormalizer(t)
	now := time.Date(2025, 11, 12, 10, 0, 0, 0, loc)

	sanitized := `{"intent":"CALENDAR","event":{"title":"Standup","start_time":"2025-11-13T09:00:00+05:30"}}`
	rec := n.Normalize(sanitized, "standup", sanitized, now)

	require.NotNil(t, rec.Calendar)
	start := time.Date(2025, 11, 13, 9, 0, 0, 0, loc)
	assert.True(t, rec.Calendar.Start.Equal(start))
	assert.True(t, rec.Calendar.End.Equal(start.Add(30*time.Minute)))
}

func TestNormalizeEmailFallbackRecipient(t *testing.T) {
	n, loc := newTestNormalizer(t)
	now := time.Now().In(loc)

	rec := n.Normalize(`{"intent":"EMAIL","email":{"subject":"Hi","body":"hello"}}`, "email something", "", now)
	require.Equal(t, model.IntentEmail, rec.Tag)
	require.NotNil(t, rec.Email)
	assert.Equal(t, testFallback, rec.Email.Recipient)
	assert.Equal(t, "Hi", rec.Email.Subject)
}

func TestNormalizeResearchQueryDefaultsToMessage(t *testing.T) {
	n, loc := newTestNormalizer(t)
	rec := n.Normalize(`{"intent":"RESEARCH"}`, "what is the PAEI model?", "", time.Now().In(loc))
	require.Equal(t, model.IntentResearch, rec.Tag)
	require.NotNil(t, rec.Research)
	assert.Equal(t, "what is the PAEI model?", rec.Research.Query)
}

func TestNormalizeMessageDefaults(t *testing.T) {
	n, loc := newTestNormalizer(t)
	rec := n.Normalize(`{"intent":"MESSAGE"}`, "ping the team", "", time.Now().In(loc))
	require.Equal(t, model.IntentMessage, rec.Tag)
	require.NotNil(t, rec.Message)
	assert.Equal(t, "normal", rec.Message.Priority)
	assert.Equal(t, "ping the team", rec.Message.Text)
}
