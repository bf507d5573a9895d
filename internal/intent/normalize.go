package intent

import (
	"encoding/json"
	"strings"
	"time"

	"go.uber.org/zap"

	"posagent/internal/model"
)

// Normalizer maps sanitized classifier output onto the tagged IntentRecord.
// It is total: any input yields a record, with deterministic defaults for
// every missing field and UNKNOWN for anything unrecognizable.
type Normalizer struct {
	source        string
	fallbackEmail string
	loc           *time.Location
	logger        *zap.Logger
}

func NewNormalizer(source, fallbackEmail string, loc *time.Location, logger *zap.Logger) *Normalizer {
	return &Normalizer{
		source:        source,
		fallbackEmail: fallbackEmail,
		loc:           loc,
		logger:        logger,
	}
}

// envelope mirrors the union of every schema the classifier may emit.
type envelope struct {
	Intent   string        `json:"intent"`
	Data     string        `json:"data"`
	Task     *taskPayload  `json:"task"`
	Event    *eventPayload `json:"event"`
	Email    *emailPayload `json:"email"`
	TaskName string        `json:"task_name"`
	Query    string        `json:"query"`
	Priority string        `json:"priority"`
	Text     string        `json:"text"`
}

type taskPayload struct {
	Title      string   `json:"title"`
	Result     string   `json:"result"`
	Purpose    string   `json:"purpose"`
	ActionPlan []string `json:"action_plan"`
	Role       string   `json:"role"`
	DueDate    string   `json:"due_date"`
	XP         int      `json:"xp"`
}

type eventPayload struct {
	Title       string `json:"title"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
	Description string `json:"description"`
}

type emailPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Normalize builds the IntentRecord for one request. sanitized is the JSON
// extracted from the classifier output, message the original inbound text,
// raw the untouched classifier reply, now the pipeline invocation time.
func (n *Normalizer) Normalize(sanitized, message, raw string, now time.Time) model.IntentRecord {
	rec := model.IntentRecord{
		Tag:        model.IntentUnknown,
		Context:    message,
		Source:     n.source,
		Raw:        raw,
		ReceivedAt: now,
	}

	var env envelope
	if err := json.Unmarshal([]byte(sanitized), &env); err != nil {
		n.logger.Debug("Classifier JSON did not match envelope", zap.Error(err))
		return rec
	}

	switch strings.ToUpper(strings.TrimSpace(env.Intent)) {
	case string(model.IntentTask):
		rec.Tag = model.IntentTask
		rec.Task = n.normalizeTask(env.Task, now)
	case string(model.IntentCompleteTask):
		name := strings.TrimSpace(env.TaskName)
		if name == "" {
			// A completion with no task name cannot be routed.
			return rec
		}
		rec.Tag = model.IntentCompleteTask
		rec.Complete = &model.CompleteDetails{TaskName: name}
	case string(model.IntentCalendar):
		rec.Tag = model.IntentCalendar
		rec.Calendar = n.normalizeCalendar(env.Event, message, now)
	case string(model.IntentEmail):
		rec.Tag = model.IntentEmail
		rec.Email = n.normalizeEmail(env.Email)
	case string(model.IntentResearch):
		rec.Tag = model.IntentResearch
		query := strings.TrimSpace(env.Query)
		if query == "" {
			query = message
		}
		rec.Research = &model.ResearchDetails{Query: query}
	case string(model.IntentMessage):
		rec.Tag = model.IntentMessage
		text := strings.TrimSpace(env.Text)
		if text == "" {
			text = message
		}
		priority := strings.ToLower(strings.TrimSpace(env.Priority))
		if priority == "" {
			priority = "normal"
		}
		rec.Message = &model.MessageDetails{Priority: priority, Text: text}
	default:
		// Unrecognized or missing intent stays UNKNOWN.
	}

	return rec
}

func (n *Normalizer) normalizeTask(p *taskPayload, now time.Time) *model.TaskDetails {
	if p == nil {
		p = &taskPayload{}
	}

	title := strings.TrimSpace(p.Title)
	if title == "" {
		title = "Untitled Task"
	}

	role := model.RoleProducer
	if model.ValidRole(p.Role) {
		role = model.Role(p.Role)
	}

	xp := p.XP
	if xp < 0 {
		xp = 0
	}

	return &model.TaskDetails{
		Title:      title,
		Result:     strings.TrimSpace(p.Result),
		Purpose:    strings.TrimSpace(p.Purpose),
		ActionPlan: p.ActionPlan,
		Role:       role,
		Status:     model.StatusToDo,
		Due:        n.resolveDue(p.DueDate, now),
		XP:         xp,
	}
}

func (n *Normalizer) normalizeCalendar(p *eventPayload, message string, now time.Time) *model.CalendarDetails {
	if p == nil {
		p = &eventPayload{}
	}

	title := strings.TrimSpace(p.Title)
	if title == "" {
		title = message
	}

	start, ok := n.parseInstant(p.StartTime)
	if !ok {
		start = now.In(n.loc)
	}

	end, ok := n.parseInstant(p.EndTime)
	if !ok || !end.After(start) {
		end = start.Add(30 * time.Minute)
	}

	return &model.CalendarDetails{
		Title:       title,
		Start:       start,
		End:         end,
		Description: strings.TrimSpace(p.Description),
	}
}

func (n *Normalizer) normalizeEmail(p *emailPayload) *model.EmailDetails {
	if p == nil {
		p = &emailPayload{}
	}

	recipient := strings.TrimSpace(p.To)
	if recipient == "" {
		recipient = n.fallbackEmail
	}

	return &model.EmailDetails{
		Recipient: recipient,
		Subject:   strings.TrimSpace(p.Subject),
		Body:      p.Body,
	}
}

// resolveDue parses the classifier's due date. Anything absent, unparseable,
// or already in the past collapses to the invocation time.
func (n *Normalizer) resolveDue(s string, now time.Time) time.Time {
	due, ok := n.parseInstant(s)
	if !ok || due.Before(now) {
		return now.In(n.loc)
	}
	return due
}

var instantLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

func (n *Normalizer) parseInstant(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "null") {
		return time.Time{}, false
	}

	for _, layout := range instantLayouts {
		if layout == time.RFC3339 {
			if t, err := time.Parse(layout, s); err == nil {
				return t.In(n.loc), true
			}
			continue
		}
		if t, err := time.ParseInLocation(layout, s, n.loc); err == nil {
			return t, true
		}
	}

	return time.Time{}, false
}
