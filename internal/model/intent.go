package model

import "time"

// IntentTag identifies the classified purpose of a message.
type IntentTag string

const (
	IntentTask         IntentTag = "TASK"
	IntentCompleteTask IntentTag = "COMPLETE_TASK"
	IntentCalendar     IntentTag = "CALENDAR"
	IntentEmail        IntentTag = "EMAIL"
	IntentResearch     IntentTag = "RESEARCH"
	IntentMessage      IntentTag = "MESSAGE"
	IntentUnknown      IntentTag = "UNKNOWN"
)

// Role is the PAEI role assigned to a task.
type Role string

const (
	RoleProducer      Role = "Producer"
	RoleAdministrator Role = "Administrator"
	RoleEntrepreneur  Role = "Entrepreneur"
	RoleIntegrator    Role = "Integrator"
)

// ValidRole reports whether s names a known role.
func ValidRole(s string) bool {
	switch Role(s) {
	case RoleProducer, RoleAdministrator, RoleEntrepreneur, RoleIntegrator:
		return true
	}
	return false
}

// Status is the task lifecycle state.
type Status string

const (
	StatusToDo      Status = "To Do"
	StatusCompleted Status = "Completed"
)

// TaskDetails carries the normalized fields for a TASK intent.
type TaskDetails struct {
	Title      string    `json:"title"`
	Result     string    `json:"result"`
	Purpose    string    `json:"purpose"`
	ActionPlan []string  `json:"action_plan"`
	Role       Role      `json:"role"`
	Status     Status    `json:"status"`
	Due        time.Time `json:"due"`
	XP         int       `json:"xp"`
}

// CalendarDetails carries the normalized fields for a CALENDAR intent.
type CalendarDetails struct {
	Title       string    `json:"title"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	Description string    `json:"description"`
}

// EmailDetails carries the normalized fields for an EMAIL intent.
type EmailDetails struct {
	Recipient string `json:"recipient"`
	Subject   string `json:"subject"`
	Body      string `json:"body"`
}

// CompleteDetails carries the normalized fields for a COMPLETE_TASK intent.
type CompleteDetails struct {
	TaskName string `json:"task_name"`
}

// ResearchDetails carries the normalized fields for a RESEARCH intent.
type ResearchDetails struct {
	Query string `json:"query"`
}

// MessageDetails carries the normalized fields for a MESSAGE intent.
type MessageDetails struct {
	Priority string `json:"priority"`
	Text     string `json:"text"`
}

// IntentRecord is the tagged union produced by the normalizer. Every
// non-UNKNOWN variant carries the original message as Context and a fixed
// Source tag. It lives only for the request that produced it.
type IntentRecord struct {
	Tag        IntentTag
	Context    string // original inbound message
	Source     string
	Raw        string // raw classifier output, kept for audit
	ReceivedAt time.Time

	Task     *TaskDetails
	Calendar *CalendarDetails
	Email    *EmailDetails
	Complete *CompleteDetails
	Research *ResearchDetails
	Message  *MessageDetails
}
