package model

// DownstreamResponse captures one handler invocation: status code plus body.
// Transport failures are folded into it as status 500 with the error text.
type DownstreamResponse struct {
	StatusCode int    `json:"status"`
	Body       string `json:"body"`
}

// Succeeded reports whether the handler answered with a 2xx.
func (r DownstreamResponse) Succeeded() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// RouteResult is the response envelope for POST /route: the resolved intent
// plus the outcome of every side effect. Warnings collect swallowed
// enrichment failures; they never change the primary outcome.
type RouteResult struct {
	Intent       string              `json:"intent"`
	Message      string              `json:"message"`
	TaskID       string              `json:"task_id,omitempty"`
	CalendarLink string              `json:"calendar_link,omitempty"`
	EmailLink    string              `json:"email_link,omitempty"`
	Downstream   *DownstreamResponse `json:"downstream,omitempty"`
	Raw          string              `json:"raw,omitempty"`
	Duplicate    bool                `json:"duplicate,omitempty"`
	Warnings     []string            `json:"warnings,omitempty"`
}
