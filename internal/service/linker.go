package service

import (
	"encoding/json"
)

// calendarLinkKeys are the fields calendar handlers have been observed to
// return their event hyperlink under.
var calendarLinkKeys = []string{"htmlLink", "html_link", "event_link", "link", "url"}

// emailIDKeys are the fields email handlers return the message identifier
// under. The identifier is composed onto the configured base URL.
var emailIDKeys = []string{"message_id", "messageId", "id"}

// extractCalendarLink pulls the event hyperlink out of a calendar handler
// response body.
func extractCalendarLink(body string) (string, bool) {
	payload, ok := parseBody(body)
	if !ok {
		return "", false
	}
	return lookupString(payload, calendarLinkKeys)
}

// extractEmailLink composes the handler's message identifier onto the fixed
// base URL.
func extractEmailLink(body, base string) (string, bool) {
	payload, ok := parseBody(body)
	if !ok {
		return "", false
	}
	id, found := lookupString(payload, emailIDKeys)
	if !found {
		return "", false
	}
	return base + id, true
}

func parseBody(body string) (map[string]any, bool) {
	var payload map[string]any
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		return nil, false
	}
	return payload, true
}

// lookupString checks the top level first, then one level under the common
// wrapper objects some handlers use.
func lookupString(payload map[string]any, keys []string) (string, bool) {
	for _, key := range keys {
		if v, ok := payload[key].(string); ok && v != "" {
			return v, true
		}
	}
	for _, wrapper := range []string{"data", "result", "event"} {
		nested, ok := payload[wrapper].(map[string]any)
		if !ok {
			continue
		}
		for _, key := range keys {
			if v, ok := nested[key].(string); ok && v != "" {
				return v, true
			}
		}
	}
	return "", false
}
