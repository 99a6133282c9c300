// Package audit provides the audit trail of authentication decisions.
package audit

import (
	"time"
)

// EventType represents the type of audit event.
type EventType string

const (
	EventTypeAuthentication EventType = "AUTHENTICATION"
	EventTypeRefresh        EventType = "REFRESH"
)

// EventResult represents the outcome of an event.
type EventResult string

const (
	ResultSuccess EventResult = "SUCCESS"
	ResultFailure EventResult = "FAILURE"
	ResultDenied  EventResult = "DENIED"
)

// Event represents a single audit log entry.
type Event struct {
	Timestamp    time.Time   `json:"timestamp"`
	EventType    EventType   `json:"event_type"`
	Result       EventResult `json:"result"`
	Listener     string      `json:"listener,omitempty"`
	Username     string      `json:"username"`
	ClientIP     string      `json:"client_ip,omitempty"`
	Database     string      `json:"database,omitempty"`
	Reason       string      `json:"reason,omitempty"`
	UsedPassword bool        `json:"used_password,omitempty"`
	Count        int         `json:"count,omitempty"`
	ErrorMsg     string      `json:"error_msg,omitempty"`
}

// NewAuthenticationEvent creates an audit event for one authentication
// attempt.
func NewAuthenticationEvent(listener, username, clientIP, database, reason string, usedPassword, success bool) *Event {
	result := ResultSuccess
	if !success {
		result = ResultDenied
	}

	return &Event{
		Timestamp:    time.Now(),
		EventType:    EventTypeAuthentication,
		Result:       result,
		Listener:     listener,
		Username:     username,
		ClientIP:     clientIP,
		Database:     database,
		Reason:       reason,
		UsedPassword: usedPassword,
	}
}

// NewRefreshEvent creates an audit event for a user catalog reload.
func NewRefreshEvent(listener string, count int, err error) *Event {
	event := &Event{
		Timestamp: time.Now(),
		EventType: EventTypeRefresh,
		Result:    ResultSuccess,
		Listener:  listener,
		Count:     count,
	}
	if err != nil {
		event.Result = ResultFailure
		event.ErrorMsg = err.Error()
	}
	return event
}
