/*
Copyright 2025 NSLNV.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package audit

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap/zapcore"
)

// EventType identifies what happened
type EventType string

const (
	// === Admin authentication ===
	EventLoginSucceeded EventType = "admin.login.succeeded"
	EventLoginFailed    EventType = "admin.login.failed"
	EventLoginThrottled EventType = "admin.login.throttled"
	EventLogout         EventType = "admin.logout"
	EventAdminCreated   EventType = "admin.created"

	// === Leads ===
	EventLeadCreated     EventType = "lead.created"
	EventLeadRejected    EventType = "lead.rejected"
	EventLeadViewed      EventType = "lead.viewed"
	EventLeadUpdated     EventType = "lead.updated"
	EventLeadDeleted     EventType = "lead.deleted"
	EventLeadsExported   EventType = "leads.exported"
	EventLeadsBulkDelete EventType = "leads.bulk_deleted"
	EventMailFailed      EventType = "mail.failed"

	// === Client reports ===
	EventClientLog   EventType = "client.log"
	EventClientError EventType = "client.error"
)

// Level is the severity of an event
type Level string

const (
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Valid reports whether l is a known level
func (l Level) Valid() bool {
	switch l {
	case LevelInfo, LevelWarn, LevelError:
		return true
	}
	return false
}

func (l Level) zapLevel() zapcore.Level {
	switch l {
	case LevelError:
		return zapcore.ErrorLevel
	case LevelWarn:
		return zapcore.WarnLevel
	default:
		return zapcore.InfoLevel
	}
}

// LevelForEventType returns the default level of an event type
func LevelForEventType(t EventType) Level {
	switch t {
	case EventLoginFailed, EventLoginThrottled, EventLeadRejected, EventLeadDeleted, EventLeadsBulkDelete:
		return LevelWarn
	case EventClientError, EventMailFailed:
		return LevelError
	default:
		return LevelInfo
	}
}

// Event is one audit record
type Event struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	Level     Level                  `json:"level"`
	Message   string                 `json:"message"`
	Context   map[string]interface{} `json:"context,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// NewEvent builds an event with a fresh id, the type's default level and the current time
func NewEvent(t EventType, message string, ctx map[string]interface{}) *Event {
	e := &Event{Type: t, Message: message, Context: ctx}
	e.fill()
	return e
}

// fill sets id, level and timestamp if missing
func (e *Event) fill() {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Level == "" || !e.Level.Valid() {
		e.Level = LevelForEventType(e.Type)
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
}
