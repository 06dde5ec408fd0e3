// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldSessionID = "session_id"
	FieldRequestID = "request_id"
	FieldServiceID = "service_id"
	FieldUser      = "user"
	FieldRole      = "role"

	// Process fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldFrameType = "frame_type"

	// State fields
	FieldOldState  = "old_state"
	FieldNewState  = "new_state"
	FieldCountdown = "countdown"
	FieldQueued    = "queued"

	// Network fields
	FieldMethod  = "method"
	FieldPath    = "path"
	FieldStatus  = "status"
	FieldBaseURL = "base_url"
	FieldAttempt = "attempt"
)
