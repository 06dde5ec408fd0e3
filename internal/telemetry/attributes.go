// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys shared by goldenclean spans.
const (
	SessionIDKey   = "goldenclean.session.id"
	SessionRoleKey = "goldenclean.session.role"

	OfferServiceIDKey = "goldenclean.offer.service_id"
	OfferOutcomeKey   = "goldenclean.offer.outcome"

	ErrorKey     = "error"
	ErrorTypeKey = "error.type"
)

// SessionAttributes describes a logged-in session.
func SessionAttributes(sessionID, role string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 2)
	if sessionID != "" {
		attrs = append(attrs, attribute.String(SessionIDKey, sessionID))
	}
	if role != "" {
		attrs = append(attrs, attribute.String(SessionRoleKey, role))
	}
	return attrs
}

// OfferAttributes describes a resolved job offer.
func OfferAttributes(serviceID int64, outcome string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int64(OfferServiceIDKey, serviceID),
		attribute.String(OfferOutcomeKey, outcome),
	}
}

// ErrorAttributes marks a span as failed with a coarse error class.
func ErrorAttributes(errorType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(ErrorKey, true),
		attribute.String(ErrorTypeKey, errorType),
	}
}
