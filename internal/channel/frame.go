// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package channel

import (
	"encoding/json"
	"fmt"
	"math"
)

// Frame types on the employee socket.
const (
	TypeServiceNotification = "service_notification"
	TypeUpdateLocation      = "update_location"
	TypeAcceptService       = "accept_service"
)

// Frame is one of ServiceNotification, UpdateLocation, AcceptService or Unknown.
type Frame interface {
	Type() string
	isFrame()
}

// ServiceNotification announces a job offer.
type ServiceNotification struct {
	ServiceID   int64
	Description string
}

// UpdateLocation reports the employee position.
type UpdateLocation struct {
	Lat float64
	Lng float64
}

// AcceptService claims an offered job.
type AcceptService struct {
	ServiceID int64
}

// Unknown is a well-formed frame with an unrecognised type.
type Unknown struct {
	Kind string
	Raw  json.RawMessage
}

func (ServiceNotification) Type() string { return TypeServiceNotification }
func (UpdateLocation) Type() string      { return TypeUpdateLocation }
func (AcceptService) Type() string       { return TypeAcceptService }
func (u Unknown) Type() string           { return u.Kind }

func (ServiceNotification) isFrame() {}
func (UpdateLocation) isFrame()      {}
func (AcceptService) isFrame()       {}
func (Unknown) isFrame()             {}

// Wire shapes.
type envelope struct {
	Type *string `json:"type"`
}

type serviceNotificationWire struct {
	Type        string   `json:"type"`
	ServiceID   *float64 `json:"service_id"`
	Description *string  `json:"description"`
}

type updateLocationWire struct {
	Type string   `json:"type"`
	Lat  *float64 `json:"lat"`
	Lng  *float64 `json:"lng"`
}

type acceptServiceWire struct {
	Type      string   `json:"type"`
	ServiceID *float64 `json:"service_id"`
}

// Parse decodes an inbound payload. Payloads that are not JSON objects, lack
// a string type, or carry a known type with ill-typed fields yield a
// *MalformedFrameError.
func Parse(payload []byte) (Frame, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(payload, &obj); err != nil || obj == nil {
		return nil, malformed(payload, "not a JSON object", err)
	}
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil || env.Type == nil {
		return nil, malformed(payload, "missing string type", err)
	}

	switch *env.Type {
	case TypeServiceNotification:
		var w serviceNotificationWire
		if err := json.Unmarshal(payload, &w); err != nil {
			return nil, malformed(payload, "invalid service_notification", err)
		}
		id, ok := serviceID(w.ServiceID)
		if !ok || w.Description == nil {
			return nil, malformed(payload, "service_notification needs a positive integer service_id and string description", nil)
		}
		return ServiceNotification{ServiceID: id, Description: *w.Description}, nil

	case TypeUpdateLocation:
		var w updateLocationWire
		if err := json.Unmarshal(payload, &w); err != nil || w.Lat == nil || w.Lng == nil {
			return nil, malformed(payload, "update_location needs numeric lat and lng", err)
		}
		return UpdateLocation{Lat: *w.Lat, Lng: *w.Lng}, nil

	case TypeAcceptService:
		var w acceptServiceWire
		if err := json.Unmarshal(payload, &w); err != nil {
			return nil, malformed(payload, "invalid accept_service", err)
		}
		id, ok := serviceID(w.ServiceID)
		if !ok {
			return nil, malformed(payload, "accept_service needs a positive integer service_id", nil)
		}
		return AcceptService{ServiceID: id}, nil

	default:
		return Unknown{Kind: *env.Type, Raw: append(json.RawMessage(nil), payload...)}, nil
	}
}

// Encode renders an outbound frame.
func Encode(f Frame) ([]byte, error) {
	switch v := f.(type) {
	case UpdateLocation:
		return json.Marshal(struct {
			Type string  `json:"type"`
			Lat  float64 `json:"lat"`
			Lng  float64 `json:"lng"`
		}{TypeUpdateLocation, v.Lat, v.Lng})
	case AcceptService:
		return json.Marshal(struct {
			Type      string `json:"type"`
			ServiceID int64  `json:"service_id"`
		}{TypeAcceptService, v.ServiceID})
	case ServiceNotification:
		return json.Marshal(struct {
			Type        string `json:"type"`
			ServiceID   int64  `json:"service_id"`
			Description string `json:"description"`
		}{TypeServiceNotification, v.ServiceID, v.Description})
	case Unknown:
		if len(v.Raw) == 0 {
			return nil, fmt.Errorf("channel: unknown frame %q has no payload", v.Kind)
		}
		return v.Raw, nil
	default:
		return nil, fmt.Errorf("channel: cannot encode %T", f)
	}
}

// maxServiceID bounds ids to those int64 can hold; 1<<63 itself is excluded.
const maxServiceID = 1 << 63

// serviceID accepts positive whole numbers that fit in an int64.
func serviceID(f *float64) (int64, bool) {
	if f == nil || *f < 1 || *f >= maxServiceID || *f != math.Trunc(*f) {
		return 0, false
	}
	return int64(*f), true
}
