package model

import (
	"bytes"
	"encoding/json"
	"errors"
)

// ErrEmptyConfiguration marks a configuration response carrying no usable
// parameters block. An empty response is a failure, not "no changes".
var ErrEmptyConfiguration = errors.New("empty configuration response")

// SessionParams is the decoded "parameters" block of a session-configuration
// response. Pointer slices distinguish an absent key (nil, keep previous
// state) from a present-but-empty list (replace with empty).
type SessionParams struct {
	DPWhitelist      *[]string     `json:"dpWhitelist"`
	EventsWhitelist  *[]string     `json:"eventsWhitelist"`
	Triggers         *[]TriggerDTO `json:"triggers"`
	ImageCache       *[]string     `json:"imageCache"`
	IsCachedResponse bool          `json:"isCachedResponse"`
}

type sessionResponse struct {
	Parameters *SessionParams `json:"parameters"`
}

// DecodeSessionResponse parses a configuration response body. A body without
// a parameters block (including `{}`) is an outright failure.
func DecodeSessionResponse(body []byte) (*SessionParams, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, ErrEmptyConfiguration
	}
	var resp sessionResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}
	if resp.Parameters == nil {
		return nil, ErrEmptyConfiguration
	}
	return resp.Parameters, nil
}

// Snapshot is the immutable per-session configuration state. It is replaced
// wholesale behind an atomic pointer; readers never observe a partial update.
type Snapshot struct {
	UserID    string
	SessionID string

	// EventWhitelist admits event names for recording. Empty admits all.
	EventWhitelist map[string]struct{}

	// DPWhitelist marks decision points eligible for cached offline
	// fallback. Empty admits all.
	DPWhitelist map[string]struct{}

	// TriggersByEvent holds evaluation-ordered trigger groups.
	TriggersByEvent map[string][]Trigger

	// ImageCache lists asset URLs the host should prefetch.
	ImageCache []string
}

// WhitelistsEvent reports whether name may be recorded under this snapshot.
func (s *Snapshot) WhitelistsEvent(name string) bool {
	if len(s.EventWhitelist) == 0 {
		return true
	}
	_, ok := s.EventWhitelist[name]
	return ok
}

// WhitelistsDecisionPoint reports whether the decision point is eligible for
// cached fallback.
func (s *Snapshot) WhitelistsDecisionPoint(name string) bool {
	if len(s.DPWhitelist) == 0 {
		return true
	}
	_, ok := s.DPWhitelist[name]
	return ok
}

// Apply produces the successor snapshot for a decoded parameters block.
// Absent keys carry the previous state forward; present keys replace it
// wholesale. The receiver is never mutated.
func (s *Snapshot) Apply(p *SessionParams) *Snapshot {
	next := &Snapshot{
		UserID:          s.UserID,
		SessionID:       s.SessionID,
		EventWhitelist:  s.EventWhitelist,
		DPWhitelist:     s.DPWhitelist,
		TriggersByEvent: s.TriggersByEvent,
		ImageCache:      s.ImageCache,
	}
	if p.EventsWhitelist != nil {
		next.EventWhitelist = toSet(*p.EventsWhitelist)
	}
	if p.DPWhitelist != nil {
		next.DPWhitelist = toSet(*p.DPWhitelist)
	}
	if p.Triggers != nil {
		next.TriggersByEvent = GroupTriggers(*p.Triggers)
	}
	if p.ImageCache != nil {
		next.ImageCache = append([]string(nil), *p.ImageCache...)
	}
	return next
}

func toSet(names []string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	return set
}
