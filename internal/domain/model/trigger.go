package model

import (
	"encoding/json"
	"sort"
)

// ConditionTerm is one comparison inside a trigger condition. All terms of a
// condition must hold for the trigger to fire.
type ConditionTerm struct {
	Parameter string      `json:"parameter"`
	Op        string      `json:"op"`
	Value     interface{} `json:"value"`
}

// Comparison operators accepted in trigger conditions.
const (
	OpEq       = "eq"
	OpNe       = "ne"
	OpGt       = "gt"
	OpGte      = "gte"
	OpLt       = "lt"
	OpLte      = "lte"
	OpContains = "contains"
)

// Trigger is a server-defined rule mapping an event name plus a condition to
// a response payload. Triggers are replaced wholesale per configuration
// fetch and never mutated in place.
type Trigger struct {
	ID         string
	Seq        int // position in the configuration payload, tie-break key
	EventName  string
	Priority   int
	Condition  []ConditionTerm
	Response   json.RawMessage
	Persistent bool
}

// TriggerDTO is the wire shape of a trigger inside the configuration
// response. Unknown fields are ignored by the decoder.
type TriggerDTO struct {
	TriggerID  string          `json:"triggerId"`
	EventName  string          `json:"eventName"`
	Priority   int             `json:"priority"`
	Persistent bool            `json:"persistent"`
	Condition  []ConditionTerm `json:"condition"`
	Response   json.RawMessage `json:"response"`
}

// toTrigger converts the wire shape, recording seq as the tie-break index.
func (d TriggerDTO) toTrigger(seq int) Trigger {
	return Trigger{
		ID:         d.TriggerID,
		Seq:        seq,
		EventName:  d.EventName,
		Priority:   d.Priority,
		Condition:  d.Condition,
		Response:   d.Response,
		Persistent: d.Persistent,
	}
}

// GroupTriggers converts the ordered DTO list into a name->triggers mapping.
// Within each group triggers are sorted by priority descending, then by the
// original sequence index ascending, so evaluation order is deterministic.
func GroupTriggers(dtos []TriggerDTO) map[string][]Trigger {
	groups := make(map[string][]Trigger, len(dtos))
	for i, d := range dtos {
		if d.EventName == "" {
			continue
		}
		groups[d.EventName] = append(groups[d.EventName], d.toTrigger(i))
	}
	for name := range groups {
		g := groups[name]
		sort.SliceStable(g, func(i, j int) bool {
			if g[i].Priority != g[j].Priority {
				return g[i].Priority > g[j].Priority
			}
			return g[i].Seq < g[j].Seq
		})
	}
	return groups
}
