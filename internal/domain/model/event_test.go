package model

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestNewEventGeneratesUniqueUUIDs(t *testing.T) {
	a := NewEvent("levelUp", Params{"level": 2}, "user-1", "session-1", nil)
	b := NewEvent("levelUp", Params{"level": 2}, "user-1", "session-1", nil)

	if a.EventUUID == "" || b.EventUUID == "" {
		t.Fatal("expected non-empty event UUIDs")
	}
	if a.EventUUID == b.EventUUID {
		t.Errorf("expected distinct UUIDs, both were %s", a.EventUUID)
	}
}

func TestEventSerialize(t *testing.T) {
	ts := time.Date(2026, 3, 14, 9, 26, 53, 589000000, time.UTC)
	ev := NewEvent("purchase", Params{"sku": "gold_pack", "amount": 4.99}, "user-1", "session-1", &ts)

	data, err := ev.Serialize()
	if err != nil {
		t.Fatalf("serialize failed: %v", err)
	}

	var obj map[string]interface{}
	if err := json.Unmarshal(data, &obj); err != nil {
		t.Fatalf("serialized event is not valid JSON: %v", err)
	}

	if obj["eventName"] != "purchase" {
		t.Errorf("eventName = %v", obj["eventName"])
	}
	if obj["userID"] != "user-1" || obj["sessionID"] != "session-1" {
		t.Errorf("identity fields wrong: %v / %v", obj["userID"], obj["sessionID"])
	}
	if obj["eventUUID"] != ev.EventUUID {
		t.Errorf("eventUUID = %v, want %v", obj["eventUUID"], ev.EventUUID)
	}
	if obj["eventTimestamp"] != "2026-03-14 09:26:53.589" {
		t.Errorf("eventTimestamp = %v", obj["eventTimestamp"])
	}
	params, ok := obj["eventParams"].(map[string]interface{})
	if !ok || params["sku"] != "gold_pack" {
		t.Errorf("eventParams = %v", obj["eventParams"])
	}
}

func TestEventSerializeOmitsTimestampWhenClockUnavailable(t *testing.T) {
	ev := NewEvent("ping", nil, "user-1", "session-1", nil)

	data, err := ev.Serialize()
	if err != nil {
		t.Fatalf("serialize failed: %v", err)
	}
	if strings.Contains(string(data), "eventTimestamp") {
		t.Errorf("expected no eventTimestamp field, got %s", data)
	}
	if strings.Contains(string(data), "eventParams") {
		t.Errorf("expected no eventParams field for empty params, got %s", data)
	}
}

func TestBuildEnvelope(t *testing.T) {
	events := [][]byte{
		[]byte(`{"eventName":"a"}`),
		[]byte(`{"eventName":"b"}`),
	}

	envelope := BuildEnvelope(events)

	want := `{"eventList":[{"eventName":"a"},{"eventName":"b"}]}`
	if string(envelope) != want {
		t.Errorf("envelope = %s, want %s", envelope, want)
	}

	var parsed struct {
		EventList []map[string]string `json:"eventList"`
	}
	if err := json.Unmarshal(envelope, &parsed); err != nil {
		t.Fatalf("envelope is not valid JSON: %v", err)
	}
	if len(parsed.EventList) != 2 || parsed.EventList[0]["eventName"] != "a" {
		t.Errorf("unexpected envelope contents: %+v", parsed)
	}
}

func TestBuildEnvelopeEmpty(t *testing.T) {
	if got := string(BuildEnvelope(nil)); got != `{"eventList":[]}` {
		t.Errorf("empty envelope = %s", got)
	}
}
