package mqtt

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/sweeney/crossing-controller/internal/logic"
)

var (
	primaryYellow  = logic.State{Phase: logic.PhasePrimary, Signal: logic.SignalYellow}
	secondaryGreen = logic.State{Phase: logic.PhaseSecondary, Signal: logic.SignalGreen}
)

func sampleTransition() logic.Transition {
	return logic.Transition{
		Timestamp: time.Date(2026, 2, 2, 22, 18, 12, 0, time.UTC),
		From:      primaryYellow,
		To:        secondaryGreen,
		Preempted: true,
		Lamps:     logic.Project(secondaryGreen, false),
	}
}

func TestFormatTransitionPayload(t *testing.T) {
	payload, err := FormatTransitionPayload(sampleTransition())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var parsed TransitionPayload
	if err := json.Unmarshal(payload, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	c := parsed.Crossing
	if c.Timestamp != "2026-02-02T22:18:12Z" {
		t.Errorf("unexpected timestamp: %s", c.Timestamp)
	}
	if c.From != "PRIMARY.YELLOW" || c.To != "SECONDARY.GREEN" {
		t.Errorf("unexpected states: %s -> %s", c.From, c.To)
	}
	if !c.Preempted {
		t.Error("expected preempted")
	}
	if c.Lamps.Primary != "RED" || c.Lamps.Secondary != "GREEN" || c.Lamps.Pedestrian != "DONT_WALK" {
		t.Errorf("unexpected lamps: %+v", c.Lamps)
	}
}

func TestFormatTransitionPayloadExactJSON(t *testing.T) {
	tr := sampleTransition()
	tr.Preempted = false

	payload, err := FormatTransitionPayload(tr)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := `{"crossing":{"timestamp":"2026-02-02T22:18:12Z","from":"PRIMARY.YELLOW","to":"SECONDARY.GREEN","preempted":false,"lamps":{"primary":"RED","secondary":"GREEN","pedestrian":"DONT_WALK"}}}`
	if string(payload) != expected {
		t.Errorf("unexpected payload:\ngot:  %s\nwant: %s", string(payload), expected)
	}
}

func TestFormatTransitionPayloadTimezoneConversion(t *testing.T) {
	loc := time.FixedZone("EST", -5*60*60)
	tr := sampleTransition()
	tr.Timestamp = time.Date(2026, 2, 2, 17, 18, 12, 0, loc)

	payload, err := FormatTransitionPayload(tr)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var parsed TransitionPayload
	if err := json.Unmarshal(payload, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.Crossing.Timestamp != "2026-02-02T22:18:12Z" {
		t.Errorf("expected UTC timestamp, got %s", parsed.Crossing.Timestamp)
	}
}

func TestFormatEventPayload(t *testing.T) {
	tests := []struct {
		code logic.EventCode
		want string
	}{
		{logic.EventPedestrianRequest, "PEDESTRIAN_REQUEST"},
		{logic.EventSecondaryVehicle, "SECONDARY_VEHICLE"},
		{logic.EventAmbulancePrimary, "AMBULANCE_PRIMARY"},
		{logic.EventAmbulanceSecondary, "AMBULANCE_SECONDARY"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			payload, err := FormatEventPayload(logic.Event{
				Code: tt.code,
				Time: time.Date(2026, 2, 3, 10, 30, 45, 0, time.UTC),
			})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			expected := `{"input":{"timestamp":"2026-02-03T10:30:45Z","event":"` + tt.want + `"}}`
			if string(payload) != expected {
				t.Errorf("unexpected payload:\ngot:  %s\nwant: %s", string(payload), expected)
			}
		})
	}
}

func TestTopics(t *testing.T) {
	topics := map[string]string{
		TopicPhase:  "traffic/crossing/phase",
		TopicEvents: "traffic/crossing/events",
		TopicSystem: "traffic/crossing/system",
	}
	for got, want := range topics {
		if got != want {
			t.Errorf("unexpected topic: got %s, want %s", got, want)
		}
	}
}

func TestFormatSystemPayloadExactJSON(t *testing.T) {
	event := SystemEvent{
		Timestamp: time.Date(2026, 2, 3, 10, 30, 45, 0, time.UTC),
		Event:     "SHUTDOWN",
		Reason:    "SIGTERM",
	}

	payload, err := FormatSystemPayload(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := `{"system":{"timestamp":"2026-02-03T10:30:45Z","event":"SHUTDOWN","reason":"SIGTERM"}}`
	if string(payload) != expected {
		t.Errorf("unexpected payload:\ngot:  %s\nwant: %s", string(payload), expected)
	}
}

func TestFormatSystemPayloadReconnectedOmitsReason(t *testing.T) {
	event := SystemEvent{
		Timestamp: time.Date(2026, 2, 10, 14, 30, 0, 0, time.UTC),
		Event:     "RECONNECTED",
	}

	payload, err := FormatSystemPayload(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var parsed map[string]interface{}
	if err := json.Unmarshal(payload, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	system := parsed["system"].(map[string]interface{})
	if _, exists := system["reason"]; exists {
		t.Error("RECONNECTED should not have reason field")
	}
	if system["event"] != "RECONNECTED" {
		t.Errorf("unexpected event: %v", system["event"])
	}
}

func TestFormatSystemPayloadRawPassthrough(t *testing.T) {
	raw := []byte(`{"system":{"event":"HEARTBEAT"}}`)
	payload, err := FormatSystemPayload(SystemEvent{Event: "IGNORED", RawPayload: raw})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(payload) != string(raw) {
		t.Errorf("raw payload not passed through: %s", payload)
	}
}

func TestFakePublisher(t *testing.T) {
	f := NewFakePublisher()

	tr := sampleTransition()
	ev := logic.Event{Code: logic.EventPedestrianRequest, Time: time.Now()}

	if err := f.PublishEvent(ev); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := f.PublishTransition(tr); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(f.Events) != 1 || f.Events[0].Code != logic.EventPedestrianRequest {
		t.Errorf("unexpected events: %+v", f.Events)
	}
	if len(f.Transitions) != 1 || f.Transitions[0].To != secondaryGreen {
		t.Errorf("unexpected transitions: %+v", f.Transitions)
	}
	if len(f.Payloads) != 2 {
		t.Fatalf("expected 2 payloads, got %d", len(f.Payloads))
	}

	var parsed TransitionPayload
	if err := json.Unmarshal(f.Payloads[1], &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.Crossing.To != "SECONDARY.GREEN" {
		t.Errorf("payload order not preserved: %s", f.Payloads[1])
	}
}

func TestFakePublisherError(t *testing.T) {
	f := NewFakePublisher()
	f.PublishError = errors.New("broker down")

	if err := f.PublishTransition(sampleTransition()); err == nil {
		t.Error("expected error")
	}
	if err := f.PublishEvent(logic.Event{Code: logic.EventSecondaryVehicle}); err == nil {
		t.Error("expected error")
	}
	if len(f.Transitions) != 0 || len(f.Events) != 0 || len(f.Payloads) != 0 {
		t.Error("nothing should be recorded on error")
	}

	// System events have their own error.
	if err := f.PublishSystem(SystemEvent{Event: "HEARTBEAT"}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestFakePublisherRecordsRetainedFlag(t *testing.T) {
	f := NewFakePublisher()

	f.PublishSystem(SystemEvent{Timestamp: time.Now(), Event: "STARTUP", Retained: true})
	f.PublishSystem(SystemEvent{Timestamp: time.Now(), Event: "HEARTBEAT"})

	if len(f.SystemEvents) != 2 {
		t.Fatalf("expected 2 system events, got %d", len(f.SystemEvents))
	}
	if !f.SystemEvents[0].Retained {
		t.Error("first event should have Retained=true")
	}
	if f.SystemEvents[1].Retained {
		t.Error("second event should have Retained=false")
	}
}

func TestFakePublisherReset(t *testing.T) {
	f := NewFakePublisher()
	f.PublishTransition(sampleTransition())
	f.PublishSystem(SystemEvent{Event: "STARTUP"})
	f.Connected = true
	f.Close()

	f.Reset()

	if len(f.Transitions) != 0 || len(f.SystemEvents) != 0 || len(f.Payloads) != 0 || len(f.SystemPayloads) != 0 {
		t.Error("expected recorded messages cleared")
	}
	if f.Closed || f.Connected {
		t.Error("expected flags cleared")
	}

	if err := f.PublishTransition(sampleTransition()); err != nil {
		t.Fatalf("reusable after reset: %v", err)
	}
	if len(f.Transitions) != 1 {
		t.Errorf("expected 1 transition, got %d", len(f.Transitions))
	}
}
