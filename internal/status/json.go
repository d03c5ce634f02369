package status

import (
	"encoding/json"
	"time"

	"github.com/sweeney/crossing-controller/internal/logic"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	State         string       `json:"state"`
	Dwell         int          `json:"dwell"`
	Lamps         LampsJSON    `json:"lamps"`
	Requests      RequestsJSON `json:"requests"`
	QueueDepth    int          `json:"queue_depth"`
	RunID         string       `json:"run_id"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	MQTT          ConnJSON     `json:"mqtt"`
	Redis         ConnJSON     `json:"redis"`
	Counts        CountsJSON   `json:"counts"`
	Network       *NetworkJSON `json:"network,omitempty"`
	Config        ConfigJSON   `json:"config"`
}

// LampsJSON names the lit lamp on each head.
type LampsJSON struct {
	Primary    string `json:"primary"`
	Secondary  string `json:"secondary"`
	Pedestrian string `json:"pedestrian"`
}

// RequestsJSON shows the collector's view of outstanding requests.
type RequestsJSON struct {
	Current            string   `json:"current"`
	Previous           string   `json:"previous"`
	AmbulancePrimary   bool     `json:"ambulance_primary"`
	AmbulanceSecondary bool     `json:"ambulance_secondary"`
	Deferred           []string `json:"deferred"`
}

// ConnJSON reports a connection's state.
type ConnJSON struct {
	Connected bool   `json:"connected"`
	Address   string `json:"address"`
}

// CountsJSON is the JSON representation of the scheduler counters.
type CountsJSON struct {
	Events      map[string]int `json:"events"`
	Transitions int            `json:"transitions"`
	Preemptions int            `json:"preemptions"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of controller config.
type ConfigJSON struct {
	PollMs      int64        `json:"poll_ms"`
	DebounceMs  int64        `json:"debounce_ms"`
	TickMs      int64        `json:"tick_ms"`
	HeartbeatMs int64        `json:"heartbeat_ms"`
	HTTPAddr    string       `json:"http_addr"`
	Dwell       logic.Timing `json:"dwell"`
}

func buildInner(snap Snapshot) StatusInner {
	ctrl := snap.Controller

	state := ctrl.State.String()
	if ctrl.State.Phase == logic.PhaseIdle {
		state = "UNKNOWN"
	}

	events := make(map[string]int, len(logic.EventCodes))
	for _, code := range logic.EventCodes {
		events[string(code)] = ctrl.Counts.Events[code]
	}

	deferred := ctrl.Deferred.Strings()
	if deferred == nil {
		deferred = []string{}
	}

	return StatusInner{
		State: state,
		Dwell: ctrl.Dwell,
		Lamps: LampsJSON{
			Primary:    ctrl.Lamps.Primary.String(),
			Secondary:  ctrl.Lamps.Secondary.String(),
			Pedestrian: ctrl.Lamps.Pedestrian.String(),
		},
		Requests: RequestsJSON{
			Current:            string(ctrl.Current),
			Previous:           string(ctrl.Previous),
			AmbulancePrimary:   ctrl.AmbulancePrimary,
			AmbulanceSecondary: ctrl.AmbulanceSecondary,
			Deferred:           deferred,
		},
		QueueDepth:    snap.QueueDepth,
		RunID:         snap.RunID,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          ConnJSON{Connected: snap.MQTTConnected, Address: snap.Config.Broker},
		Redis:         ConnJSON{Connected: snap.RedisConnected, Address: snap.Config.Redis},
		Counts: CountsJSON{
			Events:      events,
			Transitions: ctrl.Counts.Transitions,
			Preemptions: ctrl.Counts.Preemptions,
		},
		Config: ConfigJSON{
			PollMs:      snap.Config.PollMs,
			DebounceMs:  snap.Config.DebounceMs,
			TickMs:      snap.Config.TickMs,
			HeartbeatMs: snap.Config.HeartbeatMs,
			HTTPAddr:    snap.Config.HTTPAddr,
			Dwell:       snap.Config.Dwell,
		},
	}
}

func buildNetwork(snap Snapshot, inner *StatusInner) {
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)
	buildNetwork(snap, &inner)

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	buildNetwork(snap, &inner)

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
