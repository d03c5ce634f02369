// Package status provides a thread-safe status tracker for the crossing controller.
// It is read by the HTTP handlers and the MQTT heartbeat.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/crossing-controller/internal/logic"
)

// NetworkInfo contains network state. This is a local copy to avoid
// importing internal/mqtt from status.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains controller configuration for display.
type Config struct {
	PollMs      int64
	DebounceMs  int64
	TickMs      int64
	HeartbeatMs int64
	Broker      string
	Redis       string
	HTTPAddr    string
	Dwell       logic.Timing
}

// Snapshot is a point-in-time view of controller state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Controller     logic.Snapshot
	QueueDepth     int
	RunID          string
	StartTime      time.Time
	Now            time.Time
	MQTTConnected  bool
	RedisConnected bool
	Network        *NetworkInfo
	Config         Config
}

// Uptime returns the duration since the controller started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable controller state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time, run id and config.
func NewTracker(startTime time.Time, runID string, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			RunID:     runID,
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// Update records the scheduler state and queue depth.
// Called from runLoop on every transition and refresh tick.
func (t *Tracker) Update(ctrl logic.Snapshot, queueDepth int) {
	t.mu.Lock()
	t.snap.Controller = ctrl
	t.snap.QueueDepth = queueDepth
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetRedisConnected sets the state mirror connection status.
func (t *Tracker) SetRedisConnected(connected bool) {
	t.mu.Lock()
	t.snap.RedisConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the controller state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
