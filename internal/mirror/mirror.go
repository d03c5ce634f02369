// Package mirror copies the controller state into a Redis hash so other services
// on the same host can read the signals without talking MQTT.
//
// Each update writes the hash in one pipeline. State changes additionally publish
// the name of the changed field on a channel named after the hash.
package mirror

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/sweeney/crossing-controller/internal/logic"
)

// DefaultKey is the hash and channel name used when none is configured.
const DefaultKey = "crossing"

// Mirror receives controller state.
type Mirror interface {
	// Update writes snap. t is nil for a plain refresh.
	Update(ctx context.Context, snap logic.Snapshot, t *logic.Transition) error
	IsConnected() bool
	Close() error
}

// Fields flattens a snapshot into hash fields.
func Fields(snap logic.Snapshot) map[string]interface{} {
	return map[string]interface{}{
		"state":               snap.State.String(),
		"dwell":               snap.Dwell,
		"lamp:primary":        snap.Lamps.Primary.String(),
		"lamp:secondary":      snap.Lamps.Secondary.String(),
		"lamp:pedestrian":     snap.Lamps.Pedestrian.String(),
		"ambulance:primary":   strconv.FormatBool(snap.AmbulancePrimary),
		"ambulance:secondary": strconv.FormatBool(snap.AmbulanceSecondary),
		"deferred":            strings.Join(snap.Deferred.Strings(), ","),
		"transitions":         snap.Counts.Transitions,
		"preemptions":         snap.Counts.Preemptions,
	}
}

// RedisMirror writes to a Redis server.
type RedisMirror struct {
	client    *redis.Client
	key       string
	log       zerolog.Logger
	connected atomic.Bool
}

// NewRedisMirror creates a mirror for addr. The first ping is made here; a failure
// is returned but the mirror stays usable and later updates retry.
func NewRedisMirror(ctx context.Context, addr, key string) (*RedisMirror, error) {
	if key == "" {
		key = DefaultKey
	}
	m := &RedisMirror{
		client: redis.NewClient(&redis.Options{
			Addr: addr,
			DB:   0,
		}),
		key: key,
		log: log.With().Str("component", "mirror").Str("key", key).Logger(),
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := m.client.Ping(ctx).Err(); err != nil {
		return m, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	m.connected.Store(true)
	m.log.Info().Str("addr", addr).Msg("connected")
	return m, nil
}

// Update writes every field, and on a state change also records the change time
// and publishes "state" on the channel.
func (m *RedisMirror) Update(ctx context.Context, snap logic.Snapshot, t *logic.Transition) error {
	pipe := m.client.Pipeline()
	pipe.HSet(ctx, m.key, Fields(snap))
	for _, code := range logic.EventCodes {
		pipe.HSet(ctx, m.key, "events:"+strings.ToLower(string(code)), snap.Counts.Events[code])
	}
	if t != nil {
		pipe.HSet(ctx, m.key, "state:timestamp", t.Timestamp.UTC().Format(time.RFC3339))
		pipe.Publish(ctx, m.key, "state")
	}
	_, err := pipe.Exec(ctx)

	was := m.connected.Swap(err == nil)
	if err != nil {
		if was {
			m.log.Warn().Err(err).Msg("update failed")
		}
		return fmt.Errorf("mirror update: %w", err)
	}
	if !was {
		m.log.Info().Msg("reconnected")
	}
	return nil
}

// IsConnected reports whether the last write succeeded.
func (m *RedisMirror) IsConnected() bool { return m.connected.Load() }

// Close releases the client.
func (m *RedisMirror) Close() error { return m.client.Close() }

// FakeMirror records updates for tests.
type FakeMirror struct {
	Updates     []logic.Snapshot
	Transitions []logic.Transition
	UpdateError error
	Closed      bool
}

// Update records snap and, if set, t.
func (f *FakeMirror) Update(_ context.Context, snap logic.Snapshot, t *logic.Transition) error {
	if f.UpdateError != nil {
		return f.UpdateError
	}
	f.Updates = append(f.Updates, snap)
	if t != nil {
		f.Transitions = append(f.Transitions, *t)
	}
	return nil
}

// IsConnected is false once UpdateError is set.
func (f *FakeMirror) IsConnected() bool { return f.UpdateError == nil }

// Close marks the fake closed.
func (f *FakeMirror) Close() error {
	f.Closed = true
	return nil
}
