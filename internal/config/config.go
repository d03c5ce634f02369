// Package config loads controller configuration from a YAML file layered over
// built-in defaults. Command-line flags are applied on top by main.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/sweeney/crossing-controller/internal/gpio"
	"github.com/sweeney/crossing-controller/internal/logic"
	"github.com/sweeney/crossing-controller/internal/queue"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid config")

// Config holds application configuration.
type Config struct {
	Pins      Pins          `yaml:"pins"`
	Timing    Timing        `yaml:"timing"`
	Dwell     Dwell         `yaml:"dwell"`
	Queue     Queue         `yaml:"queue"`
	MQTT      MQTT          `yaml:"mqtt"`
	Redis     Redis         `yaml:"redis"`
	HTTP      HTTP          `yaml:"http"`
	Heartbeat time.Duration `yaml:"heartbeat"`
	LogLevel  string        `yaml:"log_level"`
}

// Pins maps logical inputs and lamps onto GPIO line offsets.
type Pins struct {
	Chip string `yaml:"chip"`

	Pedestrian         int `yaml:"pedestrian"`
	Vehicle            int `yaml:"vehicle"`
	AmbulancePrimary   int `yaml:"ambulance_primary"`
	AmbulanceSecondary int `yaml:"ambulance_secondary"`

	PrimaryGreen    int `yaml:"primary_green"`
	PrimaryYellow   int `yaml:"primary_yellow"`
	PrimaryRed      int `yaml:"primary_red"`
	SecondaryGreen  int `yaml:"secondary_green"`
	SecondaryYellow int `yaml:"secondary_yellow"`
	SecondaryRed    int `yaml:"secondary_red"`
	PedestrianRed   int `yaml:"pedestrian_red"`
	PedestrianGreen int `yaml:"pedestrian_green"`
}

// Inputs returns the input lines in sampler order.
func (p Pins) Inputs() []int {
	return []int{p.Pedestrian, p.Vehicle, p.AmbulancePrimary, p.AmbulanceSecondary}
}

// Outputs returns every lamp line.
func (p Pins) Outputs() []int {
	return []int{
		p.PrimaryGreen, p.PrimaryYellow, p.PrimaryRed,
		p.SecondaryGreen, p.SecondaryYellow, p.SecondaryRed,
		p.PedestrianRed, p.PedestrianGreen,
	}
}

// Timing holds the periods of the three loops.
type Timing struct {
	Poll     time.Duration `yaml:"poll"`
	Debounce time.Duration `yaml:"debounce"`
	Collect  time.Duration `yaml:"collect"`
	Tick     time.Duration `yaml:"tick"`
}

// Dwell holds phase durations in ticks.
type Dwell struct {
	PrimaryGreen   int `yaml:"primary_green"`
	SecondaryGreen int `yaml:"secondary_green"`
	AmbulanceExit  int `yaml:"ambulance_exit"`
	Yellow         int `yaml:"yellow"`
	Walk           int `yaml:"walk"`
	Flash          int `yaml:"flash"`
}

// Logic converts the dwell table for the scheduler.
func (d Dwell) Logic() logic.Timing {
	return logic.Timing{
		PrimaryGreen:   d.PrimaryGreen,
		SecondaryGreen: d.SecondaryGreen,
		AmbulanceExit:  d.AmbulanceExit,
		Yellow:         d.Yellow,
		Walk:           d.Walk,
		Flash:          d.Flash,
	}
}

type Queue struct {
	Capacity int `yaml:"capacity"`
}

type MQTT struct {
	Broker   string `yaml:"broker"` // empty disables publishing
	ClientID string `yaml:"client_id"`
}

type Redis struct {
	Addr string `yaml:"addr"` // empty disables the state mirror
	Key  string `yaml:"key"`
}

type HTTP struct {
	Addr string `yaml:"addr"` // empty disables the status server
}

// Default returns the built-in configuration.
func Default() Config {
	dwell := logic.DefaultTiming()
	return Config{
		Pins: Pins{
			Chip:               "gpiochip0",
			Pedestrian:         gpio.DefaultPinPedestrian,
			Vehicle:            gpio.DefaultPinVehicle,
			AmbulancePrimary:   gpio.DefaultPinAmbulancePrimary,
			AmbulanceSecondary: gpio.DefaultPinAmbulanceSecondary,
			PrimaryGreen:       gpio.DefaultPinPrimaryGreen,
			PrimaryYellow:      gpio.DefaultPinPrimaryYellow,
			PrimaryRed:         gpio.DefaultPinPrimaryRed,
			SecondaryGreen:     gpio.DefaultPinSecondaryGreen,
			SecondaryYellow:    gpio.DefaultPinSecondaryYellow,
			SecondaryRed:       gpio.DefaultPinSecondaryRed,
			PedestrianRed:      gpio.DefaultPinPedestrianRed,
			PedestrianGreen:    gpio.DefaultPinPedestrianGreen,
		},
		Timing: Timing{
			Poll:     100 * time.Millisecond,
			Debounce: 100 * time.Millisecond,
			Collect:  time.Millisecond,
			Tick:     time.Second,
		},
		Dwell: Dwell{
			PrimaryGreen:   dwell.PrimaryGreen,
			SecondaryGreen: dwell.SecondaryGreen,
			AmbulanceExit:  dwell.AmbulanceExit,
			Yellow:         dwell.Yellow,
			Walk:           dwell.Walk,
			Flash:          dwell.Flash,
		},
		Queue:     Queue{Capacity: queue.DefaultCapacity},
		MQTT:      MQTT{Broker: "tcp://192.168.1.200:1883", ClientID: "crossing-controller"},
		Redis:     Redis{Key: "crossing"},
		HTTP:      HTTP{Addr: ":80"},
		Heartbeat: 15 * time.Minute,
		LogLevel:  "info",
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
// Unknown keys are rejected so typos do not silently fall back to defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := Parse(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML into cfg, leaving absent keys untouched.
func Parse(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Validate checks periods, dwell counts and pin assignments.
func (c Config) Validate() error {
	periods := map[string]time.Duration{
		"timing.poll":    c.Timing.Poll,
		"timing.collect": c.Timing.Collect,
		"timing.tick":    c.Timing.Tick,
	}
	for name, d := range periods {
		if d <= 0 {
			return fmt.Errorf("%w: %s must be positive, got %v", ErrInvalid, name, d)
		}
	}
	if c.Timing.Debounce < 0 {
		return fmt.Errorf("%w: timing.debounce must not be negative", ErrInvalid)
	}
	if c.Heartbeat < 0 {
		return fmt.Errorf("%w: heartbeat must not be negative", ErrInvalid)
	}

	counts := map[string]int{
		"dwell.primary_green":   c.Dwell.PrimaryGreen,
		"dwell.secondary_green": c.Dwell.SecondaryGreen,
		"dwell.ambulance_exit":  c.Dwell.AmbulanceExit,
		"dwell.yellow":          c.Dwell.Yellow,
		"dwell.walk":            c.Dwell.Walk,
		"dwell.flash":           c.Dwell.Flash,
		"queue.capacity":        c.Queue.Capacity,
	}
	for name, n := range counts {
		if n < 1 {
			return fmt.Errorf("%w: %s must be at least 1, got %d", ErrInvalid, name, n)
		}
	}

	if c.Pins.Chip == "" {
		return fmt.Errorf("%w: pins.chip is required", ErrInvalid)
	}
	seen := make(map[int]bool)
	for _, p := range append(c.Pins.Inputs(), c.Pins.Outputs()...) {
		if p < 0 {
			return fmt.Errorf("%w: negative pin %d", ErrInvalid, p)
		}
		if seen[p] {
			return fmt.Errorf("%w: pin %d assigned twice", ErrInvalid, p)
		}
		seen[p] = true
	}

	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: log_level: %v", ErrInvalid, err)
	}
	return nil
}
