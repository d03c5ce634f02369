// Command crossing-controller drives a two-road intersection with a pedestrian
// crossing from GPIO inputs and lamps, and reports its state over MQTT, Redis and HTTP.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/sweeney/crossing-controller/internal/config"
	"github.com/sweeney/crossing-controller/internal/controller"
	"github.com/sweeney/crossing-controller/internal/gpio"
	"github.com/sweeney/crossing-controller/internal/logic"
	"github.com/sweeney/crossing-controller/internal/mirror"
	"github.com/sweeney/crossing-controller/internal/mqtt"
	"github.com/sweeney/crossing-controller/internal/status"
	"github.com/sweeney/crossing-controller/internal/web"
)

const mirrorTimeout = 250 * time.Millisecond

func main() {
	opts, cfg, err := parseFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "crossing-controller: %v\n", err)
		os.Exit(2)
	}
	setupLogging(cfg.LogLevel)

	if err := run(cfg, opts.printState); err != nil {
		log.Fatal().Err(err).Msg("fatal")
	}
}

type options struct {
	configPath string
	printState bool

	chip      string
	poll      time.Duration
	debounce  time.Duration
	tick      time.Duration
	heartbeat time.Duration
	broker    string
	redis     string
	httpAddr  string
	logLevel  string
}

// parseFlags loads the config file and applies only the flags given explicitly,
// so a flag's default never overrides a value from the file.
func parseFlags(fs *flag.FlagSet, args []string) (options, config.Config, error) {
	def := config.Default()
	var o options
	fs.StringVar(&o.configPath, "config", "", "YAML config file (built-in defaults when empty)")
	fs.BoolVar(&o.printState, "print-state", false, "Print current input levels and exit")
	fs.StringVar(&o.chip, "chip", def.Pins.Chip, "GPIO chip name")
	fs.DurationVar(&o.poll, "poll", def.Timing.Poll, "Input sampling interval")
	fs.DurationVar(&o.debounce, "debounce", def.Timing.Debounce, "Debounce duration")
	fs.DurationVar(&o.tick, "tick", def.Timing.Tick, "Scheduler tick period")
	fs.DurationVar(&o.heartbeat, "heartbeat", def.Heartbeat, "Heartbeat interval (0 to disable)")
	fs.StringVar(&o.broker, "broker", def.MQTT.Broker, "MQTT broker address (empty to disable)")
	fs.StringVar(&o.redis, "redis", def.Redis.Addr, "Redis address for the state mirror (empty to disable)")
	fs.StringVar(&o.httpAddr, "http", def.HTTP.Addr, "HTTP status address (empty to disable)")
	fs.StringVar(&o.logLevel, "log-level", def.LogLevel, "Log level (debug, info, warn, error)")

	if err := fs.Parse(args); err != nil {
		return o, def, err
	}

	cfg, err := config.Load(o.configPath)
	if err != nil {
		return o, cfg, err
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "chip":
			cfg.Pins.Chip = o.chip
		case "poll":
			cfg.Timing.Poll = o.poll
		case "debounce":
			cfg.Timing.Debounce = o.debounce
		case "tick":
			cfg.Timing.Tick = o.tick
		case "heartbeat":
			cfg.Heartbeat = o.heartbeat
		case "broker":
			cfg.MQTT.Broker = o.broker
		case "redis":
			cfg.Redis.Addr = o.redis
		case "http":
			cfg.HTTP.Addr = o.httpAddr
		case "log-level":
			cfg.LogLevel = o.logLevel
		}
	})

	return o, cfg, cfg.Validate()
}

// setupLogging writes human-readable logs to a terminal and JSON under systemd.
func setupLogging(level string) {
	zerolog.TimeFieldFormat = time.RFC3339
	if lvl, err := zerolog.ParseLevel(level); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}
	if os.Getenv("INVOCATION_ID") == "" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
}

func run(cfg config.Config, printState bool) error {
	lines, err := gpio.NewRealIO(cfg.Pins.Chip, cfg.Pins.Inputs(), cfg.Pins.Outputs())
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer lines.Close()

	if printState {
		return printInputs(os.Stdout, lines, cfg.Pins)
	}

	// Initialize status tracker (before STARTUP so snapshot is available)
	tracker := status.NewTracker(time.Now(), uuid.NewString(), statusConfig(cfg))
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}

	ctrl := controller.New(lines, cfg)
	d := &daemon{ctrl: ctrl, tracker: tracker}

	if cfg.MQTT.Broker != "" {
		publisher, err := mqtt.NewRealPublisher(cfg.MQTT.Broker, cfg.MQTT.ClientID)
		if err != nil {
			return fmt.Errorf("init mqtt: %w", err)
		}
		defer publisher.Close()
		d.publisher, d.mqttStatus = publisher, publisher
	}

	if cfg.Redis.Addr != "" {
		m, err := mirror.NewRedisMirror(context.Background(), cfg.Redis.Addr, cfg.Redis.Key)
		if err != nil {
			log.Warn().Err(err).Msg("redis unavailable, retrying on each update")
		}
		defer m.Close()
		d.mirror = m
	}

	d.refresh(nil)
	d.publishSystem("STARTUP", "", true)

	// Start HTTP status server
	if cfg.HTTP.Addr != "" {
		srv := web.New(cfg.HTTP.Addr, tracker)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error().Err(err).Msg("http server error")
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Info().Str("addr", cfg.HTTP.Addr).Msg("http status server listening")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stopped := make(chan error, 1)
	go func() { stopped <- ctrl.Run(ctx) }()
	d.stop = func() error {
		cancel()
		return <-stopped
	}

	log.Info().
		Dur("poll", cfg.Timing.Poll).
		Dur("debounce", cfg.Timing.Debounce).
		Dur("tick", cfg.Timing.Tick).
		Str("broker", cfg.MQTT.Broker).
		Str("redis", cfg.Redis.Addr).
		Dur("heartbeat", cfg.Heartbeat).
		Msg("started")

	refresh := time.NewTicker(cfg.Timing.Tick)
	defer refresh.Stop()

	var heartbeat <-chan time.Time
	if cfg.Heartbeat > 0 {
		hb := time.NewTicker(cfg.Heartbeat)
		defer hb.Stop()
		heartbeat = hb.C
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return d.runLoop(heartbeat, refresh.C, sigCh)
}

// daemon fans controller notifications out to the reporters.
type daemon struct {
	ctrl       *controller.Controller
	publisher  mqtt.Publisher // nil when MQTT is disabled
	mqttStatus mqtt.ConnectionStatus
	mirror     mirror.Mirror // nil when the Redis mirror is disabled
	tracker    *status.Tracker
	stop       func() error
}

func (d *daemon) runLoop(heartbeat, refresh <-chan time.Time, sig <-chan os.Signal) error {
	for {
		select {
		case s := <-sig:
			name := signalName(s)
			log.Info().Str("signal", name).Msg("shutting down")
			if d.stop != nil {
				if err := d.stop(); err != nil {
					log.Error().Err(err).Msg("controller stopped with error")
				}
			}
			d.drain()
			d.refresh(nil)
			d.publishSystem("SHUTDOWN", name, true)
			return nil

		case t := <-d.ctrl.Transitions():
			d.onTransition(t)

		case ev := <-d.ctrl.Events():
			d.onEvent(ev)

		case <-refresh:
			d.refresh(nil)

		case <-heartbeat:
			// Refresh network info for heartbeat
			if net := readNetworkInfo(); net != nil {
				d.tracker.SetNetwork(net)
			}
			d.refresh(nil)
			snap := d.tracker.Snapshot()
			log.Info().
				Dur("uptime", snap.Uptime()).
				Str("state", snap.Controller.State.String()).
				Int("transitions", snap.Controller.Counts.Transitions).
				Int("preemptions", snap.Controller.Counts.Preemptions).
				Msg("heartbeat")
			d.publishSystem("HEARTBEAT", "", false)
		}
	}
}

// drain reports notifications still buffered when the loop is asked to stop.
func (d *daemon) drain() {
	for {
		select {
		case t := <-d.ctrl.Transitions():
			d.onTransition(t)
		case ev := <-d.ctrl.Events():
			d.onEvent(ev)
		default:
			return
		}
	}
}

func (d *daemon) onTransition(t logic.Transition) {
	if d.publisher != nil {
		if err := d.publisher.PublishTransition(t); err != nil {
			// Don't crash on publish failure
			log.Warn().Err(err).Msg("transition publish failed")
		}
	}
	d.refresh(&t)
}

func (d *daemon) onEvent(ev logic.Event) {
	if d.publisher != nil {
		if err := d.publisher.PublishEvent(ev); err != nil {
			log.Warn().Err(err).Str("event", string(ev.Code)).Msg("event publish failed")
		}
	}
}

// refresh copies controller state into the tracker and the Redis mirror.
func (d *daemon) refresh(t *logic.Transition) {
	snap := d.ctrl.Snapshot()
	d.tracker.Update(snap, d.ctrl.QueueLen())
	if d.mqttStatus != nil {
		d.tracker.SetMQTTConnected(d.mqttStatus.IsConnected())
	}
	if d.mirror != nil {
		ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
		if err := d.mirror.Update(ctx, snap, t); err != nil {
			log.Debug().Err(err).Msg("mirror update failed")
		}
		cancel()
		d.tracker.SetRedisConnected(d.mirror.IsConnected())
	}
}

// publishSystem sends a lifecycle event carrying a full status snapshot.
func (d *daemon) publishSystem(event, reason string, retained bool) {
	if d.publisher == nil {
		return
	}
	snap := d.tracker.Snapshot()
	ev := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      event,
		Reason:     reason,
		Retained:   retained,
		RawPayload: status.FormatStatusEvent(snap, event, reason),
	}
	if err := d.publisher.PublishSystem(ev); err != nil {
		log.Warn().Err(err).Str("event", event).Msg("system event publish failed")
		return
	}
	log.Info().Str("event", event).Msg("published system event")
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	}
	return "UNKNOWN"
}

func statusConfig(cfg config.Config) status.Config {
	return status.Config{
		PollMs:      cfg.Timing.Poll.Milliseconds(),
		DebounceMs:  cfg.Timing.Debounce.Milliseconds(),
		TickMs:      cfg.Timing.Tick.Milliseconds(),
		HeartbeatMs: cfg.Heartbeat.Milliseconds(),
		Broker:      cfg.MQTT.Broker,
		Redis:       cfg.Redis.Addr,
		HTTPAddr:    cfg.HTTP.Addr,
		Dwell:       cfg.Dwell.Logic(),
	}
}

// printInputs writes one line with the level of every input.
func printInputs(w io.Writer, in gpio.IO, pins config.Pins) error {
	parts := make([]string, 0, len(logic.EventCodes))
	for i, line := range pins.Inputs() {
		on, err := in.Read(line)
		if err != nil {
			return fmt.Errorf("read gpio: %w", err)
		}
		parts = append(parts, fmt.Sprintf("%s: %s", logic.EventCodes[i], stateString(on)))
	}
	_, err := fmt.Fprintln(w, strings.Join(parts, ", "))
	return err
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}

func stateString(active bool) string {
	if active {
		return "ACTIVE"
	}
	return "IDLE"
}
