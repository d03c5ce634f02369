package controller

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/crossing-controller/internal/config"
	"github.com/sweeney/crossing-controller/internal/gpio"
	"github.com/sweeney/crossing-controller/internal/logic"
	"github.com/sweeney/crossing-controller/internal/metrics"
)

var (
	primaryGreen    = logic.State{Phase: logic.PhasePrimary, Signal: logic.SignalGreen}
	primaryYellow   = logic.State{Phase: logic.PhasePrimary, Signal: logic.SignalYellow}
	secondaryGreen  = logic.State{Phase: logic.PhaseSecondary, Signal: logic.SignalGreen}
	pedestrianFlash = logic.State{Phase: logic.PhasePedestrian, Signal: logic.SignalYellow}
)

// fakeTimer hands control of the scheduler's ticks to the test.
type fakeTimer struct {
	c      chan time.Time
	resets chan time.Duration
}

func newFakeTimer() *fakeTimer {
	return &fakeTimer{
		c:      make(chan time.Time),
		resets: make(chan time.Duration, 256),
	}
}

func (f *fakeTimer) C() <-chan time.Time { return f.c }

func (f *fakeTimer) Reset(d time.Duration) { f.resets <- d }

func (f *fakeTimer) Stop() {}

// fire delivers one tick and waits for the scheduler to re-arm, returning the
// requested delay.
func (f *fakeTimer) fire(t *testing.T) time.Duration {
	t.Helper()
	f.c <- time.Now()
	select {
	case d := <-f.resets:
		return d
	case <-time.After(time.Second):
		t.Fatal("scheduler did not re-arm")
		return 0
	}
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Timing.Debounce = 0
	cfg.Timing.Poll = time.Millisecond
	cfg.Timing.Collect = time.Millisecond
	cfg.Timing.Tick = 100 * time.Millisecond
	return cfg
}

func assertLamps(t *testing.T, io *gpio.FakeIO, pins config.Pins, want logic.Lamps) {
	t.Helper()
	assert.Equal(t, want.Primary.Green, io.Output(pins.PrimaryGreen), "primary green")
	assert.Equal(t, want.Primary.Yellow, io.Output(pins.PrimaryYellow), "primary yellow")
	assert.Equal(t, want.Primary.Red, io.Output(pins.PrimaryRed), "primary red")
	assert.Equal(t, want.Secondary.Green, io.Output(pins.SecondaryGreen), "secondary green")
	assert.Equal(t, want.Secondary.Yellow, io.Output(pins.SecondaryYellow), "secondary yellow")
	assert.Equal(t, want.Secondary.Red, io.Output(pins.SecondaryRed), "secondary red")
	assert.Equal(t, want.Pedestrian.Green, io.Output(pins.PedestrianGreen), "walk")
	assert.Equal(t, want.Pedestrian.Red, io.Output(pins.PedestrianRed), "don't walk")
}

func TestStartDrivesPrimaryGreen(t *testing.T) {
	io := gpio.NewFakeIO()
	cfg := testConfig()
	c := New(io, cfg)

	assert.Zero(t, io.WriteCount(), "New must not touch outputs")
	c.Start()

	assert.Equal(t, 8, io.WriteCount())
	assertLamps(t, io, cfg.Pins, logic.Project(primaryGreen, false))
}

func TestVehicleRequestServedThroughLoops(t *testing.T) {
	io := gpio.NewFakeIO()
	cfg := testConfig()
	c := New(io, cfg)
	c.Start()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	poll := make(chan time.Time)
	collect := make(chan time.Time)
	timer := newFakeTimer()
	go c.RunSampler(ctx, poll)
	go c.RunCollector(ctx, collect)
	go c.RunScheduler(ctx, timer)

	// Empty queue: the collector must skip without blocking.
	collect <- time.Now()

	io.Set(cfg.Pins.Vehicle, true)
	poll <- time.Now()
	require.Eventually(t, func() bool { return c.QueueLen() == 1 }, time.Second, time.Millisecond)

	collect <- time.Now()
	require.Eventually(t, func() bool {
		return c.Snapshot().Current == logic.EventSecondaryVehicle
	}, time.Second, time.Millisecond)
	assert.Zero(t, c.QueueLen())

	// A held input is one request, not one per poll.
	poll <- time.Now()
	poll <- time.Now()
	assert.Zero(t, c.QueueLen())

	for i := 0; i < 12; i++ {
		timer.fire(t)
	}

	assert.Equal(t, secondaryGreen, c.Snapshot().State)
	assertLamps(t, io, cfg.Pins, logic.Project(secondaryGreen, false))

	first := <-c.Transitions()
	assert.Equal(t, primaryGreen, first.From)
	assert.Equal(t, primaryYellow, first.To)
	second := <-c.Transitions()
	assert.Equal(t, secondaryGreen, second.To)
	assert.False(t, second.Preempted)

	ev := <-c.Events()
	assert.Equal(t, logic.EventSecondaryVehicle, ev.Code)
}

func TestClearanceHalvesTickInterval(t *testing.T) {
	io := gpio.NewFakeIO()
	cfg := testConfig()
	c := New(io, cfg)
	c.Start()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	timer := newFakeTimer()
	go c.RunScheduler(ctx, timer)

	c.Collect(logic.Event{Code: logic.EventPedestrianRequest, Time: time.Now()})

	// 10 green, 2 yellow, 3 walk.
	var d time.Duration
	for i := 0; i < 15; i++ {
		d = timer.fire(t)
	}
	require.Equal(t, pedestrianFlash, c.Snapshot().State)
	assert.Equal(t, cfg.Timing.Tick/2, d)
	assert.True(t, io.Output(cfg.Pins.PedestrianRed), "clearance starts lit")

	writes := io.WriteCount()
	timer.fire(t)
	assert.False(t, io.Output(cfg.Pins.PedestrianRed))
	assert.Equal(t, writes+1, io.WriteCount(), "a flash rewrites only the don't-walk lamp")

	timer.fire(t)
	assert.True(t, io.Output(cfg.Pins.PedestrianRed))
	timer.fire(t)

	d = timer.fire(t)
	assert.Equal(t, primaryGreen, c.Snapshot().State)
	assert.Equal(t, cfg.Timing.Tick, d)
	assertLamps(t, io, cfg.Pins, logic.Project(primaryGreen, false))
}

func TestSamplerSurvivesReadErrors(t *testing.T) {
	io := gpio.NewFakeIO()
	io.ReadError = errors.New("line busy")
	c := New(io, testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	poll := make(chan time.Time)
	go c.RunSampler(ctx, poll)

	before := testutil.ToFloat64(metrics.IOErrors.WithLabelValues("read"))
	poll <- time.Now()
	// The second send only completes if the loop kept running.
	poll <- time.Now()
	poll <- time.Now()

	assert.Zero(t, c.QueueLen())
	assert.GreaterOrEqual(t, testutil.ToFloat64(metrics.IOErrors.WithLabelValues("read"))-before, 2.0)
}

func TestWriteErrorsAreCounted(t *testing.T) {
	io := gpio.NewFakeIO()
	io.WriteError = errors.New("line gone")
	c := New(io, testConfig())

	before := testutil.ToFloat64(metrics.IOErrors.WithLabelValues("write"))
	c.Start()
	assert.Equal(t, 8.0, testutil.ToFloat64(metrics.IOErrors.WithLabelValues("write"))-before)
}

func TestRunShutsDownAllRed(t *testing.T) {
	io := gpio.NewFakeIO()
	cfg := testConfig()
	c := New(io, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	require.Eventually(t, func() bool { return io.Output(cfg.Pins.PrimaryGreen) }, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
	assertLamps(t, io, cfg.Pins, logic.AllRed())
}

func TestRunReleasesSamplerBlockedOnFullQueue(t *testing.T) {
	io := gpio.NewFakeIO()
	cfg := testConfig()
	cfg.Queue.Capacity = 1
	cfg.Timing.Collect = time.Hour
	c := New(io, cfg)

	presses := make([]bool, 0, 20)
	for i := 0; i < 10; i++ {
		presses = append(presses, true, false)
	}
	io.Script(cfg.Pins.Pedestrian, presses...)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	require.Eventually(t, func() bool { return c.QueueLen() == 1 }, time.Second, time.Millisecond)
	// Give the sampler time to stall on the second press.
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("sampler stayed blocked on the full queue")
	}
}

func TestTickReportsDwell(t *testing.T) {
	c := New(gpio.NewFakeIO(), testConfig())
	for i := 0; i < 3; i++ {
		c.Tick(time.Now())
	}
	assert.Equal(t, 3, c.Snapshot().Dwell)
	assert.Equal(t, float64(3), testutil.ToFloat64(metrics.Dwell))
}
