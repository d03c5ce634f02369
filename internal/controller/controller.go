// Package controller runs the intersection: a sampler feeding the bounded event
// queue, a collector draining it into the scheduler, and a tick driver advancing
// the scheduler and projecting lamps onto the outputs.
//
// The collector and the tick driver never call each other. They share the
// scheduler through one short critical section, so a tick always sees a consistent
// view of the current event and ambulance latches.
package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/sweeney/crossing-controller/internal/config"
	"github.com/sweeney/crossing-controller/internal/gpio"
	"github.com/sweeney/crossing-controller/internal/logic"
	"github.com/sweeney/crossing-controller/internal/metrics"
	"github.com/sweeney/crossing-controller/internal/queue"
)

// notifyBuffer bounds the transition and event feeds read by the reporter.
const notifyBuffer = 64

// Controller owns the shared intersection state.
type Controller struct {
	io     gpio.IO
	pins   config.Pins
	timing config.Timing
	log    zerolog.Logger

	queue     *queue.Channel[logic.Event]
	debouncer *logic.Debouncer // sampler goroutine only

	mu    sync.Mutex
	sched *logic.Scheduler

	transitions chan logic.Transition
	events      chan logic.Event
}

// New creates a controller resting in Primary.Green. Nothing touches the hardware
// until Start or Run.
func New(io gpio.IO, cfg config.Config) *Controller {
	return &Controller{
		io:          io,
		pins:        cfg.Pins,
		timing:      cfg.Timing,
		log:         log.With().Str("component", "controller").Logger(),
		queue:       queue.New[logic.Event](cfg.Queue.Capacity),
		debouncer:   logic.NewDebouncer(cfg.Timing.Debounce),
		sched:       logic.NewScheduler(cfg.Dwell.Logic()),
		transitions: make(chan logic.Transition, notifyBuffer),
		events:      make(chan logic.Event, notifyBuffer),
	}
}

// Transitions delivers state changes. Sends never block; a slow reader loses
// notifications, never ticks.
func (c *Controller) Transitions() <-chan logic.Transition { return c.transitions }

// Events delivers every collected event, under the same drop policy.
func (c *Controller) Events() <-chan logic.Event { return c.events }

// Start drives the outputs to the initial state.
func (c *Controller) Start() {
	c.mu.Lock()
	lamps := c.sched.Lamps()
	state := c.sched.State()
	c.mu.Unlock()

	c.apply(lamps)
	c.log.Info().Str("state", state.String()).Msg("lamps initialised")
}

// Run starts the three loops and blocks until ctx is cancelled. On return every
// lamp is red and no goroutine is left waiting on the queue.
func (c *Controller) Run(ctx context.Context) error {
	c.Start()

	poll := time.NewTicker(c.timing.Poll)
	defer poll.Stop()
	collect := time.NewTicker(c.timing.Collect)
	defer collect.Stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.RunSampler(ctx, poll.C) })
	g.Go(func() error { return c.RunCollector(ctx, collect.C) })
	g.Go(func() error { return c.RunScheduler(ctx, NewTimer(c.Interval())) })
	g.Go(func() error {
		<-ctx.Done()
		// Releases a sampler stalled on a full queue.
		c.queue.Close()
		return nil
	})

	err := g.Wait()
	c.apply(logic.AllRed())
	c.log.Info().Msg("stopped, all lamps red")
	return err
}

// RunSampler polls the inputs on every tick and queues debounced events.
// A full queue stalls the sampler until the collector catches up.
func (c *Controller) RunSampler(ctx context.Context, tick <-chan time.Time) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case t := <-tick:
			input, err := c.sample(t)
			if err != nil {
				metrics.IOErrors.WithLabelValues("read").Inc()
				c.log.Warn().Err(err).Msg("input read failed")
				continue
			}
			for _, ev := range c.debouncer.Process(input) {
				c.log.Debug().Str("event", string(ev.Code)).Msg("input activated")
				if err := c.queue.Push(ev); err != nil {
					if errors.Is(err, queue.ErrClosed) {
						return nil
					}
					return fmt.Errorf("queue event: %w", err)
				}
				metrics.QueueDepth.Set(float64(c.queue.Len()))
			}
		}
	}
}

// RunCollector pops at most one event per tick. It checks for an empty queue
// first so it never stalls its own period waiting for input.
func (c *Controller) RunCollector(ctx context.Context, tick <-chan time.Time) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tick:
			if c.queue.IsEmpty() {
				continue
			}
			ev, err := c.queue.Pop()
			if err != nil {
				if errors.Is(err, queue.ErrClosed) {
					return nil
				}
				return fmt.Errorf("collect event: %w", err)
			}
			metrics.QueueDepth.Set(float64(c.queue.Len()))
			c.Collect(ev)
		}
	}
}

// RunScheduler invokes Tick each time timer fires and re-arms it with the delay
// the new state asks for.
func (c *Controller) RunScheduler(ctx context.Context, timer Timer) error {
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case t := <-timer.C():
			c.Tick(t)
			timer.Reset(c.Interval())
		}
	}
}

// Collect publishes a popped event to the scheduler.
func (c *Controller) Collect(ev logic.Event) {
	c.mu.Lock()
	c.sched.Collect(ev.Code)
	c.mu.Unlock()

	metrics.EventsCollected.WithLabelValues(string(ev.Code)).Inc()
	c.log.Info().Str("event", string(ev.Code)).Msg("event collected")

	select {
	case c.events <- ev:
	default:
		metrics.DroppedNotifications.Inc()
	}
}

// Tick advances the scheduler and writes any lamp changes. It never blocks.
func (c *Controller) Tick(now time.Time) logic.Step {
	c.mu.Lock()
	step := c.sched.Tick(now)
	dwell := c.sched.Dwell()
	c.mu.Unlock()

	metrics.Dwell.Set(float64(dwell))

	switch {
	case step.Transition != nil:
		t := *step.Transition
		c.apply(step.Lamps)
		metrics.ObserveTransition(t)
		c.log.Info().
			Str("from", t.From.String()).
			Str("to", t.To.String()).
			Bool("preempted", t.Preempted).
			Msg("phase change")
		select {
		case c.transitions <- t:
		default:
			metrics.DroppedNotifications.Inc()
		}
	case step.Flash:
		c.write(c.pins.PedestrianRed, step.Lamps.Pedestrian.Red)
	}
	return step
}

// Interval is the delay before the next tick: halved during the clearance flash.
func (c *Controller) Interval() time.Duration {
	c.mu.Lock()
	fast := c.sched.FastTick()
	c.mu.Unlock()
	if fast {
		return c.timing.Tick / 2
	}
	return c.timing.Tick
}

// Snapshot returns the scheduler state.
func (c *Controller) Snapshot() logic.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sched.Snapshot()
}

// QueueLen returns the number of events waiting to be collected.
func (c *Controller) QueueLen() int { return c.queue.Len() }

func (c *Controller) sample(now time.Time) (logic.Input, error) {
	var levels [4]bool
	for i, line := range c.pins.Inputs() {
		v, err := c.io.Read(line)
		if err != nil {
			return logic.Input{}, fmt.Errorf("read pin %d: %w", line, err)
		}
		levels[i] = v
	}
	return logic.Input{
		Pedestrian:         levels[0],
		Vehicle:            levels[1],
		AmbulancePrimary:   levels[2],
		AmbulanceSecondary: levels[3],
		Time:               now,
	}, nil
}

// apply writes all eight lamps.
func (c *Controller) apply(l logic.Lamps) {
	p := c.pins
	c.write(p.PrimaryGreen, l.Primary.Green)
	c.write(p.PrimaryYellow, l.Primary.Yellow)
	c.write(p.PrimaryRed, l.Primary.Red)
	c.write(p.SecondaryGreen, l.Secondary.Green)
	c.write(p.SecondaryYellow, l.Secondary.Yellow)
	c.write(p.SecondaryRed, l.Secondary.Red)
	c.write(p.PedestrianRed, l.Pedestrian.Red)
	c.write(p.PedestrianGreen, l.Pedestrian.Green)
}

func (c *Controller) write(line int, on bool) {
	if err := c.io.Write(line, on); err != nil {
		metrics.IOErrors.WithLabelValues("write").Inc()
		c.log.Error().Err(err).Int("pin", line).Bool("on", on).Msg("output write failed")
	}
}
