package gpio

import (
	"fmt"
	"sync"
)

// FakeIO is a test double that returns scripted input levels and records writes.
// Safe for concurrent use, since the sampler and the tick driver share it.
type FakeIO struct {
	mu sync.Mutex

	// Samples contains scripted logical levels per input line.
	// Each Read of a line consumes its next sample; the last one repeats.
	Samples map[int][]bool
	index   map[int]int

	// Outputs holds the last level written to each output line.
	Outputs map[int]bool

	// Writes records every Write call in order.
	Writes []Write

	// ReadError and WriteError, if set, are returned by Read and Write.
	ReadError  error
	WriteError error

	// Closed tracks if Close was called
	Closed bool
}

// Write is a single recorded output write.
type Write struct {
	Line int
	On   bool
}

// NewFakeIO creates a FakeIO with no scripted samples; unscripted inputs read idle.
func NewFakeIO() *FakeIO {
	return &FakeIO{
		Samples: make(map[int][]bool),
		index:   make(map[int]int),
		Outputs: make(map[int]bool),
	}
}

// Script replaces the samples for one input line.
func (f *FakeIO) Script(line int, samples ...bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Samples[line] = samples
	f.index[line] = 0
}

// Set holds an input line at a fixed level.
func (f *FakeIO) Set(line int, active bool) {
	f.Script(line, active)
}

// Read returns the next scripted sample for line.
// If samples are exhausted, returns the last sample repeatedly.
func (f *FakeIO) Read(line int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.ReadError != nil {
		return false, f.ReadError
	}

	samples := f.Samples[line]
	if len(samples) == 0 {
		return false, nil
	}

	i := f.index[line]
	if i < len(samples)-1 {
		f.index[line] = i + 1
	}
	return samples[i], nil
}

// Write records the output level.
func (f *FakeIO) Write(line int, on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.WriteError != nil {
		return f.WriteError
	}
	if f.Closed {
		return fmt.Errorf("write pin %d: closed", line)
	}
	f.Outputs[line] = on
	f.Writes = append(f.Writes, Write{Line: line, On: on})
	return nil
}

// Output returns the last level written to line.
func (f *FakeIO) Output(line int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Outputs[line]
}

// WriteCount returns the number of writes recorded so far.
func (f *FakeIO) WriteCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Writes)
}

// Close marks the fake as closed.
func (f *FakeIO) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

// Reset rewinds all scripts and clears recorded writes.
func (f *FakeIO) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.index = make(map[int]int)
	f.Outputs = make(map[int]bool)
	f.Writes = nil
	f.Closed = false
}
