/*
scheduler.go - Automated virtual clock runner

PURPOSE:
  Advances the simulation clock on a real-time ticker so a demo
  environment keeps moving without manual /api/clock/advance calls.
  Each tick moves the virtual clock forward by one day, firing every
  accrual, billing and overdue schedule that falls due.

DESIGN:
  - Runs a background goroutine with configurable tick interval
  - One virtual day per tick, against whatever simulator the handler
    currently holds (scenario loads swap the simulator out)
  - Stop() waits for the goroutine to drain before returning

CONFIGURATION:
  - TickInterval: real time between virtual days (default: 1 minute)
  - Enabled: whether the runner is active (default: false; opt-in)

USAGE:
  runner := NewClockRunner(handler)
  runner.Enabled = true
  runner.Start()
  // ... later
  runner.Stop()

SEE ALSO:
  - simulator.go: AdvanceDays, the call being scheduled
  - handlers.go: manual clock control
*/
package api

import (
	"log"
	"sync"
	"time"
)

// ClockRunner advances the virtual clock automatically.
type ClockRunner struct {
	Handler      *Handler
	TickInterval time.Duration
	Enabled      bool

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewClockRunner creates a runner over the handler's simulator.
func NewClockRunner(h *Handler) *ClockRunner {
	return &ClockRunner{
		Handler:      h,
		TickInterval: time.Minute,
	}
}

// Start launches the background ticker. No-op when disabled or already
// running.
func (c *ClockRunner) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.Enabled || c.ticker != nil {
		return
	}

	c.ticker = time.NewTicker(c.TickInterval)
	c.stop = make(chan struct{})
	c.wg.Add(1)

	go func() {
		defer c.wg.Done()
		for {
			select {
			case <-c.ticker.C:
				c.tick()
			case <-c.stop:
				return
			}
		}
	}()

	log.Printf("clock runner started: one virtual day every %s", c.TickInterval)
}

// Stop halts the ticker and waits for the goroutine to exit.
func (c *ClockRunner) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ticker == nil {
		return
	}
	c.ticker.Stop()
	close(c.stop)
	c.wg.Wait()
	c.ticker = nil

	log.Printf("clock runner stopped")
}

func (c *ClockRunner) tick() {
	c.Handler.mu.RLock()
	sim := c.Handler.Simulator
	c.Handler.mu.RUnlock()

	if err := sim.AdvanceDays(1); err != nil {
		log.Printf("clock runner: advance failed: %v", err)
	}
}
