package framework

import (
	"context"
	"log"
	"sync"
	"time"
)

// DefaultInterval is the tick interval, matching the millisecond tick
// the update timings are tuned for.
const DefaultInterval = time.Millisecond

// Loop steps Tickers at a fixed interval and runs the Runnables feeding
// them in the background.
type Loop struct {
	Interval time.Duration

	tickers [PriorityLevels][]Ticker
	runners []Runnable

	// lock serializes Step with Add* calls.
	lock  sync.Mutex
	steps uint64
}

// LoopAdder provides specific logic to add components to loop.
type LoopAdder interface {
	AddToLoop(*Loop)
}

// NewLoop creates a Loop.
func NewLoop() *Loop {
	return &Loop{Interval: DefaultInterval}
}

// Add adds LoopAdders.
func (l *Loop) Add(adders ...LoopAdder) *Loop {
	for _, adder := range adders {
		adder.AddToLoop(l)
	}
	return l
}

// AddTicker registers tickers at a priority level. Tickers also being
// Runnable are run in the background.
func (l *Loop) AddTicker(priorityLevel int, tickers ...Ticker) *Loop {
	l.lock.Lock()
	defer l.lock.Unlock()
	l.tickers[priorityLevel] = append(l.tickers[priorityLevel], tickers...)
	for _, t := range tickers {
		if runner, ok := t.(Runnable); ok {
			l.runners = append(l.runners, runner)
		}
	}
	return l
}

// AddRunnable adds Runnable implementions.
func (l *Loop) AddRunnable(runnables ...Runnable) *Loop {
	l.lock.Lock()
	l.runners = append(l.runners, runnables...)
	l.lock.Unlock()
	return l
}

// Steps returns the number of iterations done.
func (l *Loop) Steps() uint64 {
	l.lock.Lock()
	defer l.lock.Unlock()
	return l.steps
}

// Step runs one iteration synchronously.
func (l *Loop) Step() {
	l.lock.Lock()
	defer l.lock.Unlock()
	for _, tickers := range l.tickers {
		for _, t := range tickers {
			t.Tick()
		}
	}
	l.steps++
}

// StepN runs n iterations synchronously.
func (l *Loop) StepN(n int) {
	for i := 0; i < n; i++ {
		l.Step()
	}
}

// Run implements Runnable.
func (l *Loop) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	l.lock.Lock()
	runners := append([]Runnable(nil), l.runners...)
	l.lock.Unlock()
	runner := NewRunnerWith(ctx).StopOnError()
	runner.Go(runners...)

	interval := l.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			cancel()
			if err := runner.Wait(); err != nil {
				return err
			}
			return ctx.Err()
		case <-runner.Failed():
			cancel()
			return runner.Wait()
		case <-ticker.C:
			l.Step()
		}
	}
}

// RunOrFail is intended to be used in main to simply run the loop.
func (l *Loop) RunOrFail(ctx context.Context) {
	if err := l.Run(ctx); err != nil && err != context.Canceled {
		log.Fatalln(err)
	}
}
