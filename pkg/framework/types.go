package framework

import (
	"context"
)

// Named is an abstraction for things with a name.
type Named interface {
	Name() string
}

// Runnable defines a generic interface for background runners.
type Runnable interface {
	Run(context.Context) error
}

// RunnableFunc is the func form of Runnable.
type RunnableFunc func(context.Context) error

// Run implements Runnable.
func (f RunnableFunc) Run(ctx context.Context) error {
	return f(ctx)
}

// Ticker is stepped by a Loop once per interval. Tick must not block.
type Ticker interface {
	Tick()
}

// TickFunc is the func form of Ticker.
type TickFunc func()

// Tick implements Ticker.
func (f TickFunc) Tick() {
	f()
}

// PriorityLevels is the total levels of priorities.
const PriorityLevels int = 4

// Predefined priority levels, lower runs first in an iteration.
const (
	// PrLvInput is for things feeding the engines, like injected traffic.
	PrLvInput int = iota
	// PrLvEngine is for the engines.
	PrLvEngine
	// PrLvOutput is for consumers of engine results.
	PrLvOutput
	// PrLvObserve is for telemetry and tracing.
	PrLvObserve
)
