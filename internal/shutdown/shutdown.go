// Package shutdown coordinates graceful teardown of the panel's
// long-lived components. Components register in startup order and are
// shut down strictly in reverse, one at a time, so the API listener
// drains before the store it depends on goes away.
package shutdown

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// DefaultTimeout bounds a full teardown end to end.
const DefaultTimeout = 30 * time.Second

// Component is anything the coordinator can tear down.
type Component interface {
	// Name identifies the component in shutdown logs.
	Name() string
	// Shutdown releases the component's resources. It must return once
	// the context expires, even if that means abandoning work.
	Shutdown(ctx context.Context) error
}

// Coordinator tears registered components down in reverse registration
// order when a signal arrives or Shutdown is called.
type Coordinator struct {
	mu         sync.Mutex
	components []Component
	timeout    time.Duration
	logger     *slog.Logger

	// signalCh, when set, replaces the OS signal subscription. Tests
	// inject their own channel here.
	signalCh chan os.Signal

	once     sync.Once
	done     chan struct{}
	exitCode int
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithTimeout sets the total teardown budget shared by all components.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Coordinator) {
		c.timeout = timeout
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

// WithSignalChannel overrides the signal source. Tests only.
func WithSignalChannel(ch chan os.Signal) Option {
	return func(c *Coordinator) {
		c.signalCh = ch
	}
}

// NewCoordinator creates a shutdown coordinator.
func NewCoordinator(opts ...Option) *Coordinator {
	c := &Coordinator{
		timeout: DefaultTimeout,
		logger:  slog.Default(),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Register adds a component. Register in startup order; teardown runs
// in the reverse of it.
func (c *Coordinator) Register(component Component) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.components = append(c.components, component)
	c.logger.Debug("registered shutdown component", "name", component.Name())
}

// WaitForSignal blocks until SIGINT or SIGTERM, then runs Shutdown.
func (c *Coordinator) WaitForSignal() {
	sigCh := c.signalCh
	if sigCh == nil {
		sigCh = make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	}

	sig := <-sigCh
	c.logger.Info("received shutdown signal", "signal", sig)

	c.Shutdown()
}

// Shutdown tears components down sequentially in reverse registration
// order, all sharing one deadline. A component that overruns what is
// left of the budget is abandoned and teardown moves on, so one stuck
// component cannot block the rest. Safe to call more than once; only
// the first call does the work.
func (c *Coordinator) Shutdown() {
	c.once.Do(func() {
		c.logger.Info("shutting down", "timeout", c.timeout)

		ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
		defer cancel()

		c.mu.Lock()
		components := make([]Component, len(c.components))
		copy(components, c.components)
		c.mu.Unlock()

		for i := len(components) - 1; i >= 0; i-- {
			component := components[i]
			if err := c.stopOne(ctx, component); err != nil {
				c.logger.Error("component shutdown failed",
					"name", component.Name(), "error", err)
				c.exitCode = 1
			} else {
				c.logger.Info("component stopped", "name", component.Name())
			}
		}

		close(c.done)
	})
}

// stopOne runs a single component's Shutdown without letting it outlive
// the shared deadline.
func (c *Coordinator) stopOne(ctx context.Context, component Component) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- component.Shutdown(ctx)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Wait blocks until a Shutdown run has finished.
func (c *Coordinator) Wait() {
	<-c.done
}

// ExitCode returns 0 after a clean teardown and 1 when any component
// failed or overran the deadline. Call it after Wait.
func (c *Coordinator) ExitCode() int {
	return c.exitCode
}
