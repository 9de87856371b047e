package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
)

// Dependency is the interface every component of the loader implements so
// the application can manage its lifecycle.
type Dependency interface {
	// Start is anything a dependency needs to do before it's ready to be used.
	// For the source it is the load itself and runs to completion.
	Start() error
	// Stop is anything a dependency needs to do before it's ready to be stopped
	Stop() error
	// Name is the name of the dependency, used for logging only.
	Name() string
}

// Completer is implemented by dependencies that finish on their own. The
// application shuts down normally once every completer is done —
// bulk-loading is a run-to-completion job, not a resident server.
type Completer interface {
	Done() <-chan struct{}
}

type App struct {
	serviceName string
	deps        []Dependency
	// depFailChan signals a dependency that failed to start
	depFailChan chan error
	// jobDoneChan signals that every Completer has finished
	jobDoneChan  chan struct{}
	osSignalChan chan os.Signal
	// stopCalled allows stop to be called once
	stopCalled *atomic.Bool
	// runCalled allows Run to be called once
	runCalled *atomic.Bool
	// stopTimeout bounds how long dependencies get to stop
	stopTimeout time.Duration
}

type Config struct {
	ServiceName string
	StopTimeout time.Duration
}

func (c *Config) validate() error {
	var errs []error
	if c.ServiceName == "" {
		errs = append(errs, errors.New("service name is required"))
	}
	if c.StopTimeout == 0 {
		errs = append(errs, errors.New("stop timeout is required"))
	}
	return errors.Join(errs...)
}

// CreateApp creates a new application with the provided dependencies.
func CreateApp(cfg *Config, deps ...Dependency) (*App, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &App{
		serviceName:  cfg.ServiceName,
		deps:         deps,
		stopTimeout:  cfg.StopTimeout,
		stopCalled:   &atomic.Bool{},
		runCalled:    &atomic.Bool{},
		depFailChan:  make(chan error, len(deps)),
		jobDoneChan:  make(chan struct{}),
		osSignalChan: make(chan os.Signal, 1), // first signal we get shuts down the app
	}, nil
}

// Run starts every dependency and blocks until the job completes, a
// dependency fails, or the OS asks for a shutdown. The returned error is
// the dependency failure when there was one.
func (a *App) Run(ctx context.Context) error {
	if !a.runCalled.CompareAndSwap(false, true) {
		return errors.New("run has already been called")
	}

	ctxCancel, cancel := context.WithCancel(ctx)
	defer cancel()

	for _, dep := range a.deps {
		// each dependency runs in its own goroutine; a resident dependency
		// returns from Start once it is serving, the job dependency stays
		// in Start until the load is done
		go func(dep Dependency) {
			defer func() {
				if r := recover(); r != nil {
					a.depFailChan <- fmt.Errorf("panic in Start() for dependency %s: %v", dep.Name(), r)
				}
			}()

			log.Info().Msg("Starting dependency: " + dep.Name())
			if err := dep.Start(); err != nil {
				a.depFailChan <- fmt.Errorf("failure in Start() for dependency %s: %w", dep.Name(), err)
			}
		}(dep)
	}

	a.watchCompleters()

	var runErr error
	signal.Notify(a.osSignalChan, os.Interrupt, syscall.SIGTERM)
	select {
	case <-ctxCancel.Done():
		log.Info().Msg("App context cancelled: shutting down")
	case <-a.jobDoneChan:
		log.Info().Msg("Job complete: shutting down")
	case depErr := <-a.depFailChan:
		log.Error().Msg("Dependency failed: " + depErr.Error())
		runErr = depErr
	case sig := <-a.osSignalChan:
		log.Info().Msg("OS signal received: " + sig.String() + ", shutdown beginning")
	}

	signal.Stop(a.osSignalChan)
	if err := a.stop(); err != nil {
		log.Error().Msg("Error stopping application: " + err.Error())
		if runErr == nil {
			runErr = err
		}
	}
	return runErr
}

// watchCompleters closes jobDoneChan once every Completer dependency has
// finished. With no completers the app runs until a signal or failure.
func (a *App) watchCompleters() {
	var completers []Completer
	for _, dep := range a.deps {
		if c, ok := dep.(Completer); ok {
			completers = append(completers, c)
		}
	}
	if len(completers) == 0 {
		return
	}

	go func() {
		for _, c := range completers {
			<-c.Done()
		}
		close(a.jobDoneChan)
	}()
}

// stop attempts a graceful shutdown of each dependency, in reverse start
// order so downstream sinks outlive their producers.
func (a *App) stop() error {
	if !a.stopCalled.CompareAndSwap(false, true) {
		return errors.New("stop has already been called")
	}

	stopped := make(chan error, 1)
	go func() {
		var errs []error
		for i := len(a.deps) - 1; i >= 0; i-- {
			dep := a.deps[i]
			log.Info().Msg("Stopping dependency: " + dep.Name())
			if err := dep.Stop(); err != nil {
				errs = append(errs, fmt.Errorf("failure in Stop() for dependency %s: %w", dep.Name(), err))
			}
		}
		stopped <- errors.Join(errs...)
	}()

	select {
	case err := <-stopped:
		log.Info().Msg(a.serviceName + " stopped")
		return err
	case <-time.After(a.stopTimeout):
		return fmt.Errorf("timed out after %s waiting for dependencies to stop", a.stopTimeout)
	}
}
