package app

import (
	"os"
	"os/signal"
	"syscall"

	"codeberg.org/mutker/thermoctl/internal/exitcode"
)

// installSignals starts the signal goroutine. SIGTERM and SIGINT record
// the termination reason; SIGHUP only wakes the loop. The goroutine never
// touches device state.
func (a *App) installSignals() {
	sigs := a.signals
	if sigs == nil {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP)
		a.stopNotify = func() { signal.Stop(ch) }
		sigs = ch
	}

	a.signalDone = make(chan struct{})
	a.signalExited = make(chan struct{})

	go a.handleSignals(sigs)
}

func (a *App) handleSignals(sigs <-chan os.Signal) {
	defer close(a.signalExited)

	for {
		select {
		case <-a.signalDone:
			return
		case sig := <-sigs:
			if sig == syscall.SIGHUP {
				a.log.Debug().Str("signal", sig.String()).Msg("Received interrupt signal")
			} else {
				a.log.Info().Str("signal", sig.String()).Msg("Received termination signal")
				a.exit.Set(exitcode.TermHandlerSigTerm)
			}

			if loop := a.loopRef.Load(); loop != nil {
				loop.Interrupt()
			}
		}
	}
}

func (a *App) stopSignals() {
	if a.signalDone == nil {
		return
	}

	close(a.signalDone)
	<-a.signalExited

	if a.stopNotify != nil {
		a.stopNotify()
	}
	a.signalDone = nil
}
