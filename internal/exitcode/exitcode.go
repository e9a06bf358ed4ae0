// Package exitcode defines the process exit status of thermoctl and the
// single, monotonic exit reason shared by every event source.
//
// Values are stable across releases: operators and supervisors key alerting
// off the numeric status, so existing codes must never be renumbered.
package exitcode

import (
	"strconv"
	"sync/atomic"
)

// Code is the process exit status.
type Code int32

const (
	Success Code = 0

	// Runtime
	TermHandlerSigTerm    Code = 1
	MainEventLoopFail     Code = 2
	TelemetryTimerConsume Code = 3
	CloudSubscribe        Code = 4
	ButtonRead            Code = 5

	// Startup, in acquisition order
	Config             Code = 10
	InitPIDFile        Code = 11
	AlreadyRunning     Code = 12
	InitMetrics        Code = 13
	InitEventLoop      Code = 14
	InitTelemetryTimer Code = 15
	InitUIChip         Code = 16
	InitButtonA        Code = 17
	InitButtonB        Code = 18
	InitStatusLED      Code = 19
	InitSensor         Code = 20
	InitCloud          Code = 21
)

var names = map[Code]string{
	Success:               "success",
	TermHandlerSigTerm:    "term_handler_sigterm",
	MainEventLoopFail:     "main_event_loop_fail",
	TelemetryTimerConsume: "telemetry_timer_consume",
	CloudSubscribe:        "cloud_subscribe",
	ButtonRead:            "button_read",
	Config:                "config",
	InitPIDFile:           "init_pid_file",
	AlreadyRunning:        "already_running",
	InitMetrics:           "init_metrics",
	InitEventLoop:         "init_event_loop",
	InitTelemetryTimer:    "init_telemetry_timer",
	InitUIChip:            "init_ui_chip",
	InitButtonA:           "init_button_a",
	InitButtonB:           "init_button_b",
	InitStatusLED:         "init_status_led",
	InitSensor:            "init_sensor",
	InitCloud:             "init_cloud",
}

func (c Code) String() string {
	if name, ok := names[c]; ok {
		return name
	}

	return "exit_code_" + strconv.Itoa(int(c))
}

// Int returns the value to hand to os.Exit.
func (c Code) Int() int {
	return int(c)
}

// Reason records why the run loop must stop. The zero value is unset.
//
// Set is a single atomic compare-and-swap, so it is safe to call from a
// signal-handling goroutine while the loop is dispatching.
type Reason struct {
	code atomic.Int32
}

// Set records code if no reason has been recorded yet. The first reason wins;
// it reports whether code was stored. Success is never stored.
func (r *Reason) Set(code Code) bool {
	if code == Success {
		return false
	}

	return r.code.CompareAndSwap(int32(Success), int32(code))
}

// Get returns the recorded reason, or Success when none is set.
func (r *Reason) Get() Code {
	return Code(r.code.Load())
}

// IsSet reports whether a reason has been recorded.
func (r *Reason) IsSet() bool {
	return r.Get() != Success
}
