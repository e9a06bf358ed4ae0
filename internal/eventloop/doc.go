// Package eventloop provides the single dispatch loop of thermoctl and the
// periodic timer source that feeds it.
//
// Every event source runs on its own goroutine and only ever calls Post.
// Exactly one goroutine calls RunOnce, so handlers never run concurrently
// and events are handled strictly in the order they were queued.
package eventloop
