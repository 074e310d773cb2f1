package health

import "sync/atomic"

var ready atomic.Bool

func init() { ready.Store(true) }

// SetReady flips the readiness gate. Shutdown hooks call SetReady(false) so
// load balancers drain the instance before connections close.
func SetReady(v bool) { ready.Store(v) }

// IsReady reports the current readiness gate state.
func IsReady() bool { return ready.Load() }
