// Package ops serves the optional operator listener: pprof, a health check
// and the recent prompt history. It binds to loopback unless a token is set.
package ops
