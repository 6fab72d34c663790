// Package broadcast holds the set of connected clients and fans a payload out
// to all of them.
//
// SendAll has partial-failure semantics: every registered connection gets an
// attempt, each bounded by a timeout, and failures are reported back instead
// of aborting delivery to the others. Removing failed connections is left to
// the caller.
package broadcast
