// Package server accepts websocket clients, ingests their status reports and
// owns the lifecycle of a prompt run: listener, generator, history recorder.
package server
