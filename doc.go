// Package dgsched provides a datagram scheduler that sends packets
// immediately, after a delay or periodically until canceled.
// Queued packets are dispatched by a single worker goroutine in fire order.
// All methods of a Scheduler instance are thread-safe and can safely
// be used from within multiple goroutines.
package dgsched
