// Package event provides the typed pub/sub bus that decouples the
// workflow engine from its observers. The bus is an explicit value
// constructed at startup and handed to each component; there is no
// package-level singleton.
//
// Publishing is synchronous: handlers run on the publisher's goroutine in
// registration order, with specific subscriptions dispatched before
// wildcard ones. A panicking handler is recovered and logged so that one
// misbehaving observer cannot block delivery to the rest.
package event
