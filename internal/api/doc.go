// Package api exposes the REST surface of the Ankr agent daemon: the action
// catalogue and chain registry, synchronous action invocation, asynchronous
// task submission and lookup, and the invocation history. Optional static
// bearer tokens guard every route except /healthz and /metrics.
package api
