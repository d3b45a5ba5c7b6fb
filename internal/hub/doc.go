// Package hub implements the multi-hub connection and synchronization engine.
//
// A hub is a network-attached bridge exposing a polling-only REST API for a
// set of devices. The engine reconciles these state-only endpoints into a
// consistent change-event stream:
//
//   - Connection owns one hub's network lifecycle (state machine, exponential
//     backoff, grace-period offline detection) and its authoritative device
//     cache with change diffing.
//   - Poller drives periodic refreshes of one Connection without overlap.
//   - Manager owns every (Connection, Poller) pair, persists hub
//     configuration, routes per-device commands to the owning Connection and
//     aggregates state-change events for external listeners.
//
// Failures are always scoped to a single hub: the worst outcome is one hub
// remaining offline while the others continue operating normally.
//
// Thread Safety: all exported methods on Connection, Poller and Manager are
// safe for concurrent use.
package hub
