// Package realtime implements the connection and notification subsystem:
// a registry of live client connections with per-user and global quotas,
// the in-band authentication handshake, channel-based fan-out, periodic
// heartbeat/staleness/recovery sweeps, and the preference-filtered
// notification dispatcher.
//
// The registry exclusively owns all connection records. Other components
// reference connections by id only and mutate them through registry
// operations, so there is no shared mutable aliasing. The registry mutex
// guards map mutation only and is never held across a network send.
package realtime
