// Package server implements the collaborative canvas relay.
//
// Each logical channel (draw, chat) has a Hub holding its sessions. A
// Handler runs one connection through Connecting, Active, Closing and
// Closed, reading newline-delimited records and handing them to the hub,
// which relays them to every other session or, for saves, to the store.
// TCP peers and WebSocket peers (through the gin Gateway) share the same
// hubs.
package server
