// Package app provides the application service layer.
//
// Merges upstream user, stream, channel and search records into domain.Streamer values and
// runs user-context calls through the refresh-and-retry protocol. Sits between HTTP handlers
// and the upstream client. Depends on interfaces, not concrete implementations.
package app
