// Package twitch integrates with the Twitch Helix API.
//
// Client issues the read calls the relay needs (users, streams, channels, channel search,
// followed streams) plus the two OAuth token grants. AppTokenCache keeps the application
// credential warm and collapses concurrent refreshes into one upstream call.
package twitch
