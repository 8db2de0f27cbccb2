// Package domain defines the core domain types and interfaces.
//
// This package contains concept-oriented files (errors.go, credential.go, streamer.go) with shared
// types and cross-cutting interfaces. No implementation code - just contracts.
package domain
