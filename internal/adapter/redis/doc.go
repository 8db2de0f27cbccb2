// Package redis shares the application access token between service replicas.
//
// Every client carries a metrics hook and a failsafe-go circuit breaker. When Redis is
// unavailable the shared token store falls back to the upstream token endpoint.
package redis
