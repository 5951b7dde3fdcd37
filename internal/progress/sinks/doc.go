// Package sinks implements progress consumers: structured logging, Prometheus
// metrics and the Postgres run history.
package sinks
