// Package api exposes the conversational orchestrator over HTTP: synchronous
// chat turns, session history and transcripts, asynchronous turn jobs, health
// and Prometheus metrics.
package api
