// Package session owns per-conversation state: message history, detected
// intents, tool calls, clarifications and the single conversation state
// record driven by the turn orchestrator. It is the only package allowed to
// mutate that state, and every operation is keyed by session identifier.
package session
