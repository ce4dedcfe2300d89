// Package agent contains the turn orchestrator. Each user message runs
// detect, decide, clarify, execute and respond in order under a per-session
// lock, driving the conversation state machine
// (idle, awaiting_args, executing, completed) kept in the session store.
package agent
