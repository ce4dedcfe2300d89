// Package llm contains the language-model side of a turn: the intent
// detector, the response renderer, and the provider-neutral Completer that
// the openai, anthropic and pythonbridge adapters implement. Prompts are
// built from the live tool registry so the detector always sees the current
// argument contracts.
package llm
