// Package llm builds classification prompts for expense records, sends them
// to a text generation provider (OpenAI, Anthropic, Ollama or the Claude Code
// CLI) and extracts a structured classification from whatever text comes
// back. Providers sit behind a lazily initialized Backend that adds retry
// logic, rate limiting and response caching.
package llm
