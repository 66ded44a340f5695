// Package llm wraps OpenAI-compatible chat completion endpoints behind a small Client interface.
//
// LangChainClient is the production implementation and uses langchaingo's OpenAI provider,
// which also serves DeepSeek. Streaming delivers reasoning chunks separately from answer chunks.
package llm
