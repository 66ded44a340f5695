// Package analysis runs the two-stage paper analysis and answers custom questions.
//
// Stage 1 is a quick relevance filter over a preview of the paper. Stage 2 produces a
// detailed summary and answers the preset questions. Every deep analysis message shares
// the same system prompt and "title + content" prefix so the chat completion endpoint can
// reuse its prompt cache; only the trailing question changes.
//
// Questions may reference other papers as [YYMM.NNNNN]. Referenced papers are fetched,
// analyzed when needed and inlined into the prompt.
package analysis
