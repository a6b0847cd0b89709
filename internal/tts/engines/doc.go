// Package engines contains the synthesis and rewrite backends.
// Currently supports the hosted Gemini API (online) and a deterministic mock (offline).
// Each engine implements the Synthesizer and Rewriter interfaces from the parent package.
package engines
