// Package caption describes images with a vision-capable LLM served through
// an OpenRouter-compatible endpoint. Captions feed text-based candidate
// scoring; the pipeline treats them as optional and tolerates failures.
package caption
