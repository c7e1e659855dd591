// Package logging centralizes logger construction and structured field
// conventions for pixguard. Loggers are log/slog instances; the package
// provides a console handler for interactive use, a JSON handler for files
// and collectors, attribute helpers, and context-derived fields (run id,
// stage, lane, correlation id) so every component logs the same shape.
package logging
