// Package services defines shared utilities consumed by the conversion stage
// handlers and external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp job IDs, stage names, and correlation
//     identifiers for logging and tracing.
//   - Structured error kinds plus the Wrap helper that translate stage
//     failures into consistent, classifiable error records.
//
// Use these helpers when wiring new stage logic so operational behaviour
// (error handling, observability, retries) stays uniform across the pipeline.
package services
