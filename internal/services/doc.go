// Package services defines shared utilities consumed by the enrichment
// pipeline and its external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp run IDs, catalog item IDs, and provider names
//     for logging and tracing.
//   - Structured error markers plus the Wrap helper that keep failures
//     classifiable (configuration vs. unavailable vs. transient) after they
//     have been annotated with component context.
//
// Use these helpers when wiring new integrations so operational behaviour
// (error handling, observability) stays uniform across the tool.
package services
