// Package main hosts the MetaMender CLI entrypoint and command graph.
//
// The Cobra command tree loads configuration once, then hands off to the
// internal packages: `run` wires the catalog client, provider, and run
// history into an enrichment pipeline, while `history`, `check`, and
// `config` cover inspection and setup. Keep command files thin and add
// behaviour to the internal packages first.
package main
