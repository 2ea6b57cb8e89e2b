// Package enrich runs the enrichment pipeline: scan the catalog, filter
// candidates, generate replacement descriptions, write them back, and record
// one outcome per item.
//
// Items are processed strictly one at a time. Provider failures become
// skips and write failures become failures; only a failed catalog scan
// aborts the run. Cancelling the context stops the run before the next item
// and still produces a summary of the work done so far.
package enrich
