// Package catalog reads enrichment candidates from Jellyfin and writes
// regenerated descriptions back.
//
// Scanner performs a single listing request per run and yields media.Item
// values in server order. Applier never returns an error; every write
// outcome is reported as an ApplyResult so the pipeline can record it.
package catalog
