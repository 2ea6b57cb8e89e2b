// Package media defines the catalog item model shared by the scanner, the
// candidate filter, prompt composition, and the update applier.
package media
