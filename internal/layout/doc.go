// Package layout registers a small set of block-layout queries against the
// query engine. The bodies are illustrative: enough box-model behavior to
// give the engine realistic dependency shapes (inherited widths, summed
// heights, sibling offsets, nested formatting contexts), not a layout
// algorithm.
//
// A full pass runs in three scheduler phases over units rooted at
// formatting-context roots: widths top-down, heights bottom-up, then
// offsets once every height is known.
package layout
