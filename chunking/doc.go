// Package chunking splits document text into retrievable chunks.
//
// Text is first whitespace-normalized, then cut with a cascade of
// separators (paragraph, line, sentence, word, character). Each chunk after
// the first is prefixed with the tail of the previous chunk so that context
// carries across boundaries.
package chunking
