// Package reembed recomputes the embeddings of every indexed chunk.
//
// Vectors produced by different embedding models are not comparable, so
// after the embedding model changes the whole index has to be re-embedded
// before queries return meaningful results. Chunks are walked in key order
// in batches, each batch is embedded with retry and exponential backoff,
// normalized to unit length and written back in place. Chunk text and
// metadata are left untouched.
package reembed
