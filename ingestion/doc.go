// Package ingestion turns uploaded files into indexed chunks.
//
// The Pipeline type manages the ingestion workflow for a document:
//   - Saving the original bytes under the upload directory
//   - Registering the document, flagging uploads whose checksum is already known
//   - Extracting text and splitting it into overlapping chunks
//   - Embedding and indexing the chunks, then recording the chunk count
//
// A document that fails after registration is removed again, so the registry
// never lists documents without indexed text. Batches of local files are
// ingested concurrently on a worker pool.
package ingestion
