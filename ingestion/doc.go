// Package ingestion turns documents into indexed chunks.
//
// The Pipeline type manages the ingestion workflow:
//   - Extracting text from files, uploads and web pages
//   - Chunking the text at natural boundaries
//   - Generating embeddings concurrently on a worker pool
//   - Writing all chunks of a document to the index in one transaction
//
// Ingestion is all or nothing: if any embedding batch fails, nothing is
// written and the error is returned to the caller.
package ingestion
