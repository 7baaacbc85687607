// Package reembed recomputes the embedding of every indexed chunk, for
// example after switching to an updated embedding model.
//
// The chunk IDs are snapshotted up front and processed in batches on a
// worker pool. Each batch is embedded with retry and exponential backoff,
// normalized and written back under the same IDs. Chunks deleted while the
// run is in progress are skipped.
//
// The new model must produce vectors of the same dimension as the index.
// To change dimension, clear the index and ingest the documents again.
package reembed
