package badger

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/ragbot/core"
	"github.com/poiesic/ragbot/storage"
)

// Default bounds on one write transaction. Badger rejects transactions
// past a fraction of its memtable size.
const (
	maxTxnChunks = 256
	maxTxnBytes  = 4 << 20
)

// ChunkRepository implements storage.ChunkRepository for BadgerDB.
// Search is an exact brute-force scan over the collection.
//
// Upserts too large for one transaction are staged: records are written in
// bounded batches under a pending marker that hides them from readers, then
// published by removing the marker. Records they replace stay visible until
// publication and are swept afterwards.
type ChunkRepository struct {
	backend *Backend
	keys    collectionKeys
	idSeq   *badger.Sequence
	seqMu   sync.Mutex
	// dimMu orders upserts, which share the dimension, against deletes,
	// which may drop it.
	dimMu sync.RWMutex

	txnChunks int
	txnBytes  int
	// afterBatch runs after each staged batch commits.
	afterBatch func(batch int) error
}

var _ storage.ChunkRepository = (*ChunkRepository)(nil)

// NewChunkRepository creates a ChunkRepository for the named collection.
// Staged upserts interrupted by a crash are rolled back.
func NewChunkRepository(backend *Backend, collection string) (*ChunkRepository, error) {
	keys, err := newCollectionKeys(collection)
	if err != nil {
		return nil, err
	}
	idSeq, err := backend.GetSequence(keys.sequence())
	if err != nil {
		return nil, err
	}

	r := &ChunkRepository{
		backend:   backend,
		keys:      keys,
		idSeq:     idSeq,
		txnChunks: maxTxnChunks,
		txnBytes:  maxTxnBytes,
	}
	if err := r.recover(); err != nil {
		idSeq.Release()
		return nil, err
	}
	return r, nil
}

// Close releases the ID sequence.
func (r *ChunkRepository) Close() error {
	return r.idSeq.Release()
}

// Upsert stores chunks atomically: either every chunk becomes visible or
// none does.
func (r *ChunkRepository) Upsert(ctx context.Context, chunks ...*core.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	for _, chunk := range chunks {
		if err := core.ValidateChunk(chunk); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	bounds := r.splitBatches(chunks)
	if len(bounds) > 2 {
		return r.stagedUpsert(ctx, chunks)
	}

	seqs, err := r.allocSeqs(len(chunks))
	if err != nil {
		return err
	}
	r.dimMu.RLock()
	defer r.dimMu.RUnlock()
	return r.backend.Update(func(tx *badger.Txn) error {
		if err := r.fixDimension(tx, chunks); err != nil {
			return err
		}
		now := time.Now().UTC()
		for i, chunk := range chunks {
			if err := r.removeChunk(tx, chunk.ID); err != nil && !errors.Is(err, storage.ErrNotFound) {
				return err
			}
			if err := r.writeChunk(tx, chunk, seqs[i], now); err != nil {
				return err
			}
		}
		return nil
	})
}

// stagedUpsert writes chunks across several transactions and publishes
// them with a final one. Any failure before publication rolls back.
func (r *ChunkRepository) stagedUpsert(ctx context.Context, chunks []*core.Chunk) (err error) {
	chunks = lastByID(chunks)
	bounds := r.splitBatches(chunks)
	seqs, err := r.allocSeqs(len(chunks))
	if err != nil {
		return err
	}
	start := seqs[0]
	pending := r.keys.pending(start)

	r.dimMu.RLock()
	err = r.backend.Update(func(tx *badger.Txn) error {
		if err := r.fixDimension(tx, chunks); err != nil {
			return err
		}
		return tx.Set(pending, storage.MarshalSeq(seqs[len(seqs)-1]))
	})
	r.dimMu.RUnlock()
	if err != nil {
		return err
	}
	defer func() {
		if err == nil {
			return
		}
		if rbErr := r.rollback(start, chunks, seqs); rbErr != nil {
			err = errors.Join(err, fmt.Errorf("rolling back staged upsert: %w", rbErr))
		}
	}()

	now := time.Now().UTC()
	for b := 0; b+1 < len(bounds); b++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lo, hi := bounds[b], bounds[b+1]
		err := r.backend.Update(func(tx *badger.Txn) error {
			for i := lo; i < hi; i++ {
				if err := r.stageReplacement(tx, chunks[i].ID, start); err != nil {
					return err
				}
				if err := r.writeChunk(tx, chunks[i], seqs[i], now); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
		if r.afterBatch != nil {
			if err := r.afterBatch(b); err != nil {
				return err
			}
		}
	}

	err = r.backend.Update(func(tx *badger.Txn) error {
		return tx.Delete(pending)
	})
	if err != nil {
		return err
	}

	// Published. Leftover retired records stay hidden and are swept on the
	// next open.
	if sweepErr := r.sweepRetired(); sweepErr != nil {
		r.backend.logger.Warn("sweeping replaced chunks failed",
			"collection", r.keys.name, "error", sweepErr)
	}
	return nil
}

// Search scans every chunk and returns the n closest to vector.
func (r *ChunkRepository) Search(ctx context.Context, vector []float32, n int) ([]core.Candidate, error) {
	results := []core.Candidate{}
	if n <= 0 {
		return results, nil
	}

	err := r.backend.WithTx(func(tx *badger.Txn) error {
		dim, err := r.readDimension(tx)
		if err != nil {
			return err
		}
		if dim == 0 {
			return nil
		}
		if len(vector) != dim {
			return fmt.Errorf("%w: %w: query has %d dimensions, index has %d",
				core.ErrValidation, core.ErrDimensionMismatch, len(vector), dim)
		}
		query := core.NormalizeVector(vector)

		return r.forEachChunk(ctx, tx, func(chunk *core.Chunk) error {
			results = append(results, core.Candidate{
				Chunk:    chunk,
				Distance: 1 - core.DotProduct(query, chunk.Vector),
			})
			return nil
		})
	}, false)
	if err != nil {
		return nil, err
	}

	// Stable sort keeps insertion order among equal distances.
	slices.SortStableFunc(results, func(a, b core.Candidate) int {
		return cmp.Compare(a.Distance, b.Distance)
	})
	if len(results) > n {
		results = results[:n]
	}
	return results, nil
}

// Delete removes chunks by ID. Missing IDs are skipped.
func (r *ChunkRepository) Delete(ctx context.Context, ids ...string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	r.dimMu.Lock()
	defer r.dimMu.Unlock()
	var removed int
	err := r.backend.Update(func(tx *badger.Txn) error {
		removed = 0
		for _, id := range ids {
			err := r.removeChunk(tx, id)
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			removed++
		}
		if removed == 0 {
			return nil
		}
		return r.dropDimensionIfEmpty(tx)
	})
	return removed, err
}

// DeleteDocument removes every chunk belonging to documentID.
func (r *ChunkRepository) DeleteDocument(ctx context.Context, documentID string) (int, error) {
	if documentID == "" {
		return 0, storage.ErrNotFound
	}
	type entry struct {
		id  string
		seq uint64
	}
	r.dimMu.Lock()
	defer r.dimMu.Unlock()
	var removed int
	err := r.backend.Update(func(tx *badger.Txn) error {
		removed = 0
		vis, err := r.loadVisibility(tx)
		if err != nil {
			return err
		}

		// Collect first; deleting while iterating invalidates the iterator.
		var entries []entry
		opts := badger.DefaultIteratorOptions
		opts.Prefix = r.keys.document(documentID)
		iter := tx.NewIterator(opts)
		for iter.Rewind(); iter.Valid(); iter.Next() {
			seq := seqSuffix(iter.Item().Key())
			if vis.hidden(seq) {
				continue
			}
			val, err := iter.Item().ValueCopy(nil)
			if err != nil {
				iter.Close()
				return err
			}
			entries = append(entries, entry{id: string(val), seq: seq})
		}
		iter.Close()

		if len(entries) == 0 {
			return storage.ErrNotFound
		}
		for _, e := range entries {
			if err := r.deleteRecord(tx, e.seq); err != nil {
				return err
			}
			current, err := r.readSeq(tx, e.id)
			if err != nil && !errors.Is(err, storage.ErrNotFound) {
				return err
			}
			if err == nil && current == e.seq {
				if err := tx.Delete(r.keys.id(e.id)); err != nil {
					return err
				}
			}
			removed++
		}
		return r.dropDimensionIfEmpty(tx)
	})
	return removed, err
}

// GetChunks retrieves chunks by ID. Missing IDs are skipped.
func (r *ChunkRepository) GetChunks(ctx context.Context, ids ...string) ([]*core.Chunk, error) {
	var result []*core.Chunk
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		vis, err := r.loadVisibility(tx)
		if err != nil {
			return err
		}
		for _, id := range ids {
			seq, err := r.readSeq(tx, id)
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			if vis.hidden(seq) {
				// Staged replacement; serve the record it replaces.
				seq, err = r.readPrevious(tx, id)
				if errors.Is(err, storage.ErrNotFound) {
					continue
				}
				if err != nil {
					return err
				}
			}
			chunk, err := r.readChunk(tx, seq)
			if err != nil {
				return err
			}
			if chunk != nil {
				result = append(result, chunk)
			}
		}
		return nil
	}, false)
	return result, err
}

// ChunkIDs lists every chunk ID in insertion order.
func (r *ChunkRepository) ChunkIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		return r.forEachChunk(ctx, tx, func(chunk *core.Chunk) error {
			ids = append(ids, chunk.ID)
			return nil
		})
	}, false)
	return ids, err
}

// ListDocuments groups chunks by document in order of first insertion.
func (r *ChunkRepository) ListDocuments(ctx context.Context) ([]core.DocumentInfo, error) {
	docs := []core.DocumentInfo{}
	index := make(map[string]int)
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		return r.forEachChunk(ctx, tx, func(chunk *core.Chunk) error {
			if i, ok := index[chunk.DocumentID]; ok {
				docs[i].ChunkCount++
				return nil
			}
			index[chunk.DocumentID] = len(docs)
			docs = append(docs, core.DocumentInfo{
				DocumentID: chunk.DocumentID,
				Source:     cmp.Or(chunk.Source, "Unknown"),
				ChunkCount: 1,
				FileType:   cmp.Or(chunk.Metadata[core.MetaFileType], chunk.Metadata[core.MetaType], "unknown"),
				CreatedAt:  chunk.InsertedAt,
			})
			return nil
		})
	}, false)
	if err != nil {
		return nil, err
	}
	return docs, nil
}

// Stats reports the number of chunks in the collection.
func (r *ChunkRepository) Stats(ctx context.Context) (core.IndexStats, error) {
	var count int
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		count, err = r.countVisible(tx)
		return err
	}, false)
	if err != nil {
		return core.IndexStats{}, err
	}
	return core.IndexStats{Count: count, Name: r.keys.name}, nil
}

// Clear removes the whole collection, including its fixed dimension.
func (r *ChunkRepository) Clear(ctx context.Context) (int, error) {
	stats, err := r.Stats(ctx)
	if err != nil {
		return 0, err
	}
	if _, err := r.backend.DeletePrefix(r.keys.all()); err != nil {
		return 0, err
	}
	return stats.Count, nil
}

// Helper methods

// forEachChunk visits visible chunk records in insertion order.
func (r *ChunkRepository) forEachChunk(ctx context.Context, tx *badger.Txn, fn func(*core.Chunk) error) error {
	vis, err := r.loadVisibility(tx)
	if err != nil {
		return err
	}

	opts := badger.DefaultIteratorOptions
	opts.Prefix = r.keys.records()
	iter := tx.NewIterator(opts)
	defer iter.Close()

	for iter.Rewind(); iter.Valid(); iter.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if vis.hidden(seqSuffix(iter.Item().Key())) {
			continue
		}
		var chunk *core.Chunk
		err := iter.Item().Value(func(val []byte) error {
			var err error
			chunk, err = storage.UnmarshalChunk(val)
			return err
		})
		if err != nil {
			return err
		}
		if err := fn(chunk); err != nil {
			return err
		}
	}
	return nil
}

func (r *ChunkRepository) countVisible(tx *badger.Txn) (int, error) {
	vis, err := r.loadVisibility(tx)
	if err != nil {
		return 0, err
	}
	if vis == nil {
		return countPrefix(tx, r.keys.records()), nil
	}

	opts := badger.DefaultIteratorOptions
	opts.Prefix = r.keys.records()
	opts.PrefetchValues = false
	iter := tx.NewIterator(opts)
	defer iter.Close()

	count := 0
	for iter.Rewind(); iter.Valid(); iter.Next() {
		if !vis.hidden(seqSuffix(iter.Item().Key())) {
			count++
		}
	}
	return count, nil
}

// allocSeqs reserves n increasing record seqs. Holding seqMu keeps a staged
// upsert's seqs contiguous.
func (r *ChunkRepository) allocSeqs(n int) ([]uint64, error) {
	r.seqMu.Lock()
	defer r.seqMu.Unlock()

	seqs := make([]uint64, n)
	for i := range seqs {
		seq, err := nextSeq(r.idSeq)
		if err != nil {
			return nil, err
		}
		seqs[i] = seq
	}
	return seqs, nil
}

// splitBatches returns batch boundaries over chunks: batch i is
// chunks[bounds[i]:bounds[i+1]].
func (r *ChunkRepository) splitBatches(chunks []*core.Chunk) []int {
	bounds := []int{0}
	count, size := 0, 0
	for i, chunk := range chunks {
		n := recordSize(chunk)
		if count > 0 && (count >= r.txnChunks || size+n > r.txnBytes) {
			bounds = append(bounds, i)
			count, size = 0, 0
		}
		count++
		size += n
	}
	return append(bounds, len(chunks))
}

// recordSize estimates the bytes one chunk adds to a transaction.
func recordSize(chunk *core.Chunk) int {
	size := 4*len(chunk.Vector) + len(chunk.Text) + len(chunk.Source) +
		3*len(chunk.ID) + 2*len(chunk.DocumentID) + 128
	for k, v := range chunk.Metadata {
		size += len(k) + len(v)
	}
	return size
}

// lastByID drops all but the last occurrence of each chunk ID.
func lastByID(chunks []*core.Chunk) []*core.Chunk {
	last := make(map[string]int, len(chunks))
	for i, chunk := range chunks {
		last[chunk.ID] = i
	}
	if len(last) == len(chunks) {
		return chunks
	}
	out := make([]*core.Chunk, 0, len(last))
	for i, chunk := range chunks {
		if last[chunk.ID] == i {
			out = append(out, chunk)
		}
	}
	return out
}

// fixDimension records the collection dimension on first use and checks
// every chunk against it.
func (r *ChunkRepository) fixDimension(tx *badger.Txn, chunks []*core.Chunk) error {
	dim, err := r.readDimension(tx)
	if err != nil {
		return err
	}
	stored := dim != 0
	if !stored {
		dim = len(chunks[0].Vector)
	}
	for _, chunk := range chunks {
		if len(chunk.Vector) != dim {
			return fmt.Errorf("%w: %w: chunk %s has %d dimensions, index has %d",
				core.ErrValidation, core.ErrDimensionMismatch, chunk.ID, len(chunk.Vector), dim)
		}
	}
	if stored {
		return nil
	}
	return tx.Set(r.keys.dimension(), storage.MarshalSeq(uint64(dim)))
}

// dropDimensionIfEmpty forgets the dimension once no records remain, so the
// collection can be refilled with another embedding model.
func (r *ChunkRepository) dropDimensionIfEmpty(tx *badger.Txn) error {
	dim, err := r.readDimension(tx)
	if err != nil || dim == 0 {
		return err
	}
	if hasPrefix(tx, r.keys.records()) || hasPrefix(tx, r.keys.pendings()) {
		return nil
	}
	return tx.Delete(r.keys.dimension())
}

func hasPrefix(tx *badger.Txn, prefix []byte) bool {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	opts.PrefetchValues = false
	iter := tx.NewIterator(opts)
	defer iter.Close()
	iter.Rewind()
	return iter.Valid()
}

// writeChunk stores a normalized copy of chunk under seq with its index
// entries.
func (r *ChunkRepository) writeChunk(tx *badger.Txn, chunk *core.Chunk, seq uint64, now time.Time) error {
	stored := *chunk
	stored.Vector = core.NormalizeVector(chunk.Vector)
	stored.InsertedAt = now

	if err := tx.Set(r.keys.record(seq), storage.MarshalChunk(&stored)); err != nil {
		return err
	}
	if err := tx.Set(r.keys.id(chunk.ID), storage.MarshalSeq(seq)); err != nil {
		return err
	}
	if err := tx.Set(r.keys.documentChunk(chunk.DocumentID, seq), []byte(chunk.ID)); err != nil {
		return err
	}
	chunk.InsertedAt = now
	return nil
}

// removeChunk deletes a chunk record and its index entries.
// Returns storage.ErrNotFound when the ID is unknown.
func (r *ChunkRepository) removeChunk(tx *badger.Txn, id string) error {
	seq, err := r.readSeq(tx, id)
	if err != nil {
		return err
	}
	if err := r.deleteRecord(tx, seq); err != nil {
		return err
	}
	return tx.Delete(r.keys.id(id))
}

// deleteRecord deletes the record at seq and its document index entry.
func (r *ChunkRepository) deleteRecord(tx *badger.Txn, seq uint64) error {
	chunk, err := r.readChunk(tx, seq)
	if err != nil {
		return err
	}
	if chunk != nil {
		if err := tx.Delete(r.keys.documentChunk(chunk.DocumentID, seq)); err != nil {
			return err
		}
	}
	return tx.Delete(r.keys.record(seq))
}

func (r *ChunkRepository) readSeq(tx *badger.Txn, id string) (uint64, error) {
	return readSeqKey(tx, r.keys.id(id))
}

// readPrevious returns the seq a chunk had before a staged upsert.
func (r *ChunkRepository) readPrevious(tx *badger.Txn, id string) (uint64, error) {
	return readSeqKey(tx, r.keys.previous(id))
}

func readSeqKey(tx *badger.Txn, key []byte) (uint64, error) {
	item, err := tx.Get(key)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return 0, storage.ErrNotFound
		}
		return 0, err
	}
	var seq uint64
	err = item.Value(func(val []byte) error {
		var err error
		seq, err = storage.UnmarshalSeq(val)
		return err
	})
	return seq, err
}

// readChunk returns nil when the record does not exist.
func (r *ChunkRepository) readChunk(tx *badger.Txn, seq uint64) (*core.Chunk, error) {
	item, err := tx.Get(r.keys.record(seq))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, err
	}
	var chunk *core.Chunk
	err = item.Value(func(val []byte) error {
		var err error
		chunk, err = storage.UnmarshalChunk(val)
		return err
	})
	return chunk, err
}

// readDimension returns 0 while the collection is empty.
func (r *ChunkRepository) readDimension(tx *badger.Txn) (int, error) {
	item, err := tx.Get(r.keys.dimension())
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return 0, nil
		}
		return 0, err
	}
	var dim uint64
	err = item.Value(func(val []byte) error {
		var err error
		dim, err = storage.UnmarshalSeq(val)
		return err
	})
	return int(dim), err
}
