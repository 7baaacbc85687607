package badger

import (
	"errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/ragbot/core"
	"github.com/poiesic/ragbot/storage"
)

type seqRange struct {
	start, end uint64
}

// visibility tracks records that readers must skip: records of staged
// upserts not yet published, and records replaced by published ones that
// have not been swept. Nil means nothing is hidden.
type visibility struct {
	pending []seqRange
	retired map[uint64]uint64 // replaced seq -> first seq of its replacement
}

func (v *visibility) isPending(seq uint64) bool {
	for _, rg := range v.pending {
		if seq >= rg.start && seq <= rg.end {
			return true
		}
	}
	return false
}

func (v *visibility) hidden(seq uint64) bool {
	if v == nil {
		return false
	}
	if v.isPending(seq) {
		return true
	}
	start, ok := v.retired[seq]
	return ok && !v.isPending(start)
}

func (r *ChunkRepository) loadVisibility(tx *badger.Txn) (*visibility, error) {
	vis := &visibility{retired: make(map[uint64]uint64)}
	err := scanSeqs(tx, r.keys.pendings(), func(start, end uint64) {
		vis.pending = append(vis.pending, seqRange{start: start, end: end})
	})
	if err != nil {
		return nil, err
	}
	err = scanSeqs(tx, r.keys.retirees(), func(seq, start uint64) {
		vis.retired[seq] = start
	})
	if err != nil {
		return nil, err
	}
	if len(vis.pending) == 0 && len(vis.retired) == 0 {
		return nil, nil
	}
	return vis, nil
}

// scanSeqs visits keys under prefix that end in a seq and hold a seq.
func scanSeqs(tx *badger.Txn, prefix []byte, fn func(keySeq, valSeq uint64)) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	iter := tx.NewIterator(opts)
	defer iter.Close()

	for iter.Rewind(); iter.Valid(); iter.Next() {
		item := iter.Item()
		var val uint64
		err := item.Value(func(v []byte) error {
			var err error
			val, err = storage.UnmarshalSeq(v)
			return err
		})
		if err != nil {
			return err
		}
		fn(seqSuffix(item.Key()), val)
	}
	return nil
}

// stageReplacement remembers the record a staged chunk replaces and hides
// it once the upsert starting at start is published.
func (r *ChunkRepository) stageReplacement(tx *badger.Txn, id string, start uint64) error {
	old, err := r.readSeq(tx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := tx.Set(r.keys.previous(id), storage.MarshalSeq(old)); err != nil {
		return err
	}
	return tx.Set(r.keys.retired(old), storage.MarshalSeq(start))
}

// rollback undoes a staged upsert that was never published. Chunks whose
// batch was never written are no-ops.
func (r *ChunkRepository) rollback(start uint64, chunks []*core.Chunk, seqs []uint64) error {
	bounds := r.splitBatches(chunks)
	for b := 0; b+1 < len(bounds); b++ {
		lo, hi := bounds[b], bounds[b+1]
		err := r.backend.Update(func(tx *badger.Txn) error {
			for i := lo; i < hi; i++ {
				if err := r.unstage(tx, chunks[i].ID, seqs[i]); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	r.dimMu.Lock()
	defer r.dimMu.Unlock()
	return r.backend.Update(func(tx *badger.Txn) error {
		if err := tx.Delete(r.keys.pending(start)); err != nil {
			return err
		}
		return r.dropDimensionIfEmpty(tx)
	})
}

// unstage removes the staged record at seq and points id back at the
// record it replaced.
func (r *ChunkRepository) unstage(tx *badger.Txn, id string, seq uint64) error {
	if err := r.deleteRecord(tx, seq); err != nil {
		return err
	}
	current, err := r.readSeq(tx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if current != seq {
		return nil
	}

	prev, err := r.readPrevious(tx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return tx.Delete(r.keys.id(id))
	}
	if err != nil {
		return err
	}
	if err := tx.Delete(r.keys.previous(id)); err != nil {
		return err
	}
	if err := tx.Delete(r.keys.retired(prev)); err != nil {
		return err
	}
	// The replaced chunk may have been deleted while the upsert was staged.
	chunk, err := r.readChunk(tx, prev)
	if err != nil {
		return err
	}
	if chunk == nil {
		return tx.Delete(r.keys.id(id))
	}
	return tx.Set(r.keys.id(id), storage.MarshalSeq(prev))
}

// sweepRetired deletes records replaced by published upserts.
func (r *ChunkRepository) sweepRetired() error {
	for {
		var olds []uint64
		err := r.backend.WithTx(func(tx *badger.Txn) error {
			vis, err := r.loadVisibility(tx)
			if err != nil || vis == nil {
				return err
			}
			for seq, start := range vis.retired {
				if vis.isPending(start) {
					continue
				}
				olds = append(olds, seq)
				if len(olds) >= r.txnChunks {
					break
				}
			}
			return nil
		}, false)
		if err != nil {
			return err
		}
		if len(olds) == 0 {
			return nil
		}

		err = r.backend.Update(func(tx *badger.Txn) error {
			for _, old := range olds {
				chunk, err := r.readChunk(tx, old)
				if err != nil {
					return err
				}
				if chunk != nil {
					prev, err := r.readPrevious(tx, chunk.ID)
					if err != nil && !errors.Is(err, storage.ErrNotFound) {
						return err
					}
					if err == nil && prev == old {
						if err := tx.Delete(r.keys.previous(chunk.ID)); err != nil {
							return err
						}
					}
				}
				if err := r.deleteRecord(tx, old); err != nil {
					return err
				}
				if err := tx.Delete(r.keys.retired(old)); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
}

// recover rolls back staged upserts left pending by a crash and finishes
// sweeping published ones.
func (r *ChunkRepository) recover() error {
	var ranges []seqRange
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		return scanSeqs(tx, r.keys.pendings(), func(start, end uint64) {
			ranges = append(ranges, seqRange{start: start, end: end})
		})
	}, false)
	if err != nil {
		return err
	}

	for _, rg := range ranges {
		var (
			chunks []*core.Chunk
			seqs   []uint64
		)
		err := r.backend.WithTx(func(tx *badger.Txn) error {
			opts := badger.DefaultIteratorOptions
			opts.Prefix = r.keys.records()
			iter := tx.NewIterator(opts)
			defer iter.Close()

			for iter.Seek(r.keys.record(rg.start)); iter.Valid(); iter.Next() {
				seq := seqSuffix(iter.Item().Key())
				if seq > rg.end {
					break
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
				chunks = append(chunks, chunk)
				seqs = append(seqs, seq)
			}
			return nil
		}, false)
		if err != nil {
			return err
		}

		r.backend.logger.Warn("rolling back interrupted upsert",
			"collection", r.keys.name, "chunks", len(chunks))
		if err := r.rollback(rg.start, chunks, seqs); err != nil {
			return err
		}
	}
	return r.sweepRetired()
}
