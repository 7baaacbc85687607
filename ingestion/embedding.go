package ingestion

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/panjf2000/ants/v2"
)

// embed generates one vector per text, splitting the work into batches
// that run concurrently on the worker pool. The first failure cancels the
// remaining batches.
func (p *Pipeline) embed(ctx context.Context, texts []string) ([][]float32, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	vectors := make([][]float32, len(texts))
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	fail := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
			cancel()
		}
		mu.Unlock()
	}

	for start := 0; start < len(texts); start += p.batchSize {
		end := min(start+p.batchSize, len(texts))
		wg.Add(1)
		err := p.pool.Submit(func() {
			defer wg.Done()
			if ctx.Err() != nil {
				return
			}
			batch, err := p.embedder.EmbedTexts(ctx, texts[start:end])
			if err != nil {
				p.logger.Error("error generating embeddings", "batch_start", start, "batch_size", end-start, "err", err)
				fail(fmt.Errorf("%w: %w", ErrEmbeddingFailed, err))
				return
			}
			if len(batch) != end-start {
				fail(fmt.Errorf("%w: embedding result mismatch. expected %d, received %d",
					ErrEmbeddingFailed, end-start, len(batch)))
				return
			}
			for i, vec := range batch {
				if len(vec) == 0 {
					fail(fmt.Errorf("%w: empty embedding for chunk %d", ErrEmbeddingFailed, start+i))
					return
				}
			}
			copy(vectors[start:end], batch)
		})
		if err != nil {
			wg.Done()
			if errors.Is(err, ants.ErrPoolClosed) {
				err = ErrPipelineClosed
			}
			fail(err)
			break
		}
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	// Only the caller can have cancelled ctx at this point.
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return vectors, nil
}
