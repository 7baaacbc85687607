package ingestion

import (
	"context"
	"path/filepath"

	"github.com/poiesic/ragbot/core"
	"github.com/poiesic/ragbot/extract"
)

// IngestFile extracts and ingests the file at path.
func (p *Pipeline) IngestFile(ctx context.Context, path string) (*Result, error) {
	doc, err := extract.File(path)
	if err != nil {
		return nil, err
	}
	return p.ingestDocument(ctx, filepath.Base(path), path, doc)
}

// IngestUpload ingests an uploaded file held in memory. name is the
// client's file name and selects the parser.
func (p *Pipeline) IngestUpload(ctx context.Context, name string, data []byte) (*Result, error) {
	name = filepath.Base(name)
	doc, err := extract.Bytes(name, data)
	if err != nil {
		return nil, err
	}
	return p.ingestDocument(ctx, name, name, doc)
}

func (p *Pipeline) ingestDocument(ctx context.Context, name, path string, doc extract.Document) (*Result, error) {
	return p.Ingest(ctx, Source{
		Text:   doc.Text,
		Source: "file://" + name,
		Metadata: map[string]string{
			core.MetaFilePath: path,
			core.MetaFileType: doc.FileType,
		},
	})
}

// IngestURL downloads a web page and ingests its text.
func (p *Pipeline) IngestURL(ctx context.Context, url string) (*Result, error) {
	text, err := p.fetcher.Fetch(ctx, url)
	if err != nil {
		p.logger.Warn("failed to fetch url", "url", url, "err", err)
		return nil, err
	}
	return p.Ingest(ctx, Source{
		Text:   text,
		Source: url,
		Metadata: map[string]string{
			core.MetaURL:  url,
			core.MetaType: "web",
		},
	})
}

// URLResult is the outcome of ingesting one URL.
type URLResult struct {
	URL    string
	Result *Result
	Err    error
}

// IngestURLs ingests each URL in turn. A failing URL is recorded in its
// result and does not stop the others.
func (p *Pipeline) IngestURLs(ctx context.Context, urls []string) []URLResult {
	results := make([]URLResult, len(urls))
	for i, url := range urls {
		results[i].URL = url
		if err := ctx.Err(); err != nil {
			results[i].Err = err
			continue
		}
		results[i].Result, results[i].Err = p.IngestURL(ctx, url)
	}
	return results
}
