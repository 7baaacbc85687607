package main

import (
	"errors"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/urfave/cli/v2"

	"github.com/poiesic/ragbot"
	"github.com/poiesic/ragbot/api"
	"github.com/poiesic/ragbot/config"
	"github.com/poiesic/ragbot/reembed"
	"github.com/poiesic/ragbot/storage"
)

func serveCommand(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return withDatabase(c, func(settings *config.Settings, db *ragbot.Database) error {
		if !settings.Server.Debug {
			gin.SetMode(gin.ReleaseMode)
		}
		addr := settings.Server.ListenAddr
		if c.IsSet("addr") {
			addr = c.String("addr")
		}

		router := api.NewRouter(api.Config{
			Prefix:      settings.Server.APIPrefix,
			CORSOrigins: settings.Server.CORSOrigins,
		}, api.Deps{
			Chat:      db.ChatService(),
			Sessions:  db.Sessions(),
			Chunks:    db.Chunks(),
			Retriever: db.Retriever(),
			Pipeline:  db.Pipeline(),
			Vision:    db.Vision(),
			Ready:     db.Ready,
		})

		fmt.Fprintf(c.App.ErrWriter, "Listening on %s (prefix %s)\n", addr, settings.Server.APIPrefix)
		return api.Serve(ctx, addr, router)
	})
}

func ingestCommand(c *cli.Context) error {
	files := c.StringSlice("file")
	urls := c.StringSlice("url")
	if len(files) == 0 && len(urls) == 0 {
		return errors.New("at least one --file or --url is required")
	}

	return withDatabase(c, func(_ *config.Settings, db *ragbot.Database) error {
		out := c.App.Writer
		failed := 0
		for _, path := range files {
			res, err := db.Pipeline().IngestFile(c.Context, path)
			if err != nil {
				fmt.Fprintf(out, "%s: failed: %v\n", path, err)
				failed++
				continue
			}
			fmt.Fprintf(out, "%s: %d chunks (document %s)\n", path, res.ChunkCount, res.DocumentID)
		}
		for _, r := range db.Pipeline().IngestURLs(c.Context, urls) {
			if r.Err != nil {
				fmt.Fprintf(out, "%s: failed: %v\n", r.URL, r.Err)
				failed++
				continue
			}
			fmt.Fprintf(out, "%s: %d chunks (document %s)\n", r.URL, r.Result.ChunkCount, r.Result.DocumentID)
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d sources failed", failed, len(files)+len(urls))
		}
		return nil
	})
}

func searchCommand(c *cli.Context) error {
	query := strings.Join(c.Args().Slice(), " ")
	if strings.TrimSpace(query) == "" {
		return errors.New("a query is required")
	}

	return withDatabase(c, func(_ *config.Settings, db *ragbot.Database) error {
		out := c.App.Writer
		var monitor *explainMonitor
		if c.Bool("explain") {
			monitor = &explainMonitor{w: out}
		}

		docs, err := db.Retriever().RetrieveWithMonitor(c.Context, query, c.Int("k"), c.Float64("min-score"), monitor.orNil())
		if err != nil {
			return err
		}

		verified := db.Retriever().Verify(query, docs)
		fmt.Fprintf(out, "Found %d documents (verified: %t)\n", len(docs), verified)
		for i, doc := range docs {
			fmt.Fprintf(out, "%d: [%0.3f] %s\n   %s\n", i+1, doc.ScoreOr(0), doc.Source(), preview(doc.Content, 120))
		}
		return nil
	})
}

func listDocumentsCommand(c *cli.Context) error {
	return withDatabase(c, func(_ *config.Settings, db *ragbot.Database) error {
		docs, err := db.Chunks().ListDocuments(c.Context)
		if err != nil {
			return err
		}
		total := 0
		for _, doc := range docs {
			total += doc.ChunkCount
			fmt.Fprintf(c.App.Writer, "%s  %-40s %4d chunks  %s\n",
				doc.DocumentID, doc.Source, doc.ChunkCount, doc.CreatedAt.Local().Format("2006-01-02 15:04"))
		}
		fmt.Fprintf(c.App.Writer, "%d documents, %d chunks\n", len(docs), total)
		return nil
	})
}

func deleteDocumentCommand(c *cli.Context) error {
	id := c.Args().First()
	if id == "" {
		return errors.New("a document ID is required")
	}
	return withDatabase(c, func(_ *config.Settings, db *ragbot.Database) error {
		removed, err := db.Chunks().DeleteDocument(c.Context, id)
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("document %s not found", id)
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "Deleted document %s (%d chunks)\n", id, removed)
		return nil
	})
}

func clearDocumentsCommand(c *cli.Context) error {
	return withDatabase(c, func(_ *config.Settings, db *ragbot.Database) error {
		removed, err := db.Chunks().Clear(c.Context)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "Removed %d chunks\n", removed)
		return nil
	})
}

func statsCommand(c *cli.Context) error {
	return withDatabase(c, func(settings *config.Settings, db *ragbot.Database) error {
		stats, err := db.Chunks().Stats(c.Context)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "Collection: %s\nChunks: %d\nData dir: %s\n",
			stats.Name, stats.Count, settings.Storage.DataDir)
		return nil
	})
}

func listSessionsCommand(c *cli.Context) error {
	return withDatabase(c, func(_ *config.Settings, db *ragbot.Database) error {
		sessions, err := db.Sessions().ListSessions(c.Context)
		if err != nil {
			return err
		}
		for _, s := range sessions {
			fmt.Fprintf(c.App.Writer, "%s  %-30s %3d messages  %s\n",
				s.ID, s.Title, s.MessageCount, preview(s.LastMessage, 40))
		}
		fmt.Fprintf(c.App.Writer, "%d sessions\n", len(sessions))
		return nil
	})
}

func clearSessionsCommand(c *cli.Context) error {
	return withDatabase(c, func(_ *config.Settings, db *ragbot.Database) error {
		n, err := db.Sessions().ClearSessions(c.Context)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "Deleted %d sessions\n", n)
		return nil
	})
}

func reembedCommand(c *cli.Context) error {
	reembedConfig := &reembed.Config{
		BatchSize:      c.Int("batch-size"),
		ReportInterval: c.Int("report-interval"),
		MaxRetries:     c.Int("max-retries"),
		RetryDelay:     c.Duration("retry-delay"),
		Workers:        c.Int("workers"),
	}

	if reembedConfig.BatchSize <= 0 {
		return fmt.Errorf("batch-size must be greater than 0")
	}
	if reembedConfig.ReportInterval <= 0 {
		return fmt.Errorf("report-interval must be greater than 0")
	}
	if reembedConfig.MaxRetries <= 0 {
		return fmt.Errorf("max-retries must be greater than 0")
	}
	if reembedConfig.Workers <= 0 {
		return fmt.Errorf("workers must be greater than 0")
	}

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return withDatabase(c, func(settings *config.Settings, db *ragbot.Database) error {
		reembedder, err := reembed.NewReembedder(db.Chunks(), db.Embedder(), reembedConfig, c.App.ErrWriter)
		if err != nil {
			return err
		}

		fmt.Fprintf(c.App.ErrWriter, "Database: %s\n", settings.Storage.DataDir)
		fmt.Fprintf(c.App.ErrWriter, "Embedding host: %s\n", settings.Models.EmbeddingHost)
		fmt.Fprintf(c.App.ErrWriter, "Embedding model: %s\n", settings.Models.EmbeddingModel)
		fmt.Fprintln(c.App.ErrWriter)

		if err := reembedder.Run(ctx); err != nil {
			return fmt.Errorf("reembedding failed: %w", err)
		}
		return nil
	})
}

// preview flattens s onto one line and cuts it to n runes.
func preview(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > n {
		return string(r[:n]) + "..."
	}
	return s
}
