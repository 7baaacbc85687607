// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/poiesic/ragbot"
	"github.com/poiesic/ragbot/config"
	"github.com/poiesic/ragbot/reembed"
)

// testOptions are appended to every database opened by a command.
var testOptions []ragbot.DatabaseOption

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "ragbot",
		Usage: "Retrieval-augmented chat over your documents",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
				EnvVars: []string{"LOG_LEVEL"},
			},
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "Load settings from this dotenv file if it exists",
				Value: ".env",
			},
			&cli.StringFlag{
				Name:    "data-dir",
				Aliases: []string{"d"},
				Usage:   "Path to the BadgerDB data directory",
				EnvVars: []string{"DATA_DIR"},
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API",
				Action: serveCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "addr",
						Usage:   "Listen address",
						EnvVars: []string{"LISTEN_ADDR"},
					},
				},
			},
			{
				Name:   "ingest",
				Usage:  "Add files or web pages to the knowledge base",
				Action: ingestCommand,
				Flags: []cli.Flag{
					&cli.StringSliceFlag{
						Name:    "file",
						Aliases: []string{"f"},
						Usage:   "File to ingest (.txt, .md, .pdf, .html); repeatable",
					},
					&cli.StringSliceFlag{
						Name:    "url",
						Aliases: []string{"u"},
						Usage:   "Web page to ingest; repeatable",
					},
				},
			},
			{
				Name:      "search",
				Usage:     "Retrieve the documents most relevant to a query",
				ArgsUsage: "QUERY",
				Action:    searchCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "k",
						Usage: "Number of documents to return (0 uses RETRIEVAL_K)",
					},
					&cli.Float64Flag{
						Name:  "min-score",
						Usage: "Minimum relevance score (negative uses MIN_RELEVANCE_SCORE)",
						Value: -1,
					},
					&cli.BoolFlag{
						Name:  "explain",
						Usage: "Print each retrieval stage",
					},
				},
			},
			{
				Name:  "documents",
				Usage: "Inspect and manage indexed documents",
				Subcommands: []*cli.Command{
					{Name: "list", Usage: "List indexed documents", Action: listDocumentsCommand},
					{Name: "delete", Usage: "Delete a document", ArgsUsage: "ID", Action: deleteDocumentCommand},
					{Name: "clear", Usage: "Delete every document", Action: clearDocumentsCommand},
					{Name: "stats", Usage: "Show index statistics", Action: statsCommand},
				},
			},
			{
				Name:  "sessions",
				Usage: "Inspect and manage chat sessions",
				Subcommands: []*cli.Command{
					{Name: "list", Usage: "List chat sessions", Action: listSessionsCommand},
					{Name: "clear", Usage: "Delete every session", Action: clearSessionsCommand},
				},
			},
			{
				Name:   "reembed",
				Usage:  "Recompute every chunk embedding with the configured model",
				Action: reembedCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Number of chunks to embed in each request",
						Value: reembed.DefaultBatchSize,
					},
					&cli.IntFlag{
						Name:  "report-interval",
						Usage: "Report progress every N chunks",
						Value: 100,
					},
					&cli.IntFlag{
						Name:  "max-retries",
						Usage: "Maximum attempts for each embedding request",
						Value: 3,
					},
					&cli.DurationFlag{
						Name:  "retry-delay",
						Usage: "Base delay for exponential backoff",
						Value: 1 * time.Second,
					},
					&cli.IntFlag{
						Name:  "workers",
						Usage: "Number of batches embedded concurrently",
						Value: 2,
					},
				},
			},
		},
	}
}

// loadSettings reads the env file and applies global flag overrides.
func loadSettings(c *cli.Context) (*config.Settings, error) {
	settings, err := config.Load(c.String("env-file"))
	if err != nil {
		return nil, err
	}
	if dir := c.String("data-dir"); dir != "" {
		settings.Storage.DataDir = dir
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return settings, nil
}

func openDatabase(settings *config.Settings) (*ragbot.Database, error) {
	opts := append(ragbot.OptionsFromSettings(settings), testOptions...)
	db, err := ragbot.NewDatabase(settings.Storage.DataDir, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

// withDatabase loads settings, opens the database and closes it after fn.
func withDatabase(c *cli.Context, fn func(*config.Settings, *ragbot.Database) error) error {
	settings, err := loadSettings(c)
	if err != nil {
		return err
	}
	db, err := openDatabase(settings)
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(settings, db)
}

func setupLogger(c *cli.Context) error {
	levelStr := strings.ToLower(c.String("log-level"))

	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	logger := slog.New(slog.NewTextHandler(c.App.ErrWriter, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}
