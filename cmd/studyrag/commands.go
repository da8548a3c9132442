package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/urfave/cli/v2"

	"github.com/poiesic/studyrag/config"
	"github.com/poiesic/studyrag/core"
	"github.com/poiesic/studyrag/extract"
	"github.com/poiesic/studyrag/reembed"
	"github.com/poiesic/studyrag/retrieval"
	"github.com/poiesic/studyrag/tui"
	"github.com/poiesic/studyrag/watch"
)

func ingestCommand() *cli.Command {
	return &cli.Command{
		Name:      "ingest",
		Usage:     "Index documents; directories are walked for supported files",
		ArgsUsage: "<path>...",
		Action:    ingestAction,
	}
}

func ingestAction(c *cli.Context) error {
	if c.NArg() == 0 {
		return errors.New("at least one path is required")
	}
	paths, err := expandPaths(c.Args().Slice())
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return fmt.Errorf("no supported files found (supported: %s)", strings.Join(extract.SupportedExtensions(), ", "))
	}

	a, err := openAssistant(c)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := commandContext(c, 0)
	defer cancel()

	out := c.App.Writer
	failed := 0
	for _, res := range a.Pipeline().IngestFiles(ctx, paths) {
		if res.Err != nil {
			failed++
			fmt.Fprintf(out, "FAIL %s: %v\n", res.Path, res.Err)
			continue
		}
		note := ""
		if res.Document.DuplicateOf != "" {
			note = fmt.Sprintf(" (duplicate of %s)", res.Document.DuplicateOf)
		}
		fmt.Fprintf(out, "OK   %s -> %s, %d chunks%s\n", res.Path, res.Document.ID, res.Document.ChunkCount, note)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(paths))
	}
	return nil
}

// expandPaths replaces directories with the supported files beneath them.
func expandPaths(args []string) ([]string, error) {
	var paths []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			paths = append(paths, arg)
			continue
		}
		err = filepath.WalkDir(arg, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if path != arg && strings.HasPrefix(d.Name(), ".") {
					return filepath.SkipDir
				}
				return nil
			}
			if extract.Supported(path) && !strings.HasPrefix(d.Name(), ".") {
				paths = append(paths, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return paths, nil
}

func askCommand() *cli.Command {
	return &cli.Command{
		Name:      "ask",
		Usage:     "Answer a question from the indexed documents",
		ArgsUsage: "<question>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "mode",
				Aliases: []string{"m"},
				Usage:   "Answer mode (qa, summary, quiz)",
				Value:   string(core.ModeQA),
			},
			&cli.StringFlag{
				Name:  "conversation",
				Usage: "Continue an existing conversation",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "Give up after this long",
				Value: 2 * time.Minute,
			},
		},
		Action: askAction,
	}
}

func askAction(c *cli.Context) error {
	question := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if question == "" {
		return errors.New("a question is required")
	}
	mode, err := core.ParseMode(c.String("mode"))
	if err != nil {
		return err
	}

	a, err := openAssistant(c)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := commandContext(c, c.Duration("timeout"))
	defer cancel()

	ans := a.Orchestrator().Query(ctx, question, mode, c.String("conversation"))
	out := c.App.Writer
	fmt.Fprintln(out, ans.Text)
	if len(ans.Sources) > 0 {
		fmt.Fprintln(out, "\nSources:")
		for i, s := range ans.Sources {
			fmt.Fprintf(out, "  %d. %s (relevance %.3f)\n", i+1, s.Document, s.RelevanceScore)
		}
	}
	fmt.Fprintf(out, "\nconversation: %s\n", ans.ConversationID)
	return nil
}

func searchCommand() *cli.Command {
	return &cli.Command{
		Name:      "search",
		Usage:     "Show the chunks most similar to a query",
		ArgsUsage: "<query>",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "top-k",
				Aliases: []string{"k"},
				Usage:   "Number of results",
				Value:   5,
			},
		},
		Action: func(c *cli.Context) error {
			query := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
			if query == "" {
				return errors.New("query cannot be empty")
			}
			if c.Int("top-k") < 1 {
				return errors.New("top-k must be at least 1")
			}

			a, err := openAssistant(c)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, cancel := commandContext(c, time.Minute)
			defer cancel()

			results, err := a.Retriever().Retrieve(ctx, query, c.Int("top-k"))
			if err != nil && !errors.Is(err, retrieval.ErrNoRelevantResults) {
				return err
			}
			out := c.App.Writer
			if len(results) == 0 {
				fmt.Fprintln(out, "No results.")
				return nil
			}
			for i, r := range results {
				fmt.Fprintf(out, "%d. %s #%d  relevance=%.4f\n", i+1, r.Metadata.Filename, r.Metadata.ChunkIndex, r.RelevanceScore)
				fmt.Fprintf(out, "   %s\n", oneLine(r.Content, 160))
			}
			return nil
		},
	}
}

func documentsCommand() *cli.Command {
	return &cli.Command{
		Name:  "documents",
		Usage: "Manage indexed documents",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List documents, newest first",
				Action: func(c *cli.Context) error {
					a, err := openAssistant(c)
					if err != nil {
						return err
					}
					defer a.Close()

					docs, err := a.Documents().List(c.Context)
					if err != nil {
						return err
					}
					out := c.App.Writer
					if len(docs) == 0 {
						fmt.Fprintln(out, "No documents.")
						return nil
					}
					for _, d := range docs {
						fmt.Fprintf(out, "%s  %-40s  %4d chunks  %8d bytes  %s\n",
							d.ID, d.Filename, d.ChunkCount, d.FileSize, d.UploadedAt.Local().Format(time.DateTime))
					}
					return nil
				},
			},
			{
				Name:      "delete",
				Usage:     "Delete a document, its chunks and stored file",
				ArgsUsage: "<id>",
				Action: func(c *cli.Context) error {
					id := c.Args().First()
					if id == "" {
						return errors.New("document id is required")
					}
					a, err := openAssistant(c)
					if err != nil {
						return err
					}
					defer a.Close()

					existed, err := a.Pipeline().Delete(c.Context, id)
					if err != nil {
						return err
					}
					if !existed {
						return fmt.Errorf("document %s not found", id)
					}
					fmt.Fprintf(c.App.Writer, "Document %s deleted successfully\n", id)
					return nil
				},
			},
		},
	}
}

func historyCommand() *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "Inspect conversation history",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List conversations, most recent first",
				Action: func(c *cli.Context) error {
					a, err := openAssistant(c)
					if err != nil {
						return err
					}
					defer a.Close()

					summaries, err := a.Orchestrator().Conversations(c.Context)
					if err != nil {
						return err
					}
					out := c.App.Writer
					if len(summaries) == 0 {
						fmt.Fprintln(out, "No conversations.")
						return nil
					}
					for _, s := range summaries {
						fmt.Fprintf(out, "%s  %3d messages  updated %s\n",
							s.ID, s.MessageCount, s.UpdatedAt.Local().Format(time.DateTime))
					}
					return nil
				},
			},
			{
				Name:      "show",
				Usage:     "Print a conversation",
				ArgsUsage: "<id>",
				Action: func(c *cli.Context) error {
					id := c.Args().First()
					if id == "" {
						return errors.New("conversation id is required")
					}
					a, err := openAssistant(c)
					if err != nil {
						return err
					}
					defer a.Close()

					record, ok, err := a.Orchestrator().History(c.Context, id)
					if err != nil {
						return err
					}
					if !ok {
						return fmt.Errorf("conversation %s not found", id)
					}
					out := c.App.Writer
					for _, m := range record.Messages {
						fmt.Fprintf(out, "[%s] %s (%s): %s\n",
							m.Timestamp.Local().Format(time.DateTime), m.Role, m.Mode, m.Content)
					}
					return nil
				},
			},
			{
				Name:      "delete",
				Usage:     "Forget a conversation",
				ArgsUsage: "<id>",
				Action: func(c *cli.Context) error {
					id := c.Args().First()
					if id == "" {
						return errors.New("conversation id is required")
					}
					a, err := openAssistant(c)
					if err != nil {
						return err
					}
					defer a.Close()

					existed, err := a.Orchestrator().DeleteHistory(c.Context, id)
					if err != nil {
						return err
					}
					if !existed {
						return fmt.Errorf("conversation %s not found", id)
					}
					fmt.Fprintf(c.App.Writer, "Conversation %s deleted\n", id)
					return nil
				},
			},
		},
	}
}

func chatCommand() *cli.Command {
	return &cli.Command{
		Name:  "chat",
		Usage: "Interactive terminal chat",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "conversation",
				Usage: "Continue an existing conversation",
			},
		},
		Action: func(c *cli.Context) error {
			a, err := openAssistant(c)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, cancel := commandContext(c, 0)
			defer cancel()

			m := tui.New(ctx, a.Orchestrator(), c.String("conversation"))
			_, err = tea.NewProgram(m, tea.WithAltScreen()).Run()
			return err
		},
	}
}

func watchCommand() *cli.Command {
	return &cli.Command{
		Name:      "watch",
		Usage:     "Ingest files as they are added to a directory",
		ArgsUsage: "<dir>",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "initial-scan",
				Usage: "Ingest the files already present at startup",
				Value: true,
			},
			&cli.DurationFlag{
				Name:  "debounce",
				Usage: "Quiet period before a changed file is ingested; overrides ingest.debounce",
			},
		},
		Action: func(c *cli.Context) error {
			dir := c.Args().First()
			if dir == "" {
				return errors.New("directory is required")
			}
			a, err := openAssistant(c)
			if err != nil {
				return err
			}
			defer a.Close()

			opts := []watch.Option{watch.WithInitialScan(c.Bool("initial-scan"))}
			if c.IsSet("debounce") {
				opts = append(opts, watch.WithDebounce(c.Duration("debounce")))
			}
			w, err := a.NewWatcher(opts...)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			fmt.Fprintf(c.App.Writer, "Watching %s (Ctrl+C to stop)\n", dir)
			if err := w.Run(ctx, dir); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
}

func reindexCommand() *cli.Command {
	return &cli.Command{
		Name:  "reindex",
		Usage: "Re-embed every indexed chunk with the configured embedding model",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "batch-size",
				Usage: "Number of chunks to embed per call",
				Value: reembed.DefaultBatchSize,
			},
			&cli.IntFlag{
				Name:  "report-interval",
				Usage: "Report progress every N chunks",
				Value: 100,
			},
			&cli.IntFlag{
				Name:  "max-retries",
				Usage: "Maximum attempts per embedding call",
				Value: 3,
			},
			&cli.DurationFlag{
				Name:  "retry-delay",
				Usage: "Base delay for exponential backoff",
				Value: 1 * time.Second,
			},
		},
		Action: reindexAction,
	}
}

func reindexAction(c *cli.Context) error {
	rc := &reembed.Config{
		BatchSize:      c.Int("batch-size"),
		ReportInterval: c.Int("report-interval"),
		MaxRetries:     c.Int("max-retries"),
		RetryDelay:     c.Duration("retry-delay"),
	}
	if rc.BatchSize <= 0 {
		return fmt.Errorf("batch-size must be greater than 0")
	}
	if rc.ReportInterval <= 0 {
		return fmt.Errorf("report-interval must be greater than 0")
	}
	if rc.MaxRetries <= 0 {
		return fmt.Errorf("max-retries must be greater than 0")
	}

	a, err := openAssistant(c)
	if err != nil {
		return err
	}
	defer a.Close()

	r, err := a.NewReembedder(rc, c.App.Writer)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	_, err = r.Run(ctx)
	return err
}

func configCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Manage the configuration file",
		Subcommands: []*cli.Command{
			{
				Name:  "init",
				Usage: "Write a configuration file with default values",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "force", Usage: "Overwrite an existing file"},
				},
				Action: func(c *cli.Context) error {
					path := c.String("config")
					if _, err := os.Stat(path); err == nil && !c.Bool("force") {
						return fmt.Errorf("%s already exists; use --force to overwrite", path)
					}
					if err := config.Save(path, config.Default()); err != nil {
						return err
					}
					fmt.Fprintf(c.App.Writer, "Wrote %s\n", path)
					return nil
				},
			},
		},
	}
}

// oneLine collapses whitespace and truncates s to limit characters.
func oneLine(s string, limit int) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > limit {
		return string(r[:limit]) + "..."
	}
	return s
}
