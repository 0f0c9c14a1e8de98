package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/idmlkit/internal"
	"github.com/starford/idmlkit/internal/docservice"
	"github.com/starford/idmlkit/internal/document"
	pkgconfig "github.com/starford/idmlkit/pkg/config"
)

var version = "dev"

// loadConfig reads the config file, falling back to defaults when it is
// absent, then applies workspace flags.
func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.LoadOrDefault(cmd.String("config"), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if v := cmd.String("library"); v != "" {
		cfg.Library.Path = v
	}
	if v := cmd.String("scratch"); v != "" {
		cfg.Workspace.ScratchDir = v
	}
	if v := cmd.String("sync"); v != "" {
		cfg.Workspace.SyncPolicy = v
	}
	if cmd.Bool("retain") {
		cfg.Workspace.RetainOnAbort = true
	}
	if cmd.Bool("trace") {
		cfg.Workspace.Trace = true
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, internal.WithConfig(cfg), internal.WithVersion(version)); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func serveMCP(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.RunMCP(ctx, internal.WithConfig(cfg), internal.WithVersion(version))
}

// withService runs fn against the library named by the config.
func withService(cmd *cli.Command, fn func(*docservice.Service) (any, error)) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	svc, closeFn, err := internal.OpenLibrary(cfg)
	if err != nil {
		return err
	}
	defer closeFn() //nolint:errcheck

	out, err := fn(svc)
	if err != nil {
		return err
	}
	return printJSON(out)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func documentOptions(cmd *cli.Command) ([]document.Option, error) {
	policy, err := document.ParseSyncPolicy(cmd.String("sync"))
	if err != nil {
		return nil, err
	}
	opts := []document.Option{
		document.WithLogger(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))),
		document.WithSyncPolicy(policy),
		document.WithRetainOnAbort(cmd.Bool("retain")),
		document.WithTrace(cmd.Bool("trace")),
	}
	if dir := cmd.String("scratch"); dir != "" {
		opts = append(opts, document.WithScratchDir(dir))
	}
	return opts, nil
}

func inspect(_ context.Context, cmd *cli.Command) error {
	if cmd.NArg() != 1 {
		return fmt.Errorf("usage: idmlkit inspect <file.idml>")
	}
	opts, err := documentOptions(cmd)
	if err != nil {
		return err
	}
	pkg, err := document.Open(cmd.Args().First(), document.ModeRead, opts...)
	if err != nil {
		return err
	}
	defer pkg.Close()

	layout, err := pkg.Layout()
	if err != nil {
		return err
	}
	return printJSON(layout)
}

// copyArchive round-trips src through a working copy into dst.
func copyArchive(_ context.Context, cmd *cli.Command) error {
	if cmd.NArg() != 2 {
		return fmt.Errorf("usage: idmlkit copy <src.idml> <dst.idml>")
	}
	opts, err := documentOptions(cmd)
	if err != nil {
		return err
	}
	pkg, err := document.Open(cmd.Args().Get(0), document.ModeRead, opts...)
	if err != nil {
		return err
	}
	defer pkg.Close()
	return pkg.Save(cmd.Args().Get(1))
}

func setText(ctx context.Context, cmd *cli.Command) error {
	return withService(cmd, func(svc *docservice.Service) (any, error) {
		return svc.SetElementText(ctx,
			cmd.String("package"), cmd.String("story"), cmd.String("element"),
			cmd.String("text"), cmd.String("if-match"))
	})
}

func addTextRange(ctx context.Context, cmd *cli.Command) error {
	return withService(cmd, func(svc *docservice.Service) (any, error) {
		return svc.AddTextRange(ctx, cmd.String("package"), docservice.TextRangeRequest{
			StoryID:   cmd.String("story"),
			ElementID: cmd.String("element"),
			Tag:       cmd.String("tag"),
			Text:      cmd.String("text"),
			PageID:    cmd.String("page"),
			FrameID:   cmd.String("frame"),
			Width:     cmd.Float("width"),
			Height:    cmd.Float("height"),
		}, cmd.String("if-match"))
	})
}

func transactions(ctx context.Context, cmd *cli.Command) error {
	return withService(cmd, func(svc *docservice.Service) (any, error) {
		return svc.Transactions(ctx, document.TxState(cmd.String("state")), int(cmd.Int("limit")))
	})
}

func sweep(ctx context.Context, cmd *cli.Command) error {
	return withService(cmd, func(svc *docservice.Service) (any, error) {
		n, err := svc.Sweep(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]int{"reclaimed": n}, nil
	})
}

// elementFlags addresses one element of a library package.
func elementFlags(extra ...cli.Flag) []cli.Flag {
	return append([]cli.Flag{
		&cli.StringFlag{Name: "package", Aliases: []string{"p"}, Usage: "Library-relative package path", Required: true},
		&cli.StringFlag{Name: "story", Usage: "Story id", Required: true},
		&cli.StringFlag{Name: "element", Usage: "Element id", Required: true},
		&cli.StringFlag{Name: "text", Usage: "Text content"},
		&cli.StringFlag{Name: "if-match", Usage: "Expected archive checksum"},
	}, extra...)
}

func main() {
	cmd := &cli.Command{
		Name:    "idmlkit",
		Usage:   "Transactional editing of IDML packages through extracted working copies",
		Version: version,
		Action:  serve,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
			&cli.StringFlag{Name: "library", Usage: "Library directory (overrides config)", Sources: cli.EnvVars("IDMLKIT_LIBRARY")},
			&cli.StringFlag{Name: "scratch", Usage: "Directory for working copies", Sources: cli.EnvVars("IDMLKIT_SCRATCH_DIR")},
			&cli.StringFlag{Name: "sync", Usage: "Sync policy for unsynchronized parts: manual, auto or strict"},
			&cli.BoolFlag{Name: "retain", Usage: "Keep working copies of failed transactions"},
			&cli.BoolFlag{Name: "trace", Usage: "Surface raw errors and keep the working copy bound after a failure"},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API, SSE stream and library watcher",
				Action: serve,
			},
			{
				Name:   "mcp",
				Usage:  "Serve MCP tools on stdin/stdout",
				Action: serveMCP,
			},
			{
				Name:      "inspect",
				Usage:     "Print the layout of one archive as JSON",
				ArgsUsage: "<file.idml>",
				Action:    inspect,
			},
			{
				Name:      "copy",
				Usage:     "Extract an archive and repack it to a new path",
				ArgsUsage: "<src.idml> <dst.idml>",
				Action:    copyArchive,
			},
			{
				Name:   "set-text",
				Usage:  "Replace the text of one element in a library package",
				Flags:  elementFlags(),
				Action: setText,
			},
			{
				Name:  "add-text-range",
				Usage: "Add a story with one tagged element, optionally framed on a page",
				Flags: elementFlags(
					&cli.StringFlag{Name: "tag", Usage: "Tag name", Required: true},
					&cli.StringFlag{Name: "page", Usage: "Page id to center a frame on"},
					&cli.StringFlag{Name: "frame", Usage: "Frame id (default tf_<story>)"},
					&cli.FloatFlag{Name: "width", Usage: "Frame width in points"},
					&cli.FloatFlag{Name: "height", Usage: "Frame height in points"},
				),
				Action: addTextRange,
			},
			{
				Name:  "transactions",
				Usage: "List journaled transactions",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "state", Usage: "Filter by state (active, committed, aborted, retained, reclaimed)"},
					&cli.IntFlag{Name: "limit", Value: 50, Usage: "Maximum rows"},
				},
				Action: transactions,
			},
			{
				Name:   "sweep",
				Usage:  "Remove working copies retained by failed transactions",
				Action: sweep,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
