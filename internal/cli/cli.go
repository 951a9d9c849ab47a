// Package cli implements the artgrid command-line interface.
//
// Every command shares one CLI value built before execution. The root
// command's PersistentPreRunE loads the configuration, sets the log level and
// attaches the logger to the command context, so subcommands read settings
// from c.cfg and log through logging.FromContext.
//
// # Commands
//
//   - layout: place art items on a random grid and print the layout JSON
//   - assemble: composite a layout into a TIFF, IIIF tile set or DZI pyramid
//   - thumbnails: generate saved thumbnails for a list of art items
//   - iiif: project a layout as a IIIF Manifest or Collection
//   - mcp: serve the same operations over MCP on stdin/stdout
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/ironsheep/artgrid/internal/config"
	"github.com/ironsheep/artgrid/internal/errors"
	"github.com/ironsheep/artgrid/internal/fetch"
	"github.com/ironsheep/artgrid/internal/imaging"
	"github.com/ironsheep/artgrid/internal/layout"
	"github.com/ironsheep/artgrid/internal/logging"
	"github.com/ironsheep/artgrid/internal/resource"
	"github.com/ironsheep/artgrid/internal/store"
)

const appName = "artgrid"

var (
	version = "dev"     // semantic version (e.g., "v1.2.3")
	commit  = "unknown" // git commit SHA
	date    = "unknown" // build timestamp
)

// SetVersion sets the version information displayed by --version. main calls
// it with values injected via ldflags.
func SetVersion(v, c, d string) {
	version = v
	commit = c
	date = d
}

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger

	configPath string
	verbose    bool
	cfg        config.Config

	// openStore is replaced in tests.
	openStore func(ctx context.Context, cfg config.StoreConfig) (store.Store, error)
}

// New creates a CLI logging to w. The level is reset from the configuration
// once a command runs.
func New(w io.Writer) *CLI {
	return &CLI{
		Logger:    logging.New(w, log.InfoLevel),
		cfg:       config.Default(),
		openStore: store.Open,
	}
}

// Execute builds the root command and runs it through fang, which adds
// styled help and errors and cancels ctx on interrupt.
func Execute(ctx context.Context) error {
	c := New(os.Stderr)
	return fang.Execute(ctx, c.RootCommand(),
		fang.WithVersion(version),
		fang.WithCommit(commit),
		fang.WithNotifySignal(os.Interrupt),
	)
}

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   appName,
		Short: "Artgrid arranges artworks on grids and assembles them into one image",
		Long: `Artgrid places a pool of artworks on a randomly filled grid, composites the
grid's thumbnails into a single pyramidal TIFF, IIIF tile set or Deep Zoom
pyramid, and describes items and layouts as IIIF Presentation 3 documents.`,
		Version:      version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.setup(cmd)
		},
	}

	root.SetVersionTemplate(fmt.Sprintf("%s %s\ncommit: %s\nbuilt: %s\n", appName, version, commit, date))
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "enable verbose logging")
	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", "", "config file (.yaml, .yml or .toml)")

	root.AddCommand(c.layoutCommand())
	root.AddCommand(c.assembleCommand())
	root.AddCommand(c.thumbnailsCommand())
	root.AddCommand(c.iiifCommand())
	root.AddCommand(c.mcpCommand())

	return root
}

// setup loads the configuration and attaches the logger to the command
// context.
func (c *CLI) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return err
	}
	c.cfg = cfg

	level := logging.ParseLevel(cfg.LogLevel)
	if c.verbose {
		level = log.DebugLevel
	}
	c.Logger.SetLevel(level)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cmd.SetContext(logging.WithLogger(ctx, c.Logger))
	return nil
}

// services builds the collaborators shared by every resource of one run.
func (c *CLI) services() *resource.Services {
	return &resource.Services{
		Fetcher: fetch.NewClient(c.cfg.FetchTimeout.Duration),
		Saver:   store.NewDisk(),
		Codec:   imaging.NewCodec(),
		Logger:  c.Logger,
	}
}

// readLayout loads a layout from a file (layout JSON, or a IIIF Manifest or
// Collection) or, when path is empty, from the configured store by id.
func (c *CLI) readLayout(ctx context.Context, svc *resource.Services, path, id string) (*layout.Layout, error) {
	switch {
	case path != "" && id != "":
		return nil, errors.Input("give either a layout file or --id, not both")
	case path != "":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(errors.CodeInput, err, "read layout %s", path)
		}
		return decodeLayout(ctx, svc, data, c.cfg.ThumbnailWidth)
	case id != "":
		st, err := c.openStore(ctx, c.cfg.Store)
		if err != nil {
			return nil, err
		}
		defer st.Close()
		return layout.Lookup(ctx, svc, st, id)
	default:
		return nil, errors.Input("a layout file or --id is required")
	}
}

// decodeLayout accepts the layout's own JSON form or a IIIF document, which
// is re-laid out by random placement at thumbnail width width.
func decodeLayout(ctx context.Context, svc *resource.Services, data []byte, width int) (*layout.Layout, error) {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, errors.Wrap(errors.CodeInput, err, "layout must be a JSON object")
	}
	if probe.Type != "" {
		return layout.FromIIIF(ctx, svc, data, layout.Options{ThumbnailWidth: width})
	}
	var f layout.Flat
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, errors.Wrap(errors.CodeInput, err, "malformed layout")
	}
	return layout.FromFlat(svc, f)
}

// save records l in the configured store.
func (c *CLI) save(ctx context.Context, l *layout.Layout) error {
	st, err := c.openStore(ctx, c.cfg.Store)
	if err != nil {
		return err
	}
	defer st.Close()
	if err := l.Save(ctx, st); err != nil {
		return err
	}
	logging.FromContext(ctx).Debug("layout recorded", "id", l.ID, "driver", c.cfg.Store.Driver)
	return nil
}

// writeJSON prints v indented to w, or to path when set.
func writeJSON(w io.Writer, path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrap(errors.CodeInternal, err, "encode output")
	}
	b = append(b, '\n')
	if path == "" {
		_, err = w.Write(b)
		return err
	}
	if err := os.WriteFile(path, b, 0644); err != nil {
		return errors.Wrap(errors.CodeResourceUnavailable, err, "write %s", path)
	}
	return nil
}
