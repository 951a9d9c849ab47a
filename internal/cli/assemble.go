package cli

import (
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ironsheep/artgrid/internal/compositor"
	"github.com/ironsheep/artgrid/internal/errors"
	"github.com/ironsheep/artgrid/internal/layout"
	"github.com/ironsheep/artgrid/internal/logging"
	"github.com/ironsheep/artgrid/internal/resource"
)

type assembleFlags struct {
	id          string
	kind        string
	dir         string
	baseURL     string
	background  string
	concurrency int
	noRecord    bool
}

// assembleSummary is printed after a successful assembly.
type assembleSummary struct {
	ID         string            `json:"id"`
	Output     string            `json:"output"`
	Width      int               `json:"width"`
	Height     int               `json:"height"`
	CellWidth  int               `json:"cellWidth"`
	CellHeight int               `json:"cellHeight"`
	Cells      int               `json:"cells"`
	Skipped    []compositor.Skip `json:"skipped,omitempty"`
}

// assembleCommand creates the assemble command for compositing a layout.
func (c *CLI) assembleCommand() *cobra.Command {
	var f assembleFlags

	cmd := &cobra.Command{
		Use:   "assemble [layout.json]",
		Short: "Composite a layout into one pyramidal image",
		Long: `Composite a layout into one pyramidal image.

The layout is read from a file (a layout JSON, or a IIIF Manifest or
Collection to lay out afresh) or from the layout store with --id. Each cell's
thumbnail is placed at (row*cellHeight, col*cellWidth) on a canvas filled with
--background. Cells whose images cannot be loaded are left as background and
listed under "skipped".

Output kinds:
  tiff   <dir>/<name>.tif, a tiled pyramidal TIFF
  iiif   <dir>/<name>/ with info.json and a IIIF Image API tile tree
  dzi    <dir>/<name>.dzi and <dir>/<name>_files/`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var path string
			if len(args) == 1 {
				path = args[0]
			}
			return c.runAssemble(cmd, path, f)
		},
	}

	cmd.Flags().StringVar(&f.id, "id", "", "assemble the stored layout with this id")
	cmd.Flags().StringVarP(&f.kind, "kind", "k", "", "output kind: tiff, iiif, dzi (default from config)")
	cmd.Flags().StringVarP(&f.dir, "dir", "d", "", "output directory (default from config)")
	cmd.Flags().StringVar(&f.baseURL, "base-url", "", "public URL prefix for IIIF tile services")
	cmd.Flags().StringVar(&f.background, "background", "", "canvas background colour (default from config)")
	cmd.Flags().IntVarP(&f.concurrency, "concurrency", "j", 0, "cells loaded in parallel (default from config)")
	cmd.Flags().BoolVar(&f.noRecord, "no-record", false, "do not record the assembled layout in the store")

	return cmd
}

func (c *CLI) runAssemble(cmd *cobra.Command, path string, f assembleFlags) error {
	ctx := cmd.Context()
	svc := c.services()

	l, err := c.readLayout(ctx, svc, path, f.id)
	if err != nil {
		return err
	}

	opts, err := c.compositeOptions(f)
	if err != nil {
		return err
	}
	opts.Logger = logging.FromContext(ctx)

	gc, err := compositor.Assemble(ctx, l, opts)
	if err != nil {
		return err
	}

	if !f.noRecord {
		// Thumbnails made while compositing stay in memory until persisted.
		if err := persistItems(ctx, l.Items(), filepath.Join(opts.Dir, "thumbnails")); err != nil {
			return err
		}
		if err := c.save(ctx, l); err != nil {
			return errors.Annotate(err, "assembled %s but could not record it", l.ID)
		}
	}

	return writeJSON(cmd.OutOrStdout(), "", summarize(l, gc))
}

func (c *CLI) compositeOptions(f assembleFlags) (compositor.Options, error) {
	kind := f.kind
	if kind == "" {
		kind = c.cfg.OutputKind
	}
	k, err := resource.ParseKind(kind)
	if err != nil {
		return compositor.Options{}, err
	}
	opts := compositor.Options{
		Background:  f.background,
		Concurrency: f.concurrency,
		Kind:        k,
		Dir:         f.dir,
		BaseURL:     f.baseURL,
	}
	if opts.Background == "" {
		opts.Background = c.cfg.Background
	}
	if opts.Concurrency == 0 {
		opts.Concurrency = c.cfg.Concurrency
	}
	if opts.Dir == "" {
		opts.Dir = c.cfg.OutputDir
	}
	if opts.BaseURL == "" {
		opts.BaseURL = c.cfg.BaseURL
	}
	return opts, nil
}

func summarize(l *layout.Layout, gc *compositor.GridComposite) assembleSummary {
	return assembleSummary{
		ID:         l.ID,
		Output:     gc.Item.Source().ID(),
		Width:      gc.Canvas.Width,
		Height:     gc.Canvas.Height,
		CellWidth:  gc.Canvas.CellWidth,
		CellHeight: gc.Canvas.CellHeight,
		Cells:      len(gc.Canvas.Blocks),
		Skipped:    gc.Canvas.Skipped,
	}
}
