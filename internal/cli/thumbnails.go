package cli

import (
	"context"
	"path/filepath"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ironsheep/artgrid/internal/art"
	"github.com/ironsheep/artgrid/internal/errors"
	"github.com/ironsheep/artgrid/internal/logging"
	"github.com/ironsheep/artgrid/internal/resource"
)

// thumbnailsCommand creates the thumbnails command for pre-generating saved
// thumbnails.
func (c *CLI) thumbnailsCommand() *cobra.Command {
	var (
		widths []int
		dir    string
		output string
	)

	cmd := &cobra.Command{
		Use:   "thumbnails [items.json]",
		Short: "Generate saved thumbnails for art items",
		Long: `Generate saved thumbnails for art items.

Each item gets one JPEG per --width, saved as <dir>/<stem>-<width>.jpg. Widths
an item already lists are left alone. The items are printed back with their
thumbnails recorded, ready to feed to layout.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			svc := c.services()

			items, err := readItems(svc, args[0])
			if err != nil {
				return err
			}
			if len(widths) == 0 {
				widths = []int{c.cfg.ThumbnailWidth}
			}
			if dir == "" {
				dir = filepath.Join(c.cfg.OutputDir, "thumbnails")
			}

			progress := logging.NewProgress(logging.FromContext(ctx))
			g, gctx := errgroup.WithContext(ctx)
			g.SetLimit(max(1, c.cfg.Concurrency))
			for i, it := range items {
				g.Go(func() error {
					if err := createThumbnails(gctx, it, widths, dir); err != nil {
						return errors.Annotate(err, "item %d", i)
					}
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}
			progress.Done("thumbnails generated", "items", len(items), "widths", widths)

			flats := make([]art.Flat, len(items))
			for i, it := range items {
				f, err := it.ToFlat()
				if err != nil {
					return err
				}
				flats[i] = f
			}
			return writeJSON(cmd.OutOrStdout(), output, flats)
		},
	}

	cmd.Flags().IntSliceVarP(&widths, "width", "w", nil, "thumbnail width in pixels, repeatable (default from config)")
	cmd.Flags().StringVarP(&dir, "dir", "d", "", "thumbnail directory (default: <output_dir>/thumbnails)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default: stdout)")

	return cmd
}

func createThumbnails(ctx context.Context, it *art.Item, widths []int, dir string) error {
	for _, w := range widths {
		if it.ThumbnailExists(w) {
			continue
		}
		if _, err := it.CreateThumbnail(ctx, w, resource.ThumbnailOptions{SaveDir: dir}); err != nil {
			return err
		}
	}
	return nil
}
