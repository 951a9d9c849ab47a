package cli

import (
	"context"
	"math/rand/v2"
	"os"

	"github.com/spf13/cobra"

	"github.com/ironsheep/artgrid/internal/art"
	"github.com/ironsheep/artgrid/internal/errors"
	"github.com/ironsheep/artgrid/internal/layout"
	"github.com/ironsheep/artgrid/internal/logging"
	"github.com/ironsheep/artgrid/internal/resource"
)

type layoutFlags struct {
	id       string
	name     string
	ratio    float64
	rows     int
	cols     int
	width    int
	seed     uint64
	seeded   bool
	output   string
	noRecord bool
}

// layoutCommand creates the layout command for placing items on a grid.
func (c *CLI) layoutCommand() *cobra.Command {
	var f layoutFlags

	cmd := &cobra.Command{
		Use:   "layout [items.json]",
		Short: "Place art items on a randomly filled grid",
		Long: `Place art items on a randomly filled grid.

The input is a JSON array of art items. Each entry may be an item in artgrid's
own form, a legacy {"orig": ...} record, or a IIIF Canvas or Manifest. The
grid shape comes from --rows and --cols, or from --ratio (width over height)
when neither is given.

The layout JSON is printed (or written to --output) and recorded in the
configured layout store so assemble and iiif can find it by id.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f.seeded = cmd.Flags().Changed("seed")
			return c.runLayout(cmd, args[0], f)
		},
	}

	cmd.Flags().StringVar(&f.id, "id", "", "layout id (default: a random UUID)")
	cmd.Flags().StringVar(&f.name, "name", "", "layout name, used for output file names")
	cmd.Flags().Float64Var(&f.ratio, "ratio", 0, "grid width/height ratio (default from config)")
	cmd.Flags().IntVar(&f.rows, "rows", 0, "number of rows (requires --cols)")
	cmd.Flags().IntVar(&f.cols, "cols", 0, "number of columns (requires --rows)")
	cmd.Flags().IntVarP(&f.width, "thumbnail-width", "w", 0, "cell thumbnail width in pixels (default from config)")
	cmd.Flags().Uint64Var(&f.seed, "seed", 0, "seed for reproducible placement")
	cmd.Flags().StringVarP(&f.output, "output", "o", "", "output file (default: stdout)")
	cmd.Flags().BoolVar(&f.noRecord, "no-record", false, "do not record the layout in the store")

	return cmd
}

func (c *CLI) runLayout(cmd *cobra.Command, input string, f layoutFlags) error {
	ctx := cmd.Context()
	logger := logging.FromContext(ctx)
	svc := c.services()

	pool, err := readItems(svc, input)
	if err != nil {
		return err
	}

	opts := layout.Options{
		ID:             f.id,
		Name:           f.name,
		Pool:           pool,
		NumRows:        f.rows,
		NumCols:        f.cols,
		Ratio:          f.ratio,
		ThumbnailWidth: f.width,
	}
	if opts.ThumbnailWidth == 0 {
		opts.ThumbnailWidth = c.cfg.ThumbnailWidth
	}
	if opts.Ratio == 0 && opts.NumRows == 0 && opts.NumCols == 0 {
		opts.Ratio = c.cfg.Ratio
	}
	if f.seeded {
		opts.Rand = rand.New(rand.NewPCG(f.seed, f.seed))
	}

	l, err := layout.New(ctx, svc, opts)
	if err != nil {
		return err
	}
	logger.Info("layout created", "id", l.ID, "rows", l.NumRows, "cols", l.NumCols, "items", l.Len())

	flat, err := l.ToFlat()
	if err != nil {
		return err
	}
	if !f.noRecord {
		if err := c.save(ctx, l); err != nil {
			return err
		}
	}
	return writeJSON(cmd.OutOrStdout(), f.output, flat)
}

// readItems decodes a JSON array of art items from path.
func readItems(svc *resource.Services, path string) ([]*art.Item, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.CodeInput, err, "read items %s", path)
	}
	inputs, err := art.DecodeInputs(data)
	if err != nil {
		return nil, err
	}
	if len(inputs) == 0 {
		return nil, errors.Input("%s lists no art items", path)
	}
	items := make([]*art.Item, 0, len(inputs))
	for i, in := range inputs {
		it, err := art.FromInput(svc, in)
		if err != nil {
			return nil, errors.Annotate(err, "item %d", i)
		}
		items = append(items, it)
	}
	return items, nil
}

// persistItems saves every in-memory thumbnail of items under dir so the
// items can be flattened.
func persistItems(ctx context.Context, items []*art.Item, dir string) error {
	for _, it := range items {
		if err := it.Persist(ctx, dir); err != nil {
			return errors.Annotate(err, "persist %s", it.SourceName)
		}
	}
	return nil
}
