package cli

import (
	"github.com/spf13/cobra"

	"github.com/ironsheep/artgrid/internal/art"
	"github.com/ironsheep/artgrid/internal/iiif"
	"github.com/ironsheep/artgrid/internal/layout"
)

// iiifCommand creates the iiif command for projecting a layout as IIIF
// Presentation 3.
func (c *CLI) iiifCommand() *cobra.Command {
	var (
		id      string
		kind    string
		baseID  string
		exclude []string
		saveDir string
		output  string
	)

	cmd := &cobra.Command{
		Use:   "iiif [layout.json]",
		Short: "Describe a layout as a IIIF Manifest or Collection",
		Long: `Describe a layout as a IIIF Manifest or Collection.

A Manifest holds one Canvas per cell; a Collection holds one Manifest per
cell. Both follow the layout's row-major order. --exclude drops "thumbnails"
or "metadata" from every cell. With --save-dir the document is also saved as
<save-dir>/<name>.json.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			svc := c.services()

			var path string
			if len(args) == 1 {
				path = args[0]
			}
			l, err := c.readLayout(ctx, svc, path, id)
			if err != nil {
				return err
			}

			opts := layout.IIIFOptions{
				IIIFOptions: art.IIIFOptions{
					Exclude:  exclude,
					SaveDir:  saveDir,
					SaveJSON: saveDir != "",
				},
				BaseID: baseID,
			}
			doc, err := l.ToIIIF(ctx, kind, opts)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), output, doc)
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "project the stored layout with this id")
	cmd.Flags().StringVarP(&kind, "kind", "k", iiif.TypeManifest, "Manifest or Collection")
	cmd.Flags().StringVar(&baseID, "base-id", "", "prefix for generated IIIF ids (default: the layout id)")
	cmd.Flags().StringSliceVar(&exclude, "exclude", nil, "fields to leave out: thumbnails, metadata")
	cmd.Flags().StringVar(&saveDir, "save-dir", "", "also save the document under this directory")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default: stdout)")

	return cmd
}
