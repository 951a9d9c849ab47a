package cli

import (
	"github.com/spf13/cobra"

	"github.com/ironsheep/artgrid/internal/logging"
	"github.com/ironsheep/artgrid/internal/server"
)

// mcpCommand creates the mcp command, which serves the artgrid tools over
// the Model Context Protocol on stdin/stdout.
func (c *CLI) mcpCommand() *cobra.Command {
	var noStore bool

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve artgrid tools over MCP on stdin/stdout",
		Long: `Serve artgrid tools over MCP on stdin/stdout.

Requests are newline-delimited JSON-RPC 2.0. Logs go to stderr so stdout
carries only protocol messages. Layouts created in the session are recorded
in the configured layout store unless --no-store is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := logging.FromContext(ctx)

			opts := server.Options{
				Services: c.services(),
				Config:   c.cfg,
				Logger:   logger,
				Version:  version,
				In:       cmd.InOrStdin(),
				Out:      cmd.OutOrStdout(),
			}

			if !noStore {
				st, err := c.openStore(ctx, c.cfg.Store)
				if err != nil {
					logger.Warn("layout store unavailable, layouts last for this session only", "driver", c.cfg.Store.Driver, "err", err)
				} else {
					defer st.Close()
					opts.Store = st
				}
			}

			logger.Info("mcp server starting", "version", version)
			return server.New(opts).Run(ctx)
		},
	}

	cmd.Flags().BoolVar(&noStore, "no-store", false, "keep layouts in memory only")

	return cmd
}
