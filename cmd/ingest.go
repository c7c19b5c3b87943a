package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"

	"github.com/odit-bit/rcaccelerator/rca"
	"github.com/odit-bit/rcaccelerator/rca/config"
	"github.com/odit-bit/rcaccelerator/vectordb"
	"github.com/spf13/cobra"
)

func init() {
	IngestCMD.Flags().AddFlagSet(config.ServerFlags())
}

var IngestCMD = cobra.Command{
	Use:   "ingest <file.jsonl>",
	Short: "embed a jsonl corpus into the vector store",
	Long: `Every line is a json object {"id", "collection", "text", "url"}.
Documents are embedded with the first embeddings model and upserted by id.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		cfg, err := config.LoadAndValidate(cmd.Flags())
		if err != nil {
			return err
		}
		rca.SetupLogging(cfg.Server)
		if cfg.VectorDB.Backend == vectordb.BackendMemory {
			slog.Warn("memory vector store is dropped on exit, use vectordb.seed_file for the server instead")
		}

		catalog, err := rca.OpenCatalog(ctx, cfg.Models)
		if err != nil {
			return err
		}
		vs, err := vectordb.Open(ctx, cfg.VectorDB)
		if err != nil {
			return err
		}
		if c, ok := vs.(io.Closer); ok {
			defer c.Close()
		}

		n, err := rca.IngestFile(ctx, catalog, vs, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d documents stored\n", n)
		return nil
	},
}
