package main

import (
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/leadgen-cli/internal/export"
	"github.com/sells-group/leadgen-cli/internal/store"
)

var (
	exportFormat   string
	exportOut      string
	exportJobID    string
	exportMinScore int
	exportUpload   bool
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write persisted leads to a CSV or XLSX file",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if exportFormat != "" {
			cfg.Export.Format = exportFormat
		}
		st, err := openStore(ctx, "export")
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		exp, err := export.NewExporter(cfg.Export, st, nil, "")
		if err != nil {
			return err
		}

		out := exportOut
		if out == "" {
			out = filepath.Join(cfg.Export.Dir, export.FileName(exportJobID, exp.Format()))
		}
		filter := store.LeadFilter{JobID: exportJobID}
		if cmd.Flags().Changed("min-score") {
			filter.MinScore = &exportMinScore
		}

		art, err := exp.Export(ctx, out, filter, exportUpload)
		if err != nil {
			return err
		}
		zap.L().Info("leads exported", zap.String("path", art.Path), zap.Int("rows", art.Rows), zap.String("remote", art.Remote))
		return printJSON(cmd.OutOrStdout(), art)
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportFormat, "format", "", "csv or xlsx (default from config)")
	exportCmd.Flags().StringVar(&exportOut, "out", "", "output path (default: export.dir/leads-<job>.<format>)")
	exportCmd.Flags().StringVar(&exportJobID, "job", "", "only leads from this job")
	exportCmd.Flags().IntVar(&exportMinScore, "min-score", 0, "only leads scoring at least this")
	exportCmd.Flags().BoolVar(&exportUpload, "upload", false, "upload the file over FTP (export.ftp.url)")
	rootCmd.AddCommand(exportCmd)
}
