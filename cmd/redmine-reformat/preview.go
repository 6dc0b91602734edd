// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dmakurin/redmine-reformat/internal/engine"
	"github.com/dmakurin/redmine-reformat/internal/logging"
	"github.com/dmakurin/redmine-reformat/pkg/types"
)

var previewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Convert one text through a configured rule without touching the database",
	Long: `Preview reads text from --input (or stdin), runs it through the converter
chain configured for --type and --field, and prints the result. Use it to
check a converter configuration before a batch run.`,
	RunE: runPreview,
}

var previewFlagKeys = map[string]string{
	"converters_json": "converters-json",
	"converters_file": "converters-file",
}

func init() {
	f := previewCmd.Flags()
	f.String("converters-json", "", "converter configuration as inline JSON")
	f.String("converters-file", "", "path to the converter configuration JSON file")
	f.String("type", "", "record type, e.g. Issue (required)")
	f.String("field", "", "field identifier, e.g. description (required)")
	f.String("input", "-", "file holding the text to convert; - reads stdin")
	f.Int64("id", 0, "record id passed to converters")
	previewCmd.MarkFlagRequired("type")
	previewCmd.MarkFlagRequired("field")

	rootCmd.AddCommand(previewCmd)
}

func runPreview(cmd *cobra.Command, args []string) error {
	bindFlags(cmd.Flags(), previewFlagKeys)
	recordType, _ := cmd.Flags().GetString("type")
	field, _ := cmd.Flags().GetString("field")
	input, _ := cmd.Flags().GetString("input")
	id, _ := cmd.Flags().GetInt64("id")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer logger.Sync()

	eng, err := buildEngine(cfg, logger)
	if err != nil {
		return err
	}

	text, err := readInput(input, cmd.InOrStdin())
	if err != nil {
		return err
	}
	return preview(cmd.Context(), cmd.OutOrStdout(), eng, types.Record{
		Type:   recordType,
		ID:     id,
		Fields: map[string]string{field: text},
	}, field, logger)
}

func readInput(path string, stdin io.Reader) (string, error) {
	var (
		data []byte
		err  error
	)
	if path == "" || path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("reading input: %w", err)
	}
	return string(data), nil
}

// preview converts field of rec and writes the result to w. Nothing is
// read from or written to a store, so format markers play no part.
func preview(ctx context.Context, w io.Writer, eng *engine.Engine, rec types.Record, field string, logger *zap.Logger) error {
	rule, ok := eng.Rule(rec.Type, field)
	if !ok {
		configured := eng.RecordTypes()
		return fmt.Errorf("no rule for %s.%s (configured record types: %s)",
			rec.Type, field, strings.Join(configured, ", "))
	}

	out := eng.Convert(ctx, rec, rule, nil)
	logger.Debug("preview", zap.String("status", string(out.Status)), zap.Strings("chain", rule.Chain.Names()))
	switch out.Status {
	case types.StatusConverted:
		_, err := io.WriteString(w, out.Value)
		return err
	case types.StatusFailed:
		return fmt.Errorf("%s#%d.%s: %w", rec.Type, rec.ID, field, out.Err)
	default:
		fmt.Fprintf(os.Stderr, "field %s: %s\n", field, out.Status)
		return nil
	}
}
