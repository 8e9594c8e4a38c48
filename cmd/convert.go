package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/civic-tools/civicd/internal/kml"
)

var convertOutput string

var convertCmd = &cobra.Command{
	Use:   "convert <file.kml>",
	Short: "Convert a KML file to GeoJSON features offline",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := os.ReadFile(args[0])
		if err != nil {
			return eris.Wrap(err, "read input file")
		}

		result, err := kml.Parse(raw)
		if err != nil {
			return eris.Wrap(err, "parse KML")
		}
		if !result.Success {
			return eris.New(result.Error)
		}

		zap.L().Info("parsed KML",
			zap.String("file", args[0]),
			zap.Int("features", len(result.Features)),
		)

		out, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return eris.Wrap(err, "marshal result")
		}
		out = append(out, '\n')

		if convertOutput == "" || convertOutput == "-" {
			_, err = fmt.Fprint(cmd.OutOrStdout(), string(out))
			return err
		}
		if err := os.WriteFile(convertOutput, out, 0o644); err != nil {
			return eris.Wrap(err, "write output file")
		}
		return nil
	},
}

func init() {
	convertCmd.Flags().StringVarP(&convertOutput, "output", "o", "", "output path (default stdout)")
	rootCmd.AddCommand(convertCmd)
}
