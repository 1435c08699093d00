package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/siddhant-giri/Copywriter-AI-Figma-Plugin/internal/document"
	"github.com/siddhant-giri/Copywriter-AI-Figma-Plugin/internal/extract"
)

var extractJoined bool

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Print the rewritable text segments of the selected frame",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireDocument(); err != nil {
			return err
		}
		env, err := bootstrap(false)
		if err != nil {
			return err
		}
		defer env.close()

		doc, err := document.Open(documentPath, document.WithLogger(env.logger))
		if err != nil {
			return fmt.Errorf("open document: %w", err)
		}
		segments := extract.Extract(doc)
		if extractJoined {
			fmt.Fprintln(os.Stdout, extract.Join(segments))
			return nil
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(segments)
	},
}

func init() {
	extractCmd.Flags().BoolVar(&extractJoined, "joined", false, "Print the combined text sent to the model instead of JSON")
}
