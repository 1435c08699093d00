package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/siddhant-giri/Copywriter-AI-Figma-Plugin/internal/document"
	"github.com/siddhant-giri/Copywriter-AI-Figma-Plugin/internal/errinfo"
	"github.com/siddhant-giri/Copywriter-AI-Figma-Plugin/internal/plugin"
)

var (
	genAPIKey       string
	genTone         string
	genVariants     int
	genInstructions string
	genIndices      []int
	genModel        string
	genNoSave       bool
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate copy variants for the selected frame and apply them",
	Long: `Runs one generate action against --document: the selected frame's text is
rewritten by Gemini, each variant lands in a duplicated frame and the document
is saved back in place.

Flags override the stored settings for this run only.`,
	RunE: runGenerate,
}

func init() {
	generateCmd.Flags().StringVar(&genAPIKey, "api-key", "", "Gemini API key (default: stored key, then "+envKeyName+")")
	generateCmd.Flags().StringVar(&genTone, "tone", "", "Tone of voice (default: settings)")
	generateCmd.Flags().IntVarP(&genVariants, "variants", "n", 0, "Number of variants (default: settings)")
	generateCmd.Flags().StringVar(&genInstructions, "instructions", "", "Extra instructions for the model")
	generateCmd.Flags().IntSliceVar(&genIndices, "indices", nil, "Segment indices to rewrite (default: all)")
	generateCmd.Flags().StringVar(&genModel, "model", "", "Model id (default: settings)")
	generateCmd.Flags().BoolVar(&genNoSave, "no-save", false, "Do not write the document back")
}

func runGenerate(cmd *cobra.Command, args []string) error {
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
	current := env.loadSettings()
	client := env.newGeminiClient(current, genModel)

	opts := []plugin.Option{
		plugin.WithLogger(env.logger),
		plugin.WithKeySource(env.secrets),
		plugin.WithEnvKey(env.envKey),
		plugin.WithSettings(env.settings),
		plugin.WithModelID(client.Model()),
	}
	if !genNoSave {
		opts = append(opts, plugin.WithPersist(doc.Save))
	}
	ctrl := plugin.New(doc, client, opts...)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	commands := make(chan plugin.Command)
	runErr := make(chan error, 1)
	go func() { runErr <- ctrl.Run(ctx, commands) }()

	reply := make(chan *errinfo.ErrorInfo, 1)
	var indices []int
	if cmd.Flags().Changed("indices") {
		indices = genIndices
	}
	select {
	case commands <- plugin.Generate{
		APIKey:          genAPIKey,
		Tone:            genTone,
		VariantCount:    genVariants,
		Instructions:    genInstructions,
		SelectedIndices: indices,
		Reply:           reply,
	}:
	case <-ctrl.Done():
		if err := <-runErr; err != nil {
			return err
		}
		return ctx.Err()
	}

	outcome := awaitOutcome(ctrl, reply)
	close(commands)
	for range ctrl.Events() {
	}
	if err := <-runErr; err != nil {
		return err
	}
	return outcome
}

// awaitOutcome prints display text and notices until the run settles. A
// successful run ends with the snapshot refresh that follows apply.
func awaitOutcome(ctrl *plugin.Controller, reply <-chan *errinfo.ErrorInfo) error {
	succeeded := false
	for {
		select {
		case info := <-reply:
			if info != nil {
				return errors.New(plugin.FailurePrefix + describe(info))
			}
			reply = nil
		case ev, ok := <-ctrl.Events():
			if !ok {
				return errors.New("plugin closed before the run finished")
			}
			switch ev := ev.(type) {
			case plugin.GenerationSucceeded:
				fmt.Fprintln(os.Stdout, ev.Display)
				succeeded = true
			case plugin.GenerationFailed:
				return errors.New(ev.Message)
			case plugin.Notice:
				fmt.Fprintln(os.Stderr, ev.Message)
			case plugin.TextNodesUpdated:
				if succeeded {
					return nil
				}
			}
		}
	}
}

func describe(info *errinfo.ErrorInfo) string {
	if info.Detail != "" {
		return info.Detail
	}
	return info.ErrorCode
}
