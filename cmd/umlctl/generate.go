package main

import (
	"bytes"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/umlstudio/engine/internal/aiclient"
	"github.com/umlstudio/engine/internal/export"
)

var (
	prompt     string
	pushToRoom string
)

func init() {
	generateCmd.Flags().StringVarP(&prompt, "prompt", "p", "", "what the diagram should model")
	generateCmd.Flags().StringVarP(&outputFile, "output", "o", "", "project file to write (default: stdout)")
	generateCmd.Flags().StringVar(&pushToRoom, "room", "", "also push the result into this room")
	_ = generateCmd.MarkFlagRequired("prompt")
	rootCmd.AddCommand(generateCmd)
}

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Ask the diagram assistant for a class diagram",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := []aiclient.Option{aiclient.WithTimeout(appConfig.AITimeout)}
		if token != "" {
			opts = append(opts, aiclient.WithToken(token))
		}
		client := aiclient.New(aiURL, opts...)

		s, err := client.GenerateDiagram(cmd.Context(), prompt, "")
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "generated %d classes, %d relationships\n", len(s.Classes), len(s.Relationships))

		var buf bytes.Buffer
		if err := export.SaveProject(&buf, s, export.Metadata{Creator: "umlctl", Title: prompt}); err != nil {
			return err
		}
		if err := writeOutput(cmd, buf.Bytes()); err != nil {
			return err
		}
		if pushToRoom != "" {
			return pushDiagram(cmd.Context(), pushToRoom, s)
		}
		return nil
	},
}
