// Package main provides the kb_ingest entry point for the agronomy
// knowledge-base ingestion pipeline.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "kb_ingest",
	Short: "Agronomy knowledge-base ingestion pipeline",
	Long:  "kb_ingest fetches agronomy extension bulletins and reference pages, parses and chunks them, embeds the chunks with Gemini, and upserts everything into a pgvector-backed knowledge base.",
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
