// Command newsctl submits queries to the news-provenance API and renders
// source timelines in the terminal.
package main

import (
	"fmt"
	"os"

	"github.com/DeafMist/news-provenance/internal/config"
)

func main() {
	cfg, err := config.LoadCLI()
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(1)
	}
	if err := newRootCmd(cfg).Execute(); err != nil {
		os.Exit(1)
	}
}
