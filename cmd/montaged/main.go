// montaged is the montage background daemon. It serves the HTTP API,
// watches the inbox directory, and drives asset pipelines and
// generative jobs.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"montage/internal/config"
	"montage/internal/daemonrun"
)

func main() {
	configPath := flag.String("config", "", "path to config file (default: standard locations)")
	flag.Parse()

	cfg, resolvedPath, exists, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if !exists && *configPath != "" {
		log.Fatalf("config file not found: %s", resolvedPath)
	}

	if err := daemonrun.Run(context.Background(), cfg); err != nil {
		fmt.Fprintf(os.Stderr, "montaged: %v\n", err)
		os.Exit(1)
	}
}
