package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/agencydesk/agencydesk/internal/cli"
)

var version = "dev"

func main() {
	var outDir string
	flag.StringVar(&outDir, "out", "dist/man", "output directory for generated man pages")
	flag.Parse()

	err := cli.GenerateManPages(outDir, cli.BuildInfo{Version: version})
	if err != nil {
		fmt.Fprintf(os.Stderr, "agencydesk-man: %v\n", err)
		os.Exit(1)
	}
}
