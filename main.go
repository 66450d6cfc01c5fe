package main

import (
	"context"
	"os"

	"github.com/dpscience/ddrs4pals/cmd"
	"github.com/dpscience/ddrs4pals/internal/buildinfo"
)

// Set at build time with -ldflags "-X main.version=... -X main.buildDate=..."
var (
	version   = "dev"
	buildDate string
)

func main() {
	hostname, _ := os.Hostname()
	info := buildinfo.NewContext(version, buildDate, hostname)

	if err := cmd.RootCommand(info).ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
