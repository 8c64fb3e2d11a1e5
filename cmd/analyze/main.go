// Command analyze runs one canopy and air quality analysis and prints the
// result as a single JSON object on stdout. Diagnostics go to stderr.
//
//	analyze [-config file] [-debug] <image_base64|-> <latitude> <longitude>
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"

	"github.com/Brownie44l1/canopy-aq/internal/analysis"
	"github.com/Brownie44l1/canopy-aq/internal/app"
	"github.com/Brownie44l1/canopy-aq/internal/config"
	"github.com/Brownie44l1/canopy-aq/internal/geo"
	"github.com/Brownie44l1/canopy-aq/internal/logging"
)

const (
	exitOK               = 0
	exitAnalysisFailed   = 1
	exitUsage            = 2
	exitModelUnavailable = 3
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("analyze", flag.ContinueOnError)
	fs.SetOutput(stderr)
	cfgFile := fs.String("config", "", "Path to YAML config file (optional)")
	debug := fs.Bool("debug", false, "Turn on debugging output")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: analyze [flags] <image_base64|-> <latitude> <longitude>")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if fs.NArg() != 3 {
		fs.Usage()
		return exitUsage
	}

	payload := fs.Arg(0)
	if payload == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			fmt.Fprintf(stderr, "failed to read image from stdin: %v\n", err)
			return exitUsage
		}
		payload = string(data)
	}
	if payload == "" {
		fmt.Fprintln(stderr, "no image data provided")
		return exitUsage
	}

	coord, err := geo.Parse(fs.Arg(1), fs.Arg(2))
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitUsage
	}

	_ = godotenv.Load()

	cfg, err := config.Load(*cfgFile)
	if err != nil {
		fmt.Fprintf(stderr, "error reading config: %v\n", err)
		return exitUsage
	}
	cfg.Debug = cfg.Debug || *debug

	log, err := logging.New(cfg.Debug)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitUsage
	}
	defer log.Sync()

	a, err := app.Build(cfg, log)
	if err != nil {
		fmt.Fprintf(stderr, "failed to initialize analyzer: %v\n", err)
		return exitUsage
	}
	defer a.Close()

	res := a.Analyzer.Analyze(context.Background(), payload, coord)
	if err := json.NewEncoder(stdout).Encode(res); err != nil {
		fmt.Fprintf(stderr, "failed to write result: %v\n", err)
		return exitAnalysisFailed
	}

	switch res.Kind() {
	case analysis.FailureNone:
		return exitOK
	case analysis.FailureModelUnavailable:
		return exitModelUnavailable
	default:
		return exitAnalysisFailed
	}
}
