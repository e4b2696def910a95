// Package main provides the ashby-resumes entrypoint: the HTTP server and
// command line access to the same operations.
//
// Usage:
//
//	ashby-resumes [--config file] <command> [options]
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"
)

// version is set via ldflags at build time.
var version = "dev"

func main() {
	app := newApp(os.Stdout, os.Stderr)
	if err := app.Run(os.Args); err != nil {
		// ExitErrHandler already exited for cli.ExitCoder errors.
		os.Exit(1)
	}
}

func newApp(stdout, stderr io.Writer) *cli.App {
	return &cli.App{
		Name:      "ashby-resumes",
		Usage:     "Browse Ashby applicants, fetch resumes and combine PDFs",
		Version:   version,
		Writer:    stdout,
		ErrWriter: stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Optional YAML config file",
				EnvVars: []string{"ASHBY_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Override the log level (debug, info, warn, error)",
			},
			&cli.BoolFlag{
				Name:  "pretty",
				Usage: "Human-readable log output",
			},
		},
		ExitErrHandler: exitErrHandler,
		Commands: []*cli.Command{
			serveCommand(),
			jobsCommand(),
			stagesCommand(),
			candidatesCommand(),
			downloadCommand(),
			bulkCommand(),
			combineCommand(),
			versionCommand(),
		},
	}
}

// exitErrHandler prints err and exits, preserving cli.Exit codes.
func exitErrHandler(c *cli.Context, err error) {
	if err == nil {
		return
	}

	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		code := exitCoder.ExitCode()
		msg := exitCoder.Error()
		if msg != "" && msg != fmt.Sprintf("exit status %d", code) {
			fmt.Fprintln(c.App.ErrWriter, msg)
		}
		os.Exit(code)
	}

	fmt.Fprintf(c.App.ErrWriter, "Error: %v\n", err)
	os.Exit(1)
}
