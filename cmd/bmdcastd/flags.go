package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"
)

// version is injected at build time with -ldflags "-X main.version=...".
var version = "dev"

// cliConfig holds user-supplied flag values prior to translation into
// dispatch.Config, so main.go can validate and map (spec.md §6).
type cliConfig struct {
	daemonize      bool
	socketTemplate string
	modeIndex      int
	logLevel       string
	drmDevice      string
	showVersion    bool
}

func parseFlags(args []string) (*cliConfig, error) {
	fs := pflag.NewFlagSet("bmdcastd", pflag.ContinueOnError)
	fs.SetOutput(os.Stdout)

	cfg := &cliConfig{}
	fs.BoolVarP(&cfg.daemonize, "daemonize", "D", false, "fork, redirect stdio to /dev/null, optional log file")
	fs.StringVarP(&cfg.socketTemplate, "socket-template", "n", "/tmp/wtv_bmd_%d", "UDS path template, %d -> pid")
	fs.IntVarP(&cfg.modeIndex, "mode", "m", 14, "capture display mode index")
	fs.StringVar(&cfg.logLevel, "log-level", "info", "debug|info|warn|error")
	fs.StringVar(&cfg.drmDevice, "drm-device", "/dev/dri/renderD128", "GPU render node path")
	fs.BoolVar(&cfg.showVersion, "version", false, "print version and exit")

	// Unknown flags print help and exit 0 (spec.md §6), not the pflag
	// default of exiting 2 on a parse error.
	if err := fs.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return nil, errHelpRequested
		}
		fs.Usage()
		return nil, errHelpRequested
	}

	switch cfg.logLevel {
	case "debug", "info", "warn", "error":
	default:
		return nil, fmt.Errorf("invalid log-level %q", cfg.logLevel)
	}

	if !strings.Contains(cfg.socketTemplate, "%d") {
		return nil, fmt.Errorf("socket-template %q must contain %%d", cfg.socketTemplate)
	}

	return cfg, nil
}

var errHelpRequested = fmt.Errorf("help requested")
