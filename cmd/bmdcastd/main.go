package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/wtvlabs/bmdcastd/internal/dispatch"
	"github.com/wtvlabs/bmdcastd/internal/logger"
)

func main() {
	cfg, err := parseFlags(os.Args[1:])
	if err != nil {
		if err == errHelpRequested {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(0)
	}
	if cfg.showVersion {
		fmt.Println(version)
		return
	}

	if cfg.daemonize && os.Getenv("BMDCASTD_DAEMONIZED") == "" {
		if err := relaunchDaemonized(); err != nil {
			fmt.Fprintln(os.Stderr, "daemonize failed:", err)
			os.Exit(1)
		}
		return
	}

	logger.Init()
	if err := logger.SetLevel(cfg.logLevel); err != nil {
		fmt.Printf("Warning: invalid log level %q, using default\n", cfg.logLevel)
	}
	if cfg.daemonize {
		if logFile, err := openDaemonLogFile(); err == nil {
			logger.UseWriter(logFile)
		}
	}
	log := logger.WithComponent(logger.Logger(), "cli")

	socketPath := strings.ReplaceAll(cfg.socketTemplate, "%d", fmt.Sprintf("%d", os.Getpid()))

	core, err := dispatch.New(dispatch.Config{
		SocketPath: socketPath,
		ModeIndex:  cfg.modeIndex,
		DRMDevice:  cfg.drmDevice,
	})
	if err != nil {
		log.Error("failed to start dispatch core", "error", err)
		os.Exit(1)
	}
	log.Info("dispatch core started", "socket", core.SocketPath(), "version", version)

	if err := core.Run(context.Background()); err != nil {
		log.Error("dispatch core exited with error", "error", err)
		os.Exit(1)
	}
	log.Info("shutdown complete")
}

// relaunchDaemonized implements spec.md §6's single-fork daemonize: it
// re-execs itself in the background with stdio redirected to /dev/null
// (or a log file named after the child's pid), then exits the parent
// immediately. No double-fork or session-leader dance, per spec.
func relaunchDaemonized() error {
	devNull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		return err
	}
	defer devNull.Close()

	args := os.Args[1:]
	cmd := exec.Command(os.Args[0], args...)
	cmd.Stdin = devNull
	cmd.Env = append(os.Environ(), "BMDCASTD_DAEMONIZED=1")

	// The log file name is keyed on the child's own pid, which isn't known
	// until after Start(); redirect to /dev/null first and let the child
	// reopen its own log file once it learns its pid.
	cmd.Stdout = devNull
	cmd.Stderr = devNull

	if err := cmd.Start(); err != nil {
		return err
	}
	return cmd.Process.Release()
}

// openDaemonLogFile opens the optional daemonized log file named after this
// process's own pid (spec.md §6): /tmp/bmd_<pid>.log.
func openDaemonLogFile() (*os.File, error) {
	path := fmt.Sprintf("/tmp/bmd_%d.log", os.Getpid())
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}
