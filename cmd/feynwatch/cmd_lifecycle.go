package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(stopCmd, restartCmd)
}

// readPID returns the PID of the running daemon, checking the process is
// alive with signal 0.
func readPID(dataDir string) (int, error) {
	data, err := os.ReadFile(filepath.Join(dataDir, pidFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, fmt.Errorf("no running daemon (PID file not found)")
		}
		return 0, fmt.Errorf("read PID file: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid PID file content: %w", err)
	}
	if err := syscall.Kill(pid, 0); err != nil {
		return 0, fmt.Errorf("no running daemon (process %d not found)", pid)
	}
	return pid, nil
}

func signalDaemon(sig syscall.Signal) (int, error) {
	cfg := loadConfig()
	pid, err := readPID(cfg.DataDir)
	if err != nil {
		return 0, err
	}
	if err := syscall.Kill(pid, sig); err != nil {
		return 0, fmt.Errorf("send %s: %w", sig, err)
	}
	return pid, nil
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running daemon",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		pid, err := signalDaemon(syscall.SIGTERM)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "Sent SIGTERM to daemon (PID %d).\n", pid)
		return nil
	},
}

var restartCmd = &cobra.Command{
	Use:   "restart",
	Short: "Restart the running daemon so it rereads its config",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		pid, err := signalDaemon(syscall.SIGHUP)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "Sent SIGHUP to daemon (PID %d) for restart.\n", pid)
		return nil
	},
}
