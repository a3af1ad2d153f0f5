package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/forgeline-io/forgeline/internal/config"
	"github.com/forgeline-io/forgeline/internal/updater"
)

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Update forgeline to the latest version",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println("Checking for updates...")

		result, err := updater.CheckForUpdate()
		if err != nil {
			return fmt.Errorf("check for updates: %w", err)
		}
		if !result.Available {
			fmt.Printf("Already up to date (v%s).\n", result.CurrentVersion)
			return nil
		}

		fmt.Printf("Update available: v%s → v%s\n", result.CurrentVersion, result.LatestVersion)
		fmt.Printf("Release: %s\n", result.ReleaseURL)

		return installRelease(result)
	},
}

// installRelease downloads both binaries, stops the daemon, swaps the
// binaries in place, and restarts the daemon if it was running. The
// daemon is stopped only after both downloads succeed so a flaky
// network never leaves it down with nothing installed.
func installRelease(result *updater.UpdateResult) error {
	cliTmp, err := fetchAsset(result, updater.CLIAssetName())
	if err != nil {
		return err
	}
	defer os.Remove(cliTmp)

	daemonTmp, err := fetchAsset(result, updater.DaemonAssetName())
	if err != nil {
		return err
	}
	defer os.Remove(daemonTmp)

	daemonWasRunning, daemonInfo, _ := config.IsDaemonRunning()
	if daemonWasRunning && daemonInfo != nil {
		fmt.Println("Stopping daemon...")
		if err := stopDaemonForUpdate(daemonInfo.PID); err != nil {
			fmt.Printf("Warning: failed to stop daemon: %v\n", err)
		}
	}

	selfPath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locate own binary: %w", err)
	}
	selfPath, err = filepath.EvalSymlinks(selfPath)
	if err != nil {
		return fmt.Errorf("resolve own binary: %w", err)
	}
	fmt.Println("Installing CLI...")
	if err := updater.ReplaceBinary(selfPath, cliTmp); err != nil {
		return fmt.Errorf("update CLI: %w", err)
	}

	daemonBin, err := findDaemonBinary()
	if err != nil {
		return fmt.Errorf("locate daemon binary: %w", err)
	}
	fmt.Println("Installing daemon...")
	if err := updater.ReplaceBinary(daemonBin, daemonTmp); err != nil {
		return fmt.Errorf("update daemon: %w", err)
	}

	if daemonWasRunning {
		fmt.Println("Restarting daemon...")
		if err := startDaemon(); err != nil {
			fmt.Printf("Warning: failed to restart daemon: %v\n", err)
		}
	}

	fmt.Printf("Updated to v%s.\n", result.LatestVersion)
	return nil
}

func fetchAsset(result *updater.UpdateResult, name string) (string, error) {
	asset := updater.FindAsset(result.Release, name)
	if asset == nil {
		return "", fmt.Errorf("release has no asset %s", name)
	}
	fmt.Printf("Downloading %s...\n", asset.Name)
	path, err := updater.DownloadAsset(asset)
	if err != nil {
		return "", fmt.Errorf("download %s: %w", name, err)
	}
	return path, nil
}

// stopDaemonForUpdate sends SIGTERM and waits for the daemon to exit.
func stopDaemonForUpdate(pid int) error {
	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("find daemon process: %w", err)
	}
	if err := process.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("send stop signal: %w", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if running, _, _ := config.IsDaemonRunning(); !running {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("daemon did not stop in time")
}
