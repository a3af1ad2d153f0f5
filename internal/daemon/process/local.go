package process

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"

	"github.com/forgeline-io/forgeline/internal/models"
	"github.com/forgeline-io/forgeline/internal/sessionlog"
)

// LocalProvider spawns the configured agent binary under a PTY and streams
// its output into the session's log writer.
type LocalProvider struct {
	Name     string
	Settings *models.ProviderConfig
	Logs     *sessionlog.Registry
	LogPath  func(sessionID string) string
}

// Spawn starts the agent process for the given params. The returned handle
// settles when the process exits; Kill sends SIGTERM, waits 5 seconds, then
// SIGKILL.
func (p *LocalProvider) Spawn(ctx context.Context, params StartParams) (*Handle, error) {
	binPath, err := p.resolveBinary()
	if err != nil {
		return nil, err
	}

	args := append([]string{}, p.Settings.Args...)
	if params.Prompt != "" {
		args = append(args, params.Prompt)
	}

	cmd := exec.Command(binPath, args...)
	if params.WorkDir != "" {
		cmd.Dir = params.WorkDir
	}

	ptmx, err := pty.Start(cmd)
	if err != nil {
		return nil, fmt.Errorf("start pty: %w", err)
	}

	writer := p.Logs.Writer(params.SessionID, p.LogPath(params.SessionID))

	done := make(chan Outcome, 1)
	exited := make(chan struct{})

	go func() {
		defer close(exited)

		// Drain PTY output into the session log until the process exits.
		var lineBuf strings.Builder
		buf := make([]byte, 32*1024)
		for {
			n, readErr := ptmx.Read(buf)
			if n > 0 {
				lineBuf.Write(buf[:n])
				content := lineBuf.String()
				lines := strings.Split(content, "\n")
				lineBuf.Reset()
				lineBuf.WriteString(lines[len(lines)-1]) // keep the partial line
				for _, line := range lines[:len(lines)-1] {
					if line = strings.TrimRight(line, "\r"); line != "" {
						writer.Append("output", map[string]any{"line": line})
					}
				}
			}
			if readErr != nil {
				break
			}
		}
		if rest := strings.TrimRight(lineBuf.String(), "\r"); rest != "" {
			writer.Append("output", map[string]any{"line": rest})
		}

		exitErr := cmd.Wait()
		_ = ptmx.Close()

		if exitErr != nil {
			done <- Outcome{Err: fmt.Errorf("agent process: %w", exitErr)}
		} else {
			done <- Outcome{Result: "exited cleanly"}
		}
		close(done)
	}()

	var killOnce sync.Once
	kill := func() {
		killOnce.Do(func() {
			if cmd.Process == nil {
				return
			}
			_ = cmd.Process.Signal(syscall.SIGTERM)
			select {
			case <-exited:
				return
			case <-time.After(5 * time.Second):
			}
			_ = cmd.Process.Kill()
		})
	}

	return &Handle{Done: done, Kill: kill}, nil
}

// resolveBinary finds the provider binary.
// Check order: settings path -> exec.LookPath -> platform-specific fallbacks.
func (p *LocalProvider) resolveBinary() (string, error) {
	if p.Settings != nil && p.Settings.Path != "" {
		if _, err := os.Stat(p.Settings.Path); err == nil {
			return p.Settings.Path, nil
		}
	}

	if path, err := exec.LookPath(p.Name); err == nil {
		return path, nil
	}

	homeDir, _ := os.UserHomeDir()
	fallbacks := []string{
		homeDir + "/.claude/local/claude",
	}
	if runtime.GOOS == "darwin" {
		fallbacks = append(fallbacks,
			"/opt/homebrew/bin/"+p.Name,
			"/usr/local/bin/"+p.Name,
		)
	}
	for _, fp := range fallbacks {
		if _, err := os.Stat(fp); err == nil {
			return fp, nil
		}
	}

	return "", fmt.Errorf("%s binary not found. Install it or set the path in ~/.forgeline/settings.yaml", p.Name)
}
