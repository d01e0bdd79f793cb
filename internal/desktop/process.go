package desktop

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v4/process"
)

// GameProcess launches the game client and force-stops it together with
// any helper processes it spawned
type GameProcess struct {
	mu  sync.Mutex
	cmd *exec.Cmd
	exe string
}

func NewGameProcess() *GameProcess {
	return &GameProcess{}
}

// Start launches executablePath from its own directory. Leftover clients
// from an earlier crash are killed first.
func (p *GameProcess) Start(ctx context.Context, executablePath string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.exe = filepath.Base(executablePath)
	if n := killByName(ctx, p.exe); n > 0 {
		log.Warn().Int("count", n).Str("exe", p.exe).Msg("Process: killed stale game clients")
	}

	cmd := exec.Command(executablePath)
	cmd.Dir = filepath.Dir(executablePath)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("launch %s: %w", executablePath, err)
	}
	p.cmd = cmd
	log.Info().Int("pid", cmd.Process.Pid).Str("exe", executablePath).Msg("Process: game client started")

	go func() {
		// reap the child so it never lingers as a zombie
		_ = cmd.Wait()
	}()
	return nil
}

// Kill stops the launched client and its process tree
func (p *GameProcess) Kill() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cmd == nil || p.cmd.Process == nil {
		return nil
	}
	pid := int32(p.cmd.Process.Pid)
	p.cmd = nil

	proc, err := process.NewProcess(pid)
	if err != nil {
		// already gone
		return nil
	}
	if err := killTree(proc); err != nil {
		return fmt.Errorf("kill game client %d: %w", pid, err)
	}
	log.Info().Int32("pid", pid).Msg("Process: game client stopped")
	return nil
}

func killTree(proc *process.Process) error {
	children, _ := proc.Children()
	for _, child := range children {
		if err := killTree(child); err != nil {
			log.Warn().Err(err).Int32("pid", child.Pid).Msg("Process: failed to kill child")
		}
	}
	return proc.Kill()
}

func killByName(ctx context.Context, exe string) int {
	if exe == "" {
		return 0
	}
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return 0
	}
	killed := 0
	for _, proc := range procs {
		name, err := proc.NameWithContext(ctx)
		if err != nil || !strings.EqualFold(name, exe) {
			continue
		}
		if err := killTree(proc); err == nil {
			killed++
		}
	}
	return killed
}
