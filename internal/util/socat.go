// Package util provides helpers for virtual serial management using socat.
package util

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"
)

// SocatManager manages lifecycle of socat-created virtual serial pairs, used to
// connect the supervisor to a simulated robot without hardware.
type SocatManager struct {
	mu     sync.Mutex
	bin    string
	cmds   []*exec.Cmd
	links  []string
	closed bool
}

// NewSocatManager initializes an empty manager using the socat binary found in PATH.
func NewSocatManager() *SocatManager {
	return &SocatManager{bin: "socat"}
}

// PairArgs returns the socat arguments linking two PTYs.
func PairArgs(left, right string) []string {
	return []string{
		"-d", "-d",
		fmt.Sprintf("pty,raw,echo=0,link=%s", left),
		fmt.Sprintf("pty,raw,echo=0,link=%s", right),
	}
}

// CreatePair starts a socat process that links two PTYs (bidirectional) and
// waits until both links exist or ctx expires.
func (m *SocatManager) CreatePair(ctx context.Context, left, right string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errors.New("socat manager closed")
	}

	cmd := exec.Command(m.bin, PairArgs(left, right)...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start socat: %w", err)
	}
	Named("virt-serial").Infof("started socat (pid=%d): %s <-> %s", cmd.Process.Pid, left, right)
	m.cmds = append(m.cmds, cmd)
	m.links = append(m.links, left, right)

	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		if exists(left) && exists(right) {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for pty links: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

func exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

// Cleanup stops all socat processes and removes created links.
func (m *SocatManager) Cleanup() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	log := Named("virt-serial")

	for _, cmd := range m.cmds {
		if cmd.Process != nil {
			log.Infof("killing socat pid=%d", cmd.Process.Pid)
			_ = cmd.Process.Kill()
			_, _ = cmd.Process.Wait()
		}
	}

	for _, path := range m.links {
		if exists(path) {
			_ = os.Remove(path)
			log.Infof("removed link: %s", path)
		}
	}
	log.Infof("cleanup complete (%d pairs)", len(m.links)/2)
}
