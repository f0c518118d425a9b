//go:build linux

package splittunnel

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sys/unix"
)

const (
	cgroupProcs = "cgroup.procs"
	procRoot    = "/proc"
)

// CgroupV2 implements Cgroup on the unified cgroup hierarchy. It remembers
// the cgroup every process came from so Restore can put it back.
type CgroupV2 struct {
	root   string
	name   string
	level  uint32
	logger *slog.Logger

	mu      sync.Mutex
	origins map[int]string
}

// NewCgroupV2 returns the exclusion cgroup described by cfg. Nothing is
// created until Ref is called.
func NewCgroupV2(cfg Config, logger *slog.Logger) *CgroupV2 {
	cfg.ApplyDefaults()
	return &CgroupV2{
		root:    cfg.CgroupRoot,
		name:    filepath.Clean(cfg.CgroupName),
		level:   cfg.cgroupLevel(),
		logger:  logger.With("component", "splittunnel"),
		origins: make(map[int]string),
	}
}

func (c *CgroupV2) dir() string {
	return filepath.Join(c.root, c.name)
}

// Ref creates the cgroup when missing. Its ID is the inode of the cgroup
// directory, which is what the kernel compares socket cgroups against.
func (c *CgroupV2) Ref() (CgroupRef, error) {
	if err := os.Mkdir(c.dir(), 0o755); err != nil && !errors.Is(err, fs.ErrExist) {
		return CgroupRef{}, fmt.Errorf("splittunnel: cgroup: create %s: %w", c.dir(), err)
	}
	var st unix.Stat_t
	if err := unix.Stat(c.dir(), &st); err != nil {
		return CgroupRef{}, fmt.Errorf("splittunnel: cgroup: stat %s: %w", c.dir(), err)
	}
	return CgroupRef{ID: st.Ino, Level: c.level}, nil
}

// Add moves pid into the exclusion cgroup.
func (c *CgroupV2) Add(pid int) error {
	origin, err := c.currentCgroup(pid)
	if err != nil {
		return fmt.Errorf("splittunnel: cgroup: add %d: %w", pid, err)
	}
	if _, err := c.Ref(); err != nil {
		return err
	}
	if err := writePID(c.dir(), pid); err != nil {
		return fmt.Errorf("splittunnel: cgroup: add %d: %w", pid, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if origin != "/"+c.name {
		c.origins[pid] = origin
	}
	return nil
}

// Restore moves pid back to its original cgroup, or to the root cgroup
// when the original is unknown or gone.
func (c *CgroupV2) Restore(pid int) error {
	c.mu.Lock()
	origin, ok := c.origins[pid]
	delete(c.origins, pid)
	c.mu.Unlock()

	if ok {
		err := writePID(filepath.Join(c.root, origin), pid)
		if err == nil {
			return nil
		}
		c.logger.Debug("original cgroup unavailable, using root", "pid", pid, "cgroup", origin, "error", err)
	}
	if err := writePID(c.root, pid); err != nil {
		return fmt.Errorf("splittunnel: cgroup: restore %d: %w", pid, err)
	}
	return nil
}

// PIDs lists the processes in the exclusion cgroup. Origins of processes
// that have left it are forgotten.
func (c *CgroupV2) PIDs() ([]int, error) {
	data, err := os.ReadFile(filepath.Join(c.dir(), cgroupProcs))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("splittunnel: cgroup: list processes: %w", err)
	}
	pids, err := parsePIDs(data)
	if err != nil {
		return nil, fmt.Errorf("splittunnel: cgroup: list processes: %w", err)
	}

	present := make(map[int]struct{}, len(pids))
	for _, pid := range pids {
		present[pid] = struct{}{}
	}
	c.mu.Lock()
	for pid := range c.origins {
		if _, ok := present[pid]; !ok {
			delete(c.origins, pid)
		}
	}
	c.mu.Unlock()
	return pids, nil
}

// currentCgroup reads the unified hierarchy path of pid.
func (c *CgroupV2) currentCgroup(pid int) (string, error) {
	data, err := os.ReadFile(filepath.Join(procRoot, strconv.Itoa(pid), "cgroup"))
	if err != nil {
		return "", err
	}
	return parseUnifiedCgroup(data)
}

func writePID(dir string, pid int) error {
	return os.WriteFile(filepath.Join(dir, cgroupProcs), []byte(strconv.Itoa(pid)), 0o644)
}

// parseUnifiedCgroup returns the path of the "0::<path>" entry of a
// /proc/<pid>/cgroup file.
func parseUnifiedCgroup(data []byte) (string, error) {
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		if path, ok := strings.CutPrefix(sc.Text(), "0::"); ok {
			return path, nil
		}
	}
	if err := sc.Err(); err != nil {
		return "", err
	}
	return "", errors.New("no cgroup v2 entry")
}

func parsePIDs(data []byte) ([]int, error) {
	var pids []int
	for _, f := range strings.Fields(string(data)) {
		pid, err := strconv.Atoi(f)
		if err != nil {
			return nil, fmt.Errorf("parse pid %q: %w", f, err)
		}
		pids = append(pids, pid)
	}
	return pids, nil
}
