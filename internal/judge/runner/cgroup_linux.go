//go:build linux

package runner

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gosimple/slug"
)

// runCgroup is the per-run child of Config.CgroupRoot. Processes enter it at
// clone time, so nothing forked by the run can start outside it.
type runCgroup struct {
	path string
	dir  *os.File
}

func createRunCgroup(root, profile string) (*runCgroup, error) {
	if root == "" {
		return nil, fmt.Errorf("cgroup root is required")
	}
	name := fmt.Sprintf("run-%s-%d", slug.Make(profile), time.Now().UnixNano())
	path := filepath.Join(root, name)
	if err := os.Mkdir(path, 0o750); err != nil {
		return nil, fmt.Errorf("create cgroup: %w", err)
	}
	return &runCgroup{path: path}, nil
}

func (c *runCgroup) applyLimits(maxProcesses, memoryBytes uint64) error {
	pids := "max"
	if maxProcesses > 0 {
		pids = strconv.FormatUint(maxProcesses, 10)
	}
	if err := c.write("pids.max", pids); err != nil {
		return err
	}
	if memoryBytes > 0 {
		if err := c.write("memory.max", strconv.FormatUint(memoryBytes, 10)); err != nil {
			return err
		}
	}
	return nil
}

// open returns the directory fd handed to clone3 through SysProcAttr.CgroupFD.
func (c *runCgroup) open() (int, error) {
	dir, err := os.Open(c.path)
	if err != nil {
		return -1, fmt.Errorf("open cgroup: %w", err)
	}
	c.dir = dir
	return int(dir.Fd()), nil
}

// kill terminates every process in the cgroup, including ones that left the
// process group with setsid.
func (c *runCgroup) kill() error {
	return c.write("cgroup.kill", "1")
}

// remove retries briefly: rmdir reports EBUSY until killed members are reaped.
func (c *runCgroup) remove() error {
	if c.dir != nil {
		c.dir.Close()
	}
	var err error
	for attempt := 0; attempt < 20; attempt++ {
		if err = os.RemoveAll(c.path); err == nil {
			return nil
		}
		time.Sleep(10 * time.Millisecond)
	}
	return fmt.Errorf("remove cgroup: %w", err)
}

func (c *runCgroup) write(name, value string) error {
	if err := os.WriteFile(filepath.Join(c.path, name), []byte(value), 0o640); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}
