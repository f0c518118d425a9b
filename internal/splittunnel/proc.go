package splittunnel

import (
	"context"
	"fmt"
	"strings"

	"github.com/shirou/gopsutil/v3/common"
	"github.com/shirou/gopsutil/v3/process"
)

// ProcessTable lists running processes through gopsutil.
type ProcessTable struct {
	// ProcRoot overrides the proc mount point. Empty uses the host default.
	ProcRoot string
}

// Processes returns every process whose executable can be resolved.
// Kernel threads and processes that exit during the scan are skipped.
func (t ProcessTable) Processes() ([]Process, error) {
	ctx := context.Background()
	if t.ProcRoot != "" {
		ctx = context.WithValue(ctx, common.EnvKey, common.EnvMap{common.HostProcEnvKey: t.ProcRoot})
	}

	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("splittunnel: list processes: %w", err)
	}

	out := make([]Process, 0, len(procs))
	for _, p := range procs {
		exe, err := p.ExeWithContext(ctx)
		if err != nil || exe == "" {
			continue
		}
		out = append(out, Process{PID: int(p.Pid), Exe: strings.TrimSuffix(exe, " (deleted)")})
	}
	return out, nil
}
