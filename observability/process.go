package observability

import (
	"os"
	"whiteboard-relay/domain"

	"github.com/shirou/gopsutil/process"
)

// ProcessProbe reads domain.ProcessStats for the current process.
type ProcessProbe struct {
	proc *process.Process
}

func NewProcessProbe() (*ProcessProbe, error) {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, err
	}
	return &ProcessProbe{proc: p}, nil
}

// Read collects memory, CPU and OS status.
func (p *ProcessProbe) Read() (domain.ProcessStats, error) {
	memInfo, err := p.proc.MemoryInfo()
	if err != nil {
		return domain.ProcessStats{}, err
	}

	cpuPercent, err := p.proc.CPUPercent()
	if err != nil {
		return domain.ProcessStats{}, err
	}

	status, err := p.proc.Status()
	if err != nil {
		return domain.ProcessStats{}, err
	}
	return domain.ProcessStats{
		PID:        domain.PID(p.proc.Pid),
		Status:     domain.ToStatus(status),
		RSSBytes:   memInfo.RSS,
		CPUPercent: cpuPercent,
	}, nil
}
