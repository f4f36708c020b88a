package monitor

import (
	"os"
	"runtime"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/R3E-Network/module_federation/internal/federation/state"
)

// Memory sources accepted by NewSampler.
const (
	SourceHeap = "heap"
	SourceRSS  = "rss"
)

// HeapSampler reports aggregate memory usage of the process in bytes. The
// boolean is false when no reading is available.
type HeapSampler interface {
	Sample() (uint64, bool)
}

// RuntimeSampler reads the Go heap in use.
type RuntimeSampler struct{}

// Sample implements HeapSampler.
func (RuntimeSampler) Sample() (uint64, bool) {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return ms.HeapAlloc, true
}

// ProcessSampler reads the resident set size of a process.
type ProcessSampler struct {
	proc *process.Process
}

// NewProcessSampler creates a sampler for the current process.
func NewProcessSampler() (*ProcessSampler, error) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, err
	}
	return &ProcessSampler{proc: proc}, nil
}

// Sample implements HeapSampler.
func (s *ProcessSampler) Sample() (uint64, bool) {
	info, err := s.proc.MemoryInfo()
	if err != nil || info == nil {
		return 0, false
	}
	return info.RSS, true
}

// SamplerFunc adapts a function to HeapSampler.
type SamplerFunc func() (uint64, bool)

// Sample implements HeapSampler.
func (f SamplerFunc) Sample() (uint64, bool) { return f() }

// NewSampler returns the sampler for source. Unknown sources, and an RSS
// sampler that cannot attach to the process, fall back to the Go heap.
func NewSampler(source string) HeapSampler {
	if source == SourceRSS {
		if s, err := NewProcessSampler(); err == nil {
			return s
		}
	}
	return RuntimeSampler{}
}

// SampleMemory takes one memory reading and divides it evenly over the
// loaded modules. This is an apportioning heuristic; modules share one heap
// and are not measured individually.
func (m *Monitor) SampleMemory() {
	total, ok := m.sampler.Sample()
	if !ok {
		return
	}

	m.mu.Lock()
	var loaded []*Metrics
	for _, mt := range m.metrics {
		if mt.Status == state.LoadStatusLoaded {
			loaded = append(loaded, mt)
		}
	}
	if len(loaded) == 0 {
		m.mu.Unlock()
		return
	}
	share := total / uint64(len(loaded))
	samples := make(map[string]uint64, len(loaded))
	for _, mt := range loaded {
		mt.MemoryUsage = share
		samples[mt.ModuleID] = share
	}
	m.mu.Unlock()

	for id, bytes := range samples {
		m.collector.RecordMemory(id, float64(bytes))
	}
}
