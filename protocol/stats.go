package protocol

import "math"

// Memory is a JVM memory pool snapshot, in bytes.
type Memory struct {
	Init      int64 `json:"init"`
	Max       int64 `json:"max"`
	Committed int64 `json:"committed"`
	Used      int64 `json:"used"`
}

// Stats is the periodic node health report. Each report replaces the last.
type Stats struct {
	Memory struct {
		HeapUsed    Memory `json:"heap_used"`
		NonHeapUsed Memory `json:"non_heap_used"`
	} `json:"memory"`
	CPU struct {
		Cores       int     `json:"cores"`
		SystemLoad  float64 `json:"system_load"`
		ProcessLoad float64 `json:"process_load"`
	} `json:"cpu"`
	Threads struct {
		Running      int `json:"running"`
		Daemon       int `json:"daemon"`
		Peak         int `json:"peak"`
		TotalStarted int `json:"total_started"`
	} `json:"threads"`
	Players struct {
		Active int `json:"active"`
		Total  int `json:"total"`
	} `json:"players"`
}

func (*Stats) Op() Op { return OpStats }

// Penalty scores how loaded the node is; lower is better.
func (s *Stats) Penalty() float64 {
	if s == nil {
		return 0
	}
	load := s.CPU.SystemLoad
	if s.CPU.Cores > 0 && load > 1 {
		load /= float64(s.CPU.Cores)
	}
	cpu := math.Pow(1.05, 100*load)*10 - 10
	return float64(s.Players.Active) + cpu
}
