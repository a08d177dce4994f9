package agent

import (
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"citydir/internal/model"
)

// Sim is a minimal stand-in simulation: population grows while it runs and a
// handful of text commands control it. Real cities implement the same command
// port contract in their own process.
type Sim struct {
	name string

	mu         sync.Mutex
	running    bool
	elapsed    time.Duration
	base       uint32
	population uint32
	growth     uint32
}

// NewSim creates a running simulation with an initial population.
func NewSim(name string, population, growthPerSec uint32) *Sim {
	return &Sim{
		name:       name,
		running:    true,
		base:       population,
		population: population,
		growth:     growthPerSec,
	}
}

// Step advances the simulation by d when it is running.
func (s *Sim) Step(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running || d <= 0 {
		return
	}
	s.elapsed += d
	s.population = grownPopulation(s.base, s.growth, s.elapsed)
}

// grownPopulation is base plus growth per whole second of elapsed run time,
// capped at the largest uint32.
func grownPopulation(base, growth uint32, elapsed time.Duration) uint32 {
	total := uint64(base) + uint64(growth)*uint64(elapsed/time.Second)
	if total > math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(total)
}

// Telemetry returns the current snapshot.
func (s *Sim) Telemetry() model.Telemetry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return model.Telemetry{
		Running:    s.running,
		Elapsed:    s.elapsed.Seconds(),
		Population: s.population,
	}
}

// Handle answers a relayed command. Unknown commands get no reply.
func (s *Sim) Handle(command string) string {
	cmd := strings.ToLower(strings.TrimSpace(command))

	s.mu.Lock()
	defer s.mu.Unlock()
	switch cmd {
	case "hello":
		return "hello from " + s.name
	case "ping":
		return "pong"
	case "status":
		return fmt.Sprintf("running=%t elapsed=%.0f population=%d", s.running, s.elapsed.Seconds(), s.population)
	case "pause":
		s.running = false
		return "paused"
	case "resume":
		s.running = true
		return "resumed"
	}
	return ""
}
