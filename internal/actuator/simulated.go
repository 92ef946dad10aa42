package actuator

import (
	"fmt"
	"sync"

	"git.sr.ht/~spc/go-log"
)

// SimulatedPin stands in for a relay on hosts without GPIO hardware. It only
// logs transitions.
type SimulatedPin struct {
	mu     sync.Mutex
	active bool
	logger *log.Logger
}

// NewSimulatedPin returns an inactive SimulatedPin.
func NewSimulatedPin() *SimulatedPin {
	return &SimulatedPin{
		logger: log.New(log.Writer(), fmt.Sprintf("%v[simulated-relay] ", log.Prefix()), log.Flags(), log.CurrentLevel()),
	}
}

func (p *SimulatedPin) Set(active bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if active != p.active {
		if active {
			p.logger.Info("lock released")
		} else {
			p.logger.Info("lock engaged")
		}
	}
	p.active = active
	return nil
}

// Active reports the current simulated level.
func (p *SimulatedPin) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

func (p *SimulatedPin) Close() error { return nil }
