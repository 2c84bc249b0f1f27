package incidents

import (
	"fmt"
	"time"
)

// CheckResolution runs one auto-resolution pass over the open incidents.
// An incident resolves automatically when the overall system is healthy
// and the incident is older than HealthyResolveAfter, or when no
// response-action activity has happened for IdleResolveAfter. Called on a
// schedule by the engine.
func (m *Manager) CheckResolution() {
	if !m.config.Enabled {
		return
	}

	healthy := false
	if m.health != nil {
		healthy = m.health.GetOverallHealth().IsHealthy()
	}

	now := time.Now()

	type resolution struct {
		id   string
		note string
	}
	var due []resolution

	m.mu.RLock()
	for _, inc := range m.incidents {
		if inc.Status != StatusOpen {
			continue
		}

		if healthy && now.Sub(inc.CreatedAt) > m.config.HealthyResolveAfter {
			due = append(due, resolution{
				id:   inc.ID,
				note: fmt.Sprintf("system healthy for incident older than %s", m.config.HealthyResolveAfter),
			})
			continue
		}

		if now.Sub(inc.lastActivity) > m.config.IdleResolveAfter {
			due = append(due, resolution{
				id:   inc.ID,
				note: fmt.Sprintf("no response activity for %s", m.config.IdleResolveAfter),
			})
		}
	}
	m.mu.RUnlock()

	for _, r := range due {
		if err := m.Resolve(r.id, ResolutionAutomatic, r.note); err != nil {
			m.logger.WithError(err).WithField("incident_id", r.id).Warn("Auto-resolution failed")
		}
	}
}
