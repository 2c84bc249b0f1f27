package catalog

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/pulseguard/pulseguard/internal/core/escalation"
	"github.com/pulseguard/pulseguard/internal/core/incidents"
	"github.com/pulseguard/pulseguard/internal/core/notify"
	"github.com/pulseguard/pulseguard/internal/core/rules"
)

// Definitions is the static rule/channel/playbook catalog loaded at
// startup from a single YAML file.
type Definitions struct {
	Rules           []rules.AlertRule          `yaml:"rules"`
	Channels        []notify.ChannelConfig     `yaml:"channels"`
	EscalationRules []escalation.Rule          `yaml:"escalation_rules"`
	Playbooks       []incidents.Playbook       `yaml:"playbooks"`
	Actions         []incidents.ResponseAction `yaml:"actions"`
}

// Load reads and decodes the definitions file. Unknown fields are
// rejected so typos in the catalog surface at startup instead of
// silently disabling behavior.
func Load(path string) (*Definitions, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read definitions file: %w", err)
	}

	var defs Definitions
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&defs); err != nil {
		return nil, fmt.Errorf("failed to parse definitions file %s: %w", path, err)
	}

	if err := defs.Validate(); err != nil {
		return nil, err
	}
	return &defs, nil
}

// Validate cross-checks the catalog: rule and action shapes, duplicate
// ids, and playbook references to actions that exist.
func (d *Definitions) Validate() error {
	seenRules := make(map[string]bool, len(d.Rules))
	for i := range d.Rules {
		r := &d.Rules[i]
		if err := r.Validate(); err != nil {
			return err
		}
		if seenRules[r.ID] {
			return fmt.Errorf("duplicate rule id %q", r.ID)
		}
		seenRules[r.ID] = true
	}

	for i := range d.Channels {
		if err := d.Channels[i].Validate(); err != nil {
			return err
		}
	}

	for i := range d.EscalationRules {
		if err := d.EscalationRules[i].Validate(); err != nil {
			return err
		}
	}

	actionIDs := make(map[string]bool, len(d.Actions))
	for i := range d.Actions {
		a := &d.Actions[i]
		if err := a.Validate(); err != nil {
			return err
		}
		if actionIDs[a.ID] {
			return fmt.Errorf("duplicate action id %q", a.ID)
		}
		actionIDs[a.ID] = true
	}

	for i := range d.Playbooks {
		p := &d.Playbooks[i]
		if p.ID == "" {
			return fmt.Errorf("playbook missing id")
		}
		for _, actionID := range p.ActionIDs {
			if !actionIDs[actionID] {
				return fmt.Errorf("playbook %s references unknown action %q", p.ID, actionID)
			}
		}
	}

	return nil
}
