package agent

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// agentYAML is the YAML structure for agent definitions.
type agentYAML struct {
	ID           string     `yaml:"id"`
	Name         string     `yaml:"name"`
	Icon         string     `yaml:"icon"`
	Placeholders []string   `yaml:"placeholders"`
	Greeting     string     `yaml:"greeting"`
	Mode         string     `yaml:"mode"`
	TaskType     string     `yaml:"task_type"`
	AgentContext string     `yaml:"agent_context"`
	Delay        delayYAML  `yaml:"delay"`
	Rules        []ruleYAML `yaml:"rules"`
	Fallback     string     `yaml:"fallback"`
}

type delayYAML struct {
	Min string `yaml:"min"`
	Max string `yaml:"max"`
}

// ruleYAML matches on any keyword, or on all keywords when "all" is set.
type ruleYAML struct {
	Any      []string `yaml:"any"`
	All      []string `yaml:"all"`
	Response string   `yaml:"response"`
}

// LoadDir loads all agent definitions from a directory, in file name order.
func LoadDir(dir string) (*Registry, error) {
	registry := NewRegistry()

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read agents directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()
		if !strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml") {
			continue
		}

		def, err := LoadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("failed to load agent %s: %w", name, err)
		}

		if err := registry.Register(def); err != nil {
			return nil, fmt.Errorf("failed to register agent %s: %w", name, err)
		}
	}

	return registry, nil
}

// LoadFile loads a single agent definition from a file.
func LoadFile(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	return Parse(data)
}

// Parse parses agent YAML content into a Definition.
func Parse(data []byte) (*Definition, error) {
	var raw agentYAML
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	def := &Definition{
		ID:           raw.ID,
		Name:         raw.Name,
		Icon:         raw.Icon,
		Placeholders: raw.Placeholders,
		Greeting:     raw.Greeting,
		Mode:         Mode(raw.Mode),
		TaskType:     raw.TaskType,
		AgentContext: raw.AgentContext,
		Fallback:     raw.Fallback,
	}
	if def.Mode == "" {
		def.Mode = ModeCanned
	}

	var err error
	if def.Delay.Min, err = parseDuration(raw.Delay.Min); err != nil {
		return nil, fmt.Errorf("delay.min: %w", err)
	}
	if def.Delay.Max, err = parseDuration(raw.Delay.Max); err != nil {
		return nil, fmt.Errorf("delay.max: %w", err)
	}
	if def.Delay.Max == 0 {
		def.Delay.Max = def.Delay.Min
	}

	for i, r := range raw.Rules {
		switch {
		case r.Response == "":
			return nil, fmt.Errorf("rule %d: response is required", i)
		case len(r.All) > 0:
			def.Rules = append(def.Rules, AllKeywordsRule(r.Response, r.All...))
		case len(r.Any) > 0:
			def.Rules = append(def.Rules, KeywordRule(r.Response, r.Any...))
		default:
			return nil, fmt.Errorf("rule %d: needs \"any\" or \"all\" keywords", i)
		}
	}

	if err := def.Validate(); err != nil {
		return nil, err
	}
	return def, nil
}

func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	return time.ParseDuration(s)
}
