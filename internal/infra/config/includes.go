package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"coral-agents/internal/domain"
)

const maxIncludeDepth = 10

// includeSet accumulates what a config file's includes contribute. Every
// section except agents overlays the config in include order. Agents are
// keyed by capability instead: each capability may be defined by at most one
// included file, and the main file's own agents take precedence over all of
// them.
type includeSet struct {
	visited map[string]bool   // absolute paths loaded so far, root included
	agents  []AgentConfig     // included agents in first-seen order
	owner   map[string]string // capability -> file that defined it
}

func newIncludeSet(root string) *includeSet {
	return &includeSet{
		visited: map[string]bool{root: true},
		owner:   make(map[string]string),
	}
}

// load expands patterns relative to dir and applies each matched file to cfg.
func (s *includeSet) load(cfg *Config, patterns []string, dir string, depth int) error {
	if len(patterns) == 0 {
		return nil
	}
	if depth > maxIncludeDepth {
		return fmt.Errorf("config includes: max depth %d exceeded", maxIncludeDepth)
	}
	for _, pattern := range patterns {
		paths, err := expandInclude(pattern, dir)
		if err != nil {
			return err
		}
		for _, p := range paths {
			if err := s.apply(cfg, p, depth+1); err != nil {
				return err
			}
		}
	}
	return nil
}

// apply overlays one included file onto cfg, collects its agents and follows
// its own includes.
func (s *includeSet) apply(cfg *Config, path string, depth int) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("config includes: abs path %q: %w", path, err)
	}
	if s.visited[abs] {
		return fmt.Errorf("config includes: circular include detected for %q", abs)
	}
	s.visited[abs] = true

	if err := validatePermissions(abs); err != nil {
		return fmt.Errorf("config includes: %w", err)
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return fmt.Errorf("config includes: read %q: %w", abs, err)
	}
	if len(data) == 0 {
		return nil
	}

	cfg.Agents, cfg.Includes = nil, nil
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("config includes: parse %q: %w", abs, err)
	}
	agents, nested := cfg.Agents, cfg.Includes
	cfg.Agents, cfg.Includes = nil, nil

	if err := s.addAgents(agents, abs); err != nil {
		return err
	}
	return s.load(cfg, nested, filepath.Dir(abs), depth)
}

func (s *includeSet) addAgents(agents []AgentConfig, source string) error {
	for _, a := range agents {
		key := capabilityKey(a.Capability)
		if prev, dup := s.owner[key]; dup {
			return domain.NewSubSystemError("config", "config.includes", domain.ErrDuplicate,
				fmt.Sprintf("capability %q in %s already defined in %s", a.Capability, source, prev))
		}
		s.owner[key] = source
		s.agents = append(s.agents, a)
	}
	return nil
}

// mergeAgents returns the main file's agents followed by the included agents
// for capabilities the main file does not define.
func (s *includeSet) mergeAgents(main []AgentConfig) []AgentConfig {
	if len(s.agents) == 0 {
		return main
	}
	defined := make(map[string]bool, len(main))
	for _, a := range main {
		defined[capabilityKey(a.Capability)] = true
	}
	merged := append([]AgentConfig(nil), main...)
	for _, a := range s.agents {
		if !defined[capabilityKey(a.Capability)] {
			merged = append(merged, a)
		}
	}
	return merged
}

// capabilityKey normalizes a configured capability. Unknown values are kept
// verbatim so Validate can report them.
func capabilityKey(raw string) string {
	raw = strings.TrimSpace(raw)
	if c, err := domain.ParseCapability(raw); err == nil {
		return string(c)
	}
	return raw
}

// expandInclude resolves pattern against dir. Literal paths are returned even
// when missing so the read reports it; a glob without matches yields nothing.
// Paths outside dir are rejected.
func expandInclude(pattern, dir string) ([]string, error) {
	if !filepath.IsAbs(pattern) {
		pattern = filepath.Join(dir, pattern)
	}
	pattern = filepath.Clean(pattern)

	if rel, err := filepath.Rel(dir, pattern); err == nil && strings.HasPrefix(rel, "..") {
		return nil, fmt.Errorf("config includes: path %q escapes config directory", pattern)
	}

	if !strings.ContainsAny(pattern, "*?[") {
		return []string{pattern}, nil
	}
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("config includes: glob %q: %w", pattern, err)
	}
	return matches, nil
}
