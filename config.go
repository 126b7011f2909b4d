package dryioc

import (
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// RulesConfig is the YAML form of Rules:
//
//	defaultReuse: singleton
//	throwIfDependencyHasShorterReuseLifespan: false
//	autoConcreteTypeResolution: true
//	factorySelector: lastRegistered
//	maxResolutionDepth: 32
//
// Missing keys keep the default rules.
type RulesConfig struct {
	DefaultReuse                             *ReuseValue `yaml:"defaultReuse"`
	ThrowIfDependencyHasShorterReuseLifespan *bool       `yaml:"throwIfDependencyHasShorterReuseLifespan"`
	AutoConcreteTypeResolution               bool        `yaml:"autoConcreteTypeResolution"`
	FactorySelector                          string      `yaml:"factorySelector"`
	MaxResolutionDepth                       int         `yaml:"maxResolutionDepth"`
}

// Apply returns base modified by the configuration.
func (cfg RulesConfig) Apply(base *Rules) (*Rules, error) {
	rules := base
	if rules == nil {
		rules = DefaultRules()
	}

	if cfg.DefaultReuse != nil {
		rules = rules.WithDefaultReuse(cfg.DefaultReuse.Reuse)
	}
	if cfg.ThrowIfDependencyHasShorterReuseLifespan != nil && !*cfg.ThrowIfDependencyHasShorterReuseLifespan {
		rules = rules.WithoutThrowIfDependencyHasShorterReuseLifespan()
	}
	if cfg.AutoConcreteTypeResolution {
		rules = rules.WithAutoConcreteTypeResolution()
	}

	switch strings.ToLower(cfg.FactorySelector) {
	case "", "default":
	case "lastregistered":
		rules = rules.WithFactorySelector(SelectLastRegisteredFactory())
	default:
		return nil, fmt.Errorf("invalid factorySelector %q", cfg.FactorySelector)
	}

	if cfg.MaxResolutionDepth < 0 {
		return nil, fmt.Errorf("invalid maxResolutionDepth %d", cfg.MaxResolutionDepth)
	}
	if cfg.MaxResolutionDepth > 0 {
		rules = rules.WithMaxResolutionDepth(cfg.MaxResolutionDepth)
	}
	return rules, nil
}

// LoadRules reads a RulesConfig from YAML and applies it to the default rules.
func LoadRules(r io.Reader) (*Rules, error) {
	var cfg RulesConfig
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode rules: %w", err)
	}
	return cfg.Apply(DefaultRules())
}

// LoadRulesFile reads the rules from a YAML file.
func LoadRulesFile(path string) (*Rules, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	rules, err := LoadRules(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rules, nil
}
