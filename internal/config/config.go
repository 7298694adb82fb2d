// Package config loads memctl's configuration: built-in defaults, merged
// with a TOML file, merged with environment variables, merged with CLI
// flags — in that increasing order of precedence.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// StoreConfig controls the embedded database.
type StoreConfig struct {
	DBPath       string `toml:"db_path"`
	WALMode      bool   `toml:"wal_mode"`
	FTSTokenizer string `toml:"fts_tokenizer"`
}

// PolicyConfig tunes the write-governance rule engine.
type PolicyConfig struct {
	MaxContentLength             int      `toml:"max_content_length"`
	SecretPatternsEnabled        bool     `toml:"secret_patterns_enabled"`
	InjectionPatternsEnabled     bool     `toml:"injection_patterns_enabled"`
	InstructionalContentEnabled  bool     `toml:"instructional_content_enabled"`
	PIIPatternsEnabled           bool     `toml:"pii_patterns_enabled"`
	PromptguardEnabled           bool     `toml:"promptguard_enabled"`
	RequireProvenanceFor         []string `toml:"require_provenance_for"`
	LowConfidenceThreshold       float64  `toml:"low_confidence_threshold"`
	QuarantineExpiryHours        float64  `toml:"quarantine_expiry_hours"`
}

// ConsolidateConfig tunes STM-to-LTM consolidation.
type ConsolidateConfig struct {
	Enabled                bool     `toml:"enabled"`
	STMThreshold           int      `toml:"stm_threshold"`
	ClusterDistanceThreshold float64 `toml:"cluster_distance_threshold"`
	UsageCountForLTM       int      `toml:"usage_count_for_ltm"`
	AutoPromoteTypes       []string `toml:"auto_promote_types"`
	FallbackToDeterministic bool    `toml:"fallback_to_deterministic"`
}

// ProposerConfig controls how an LLM is prompted to emit memory proposals.
type ProposerConfig struct {
	Strategy          string `toml:"strategy"` // "tool", "delimiter", or "both"
	DelimiterOpen     string `toml:"delimiter_open"`
	DelimiterClose    string `toml:"delimiter_close"`
	SystemInstruction string `toml:"system_instruction"`
}

// LoopConfig tunes the bounded recall-answer loop.
type LoopConfig struct {
	MaxIterations     int     `toml:"max_iterations"`
	FixedPointThreshold float64 `toml:"fixed_point_threshold"`
	CycleThreshold    float64 `toml:"cycle_threshold"`
	DefaultBudget     int     `toml:"default_budget"`
}

// GovernanceConfig tunes the MCP-facing guard/rate-limit/audit middleware.
type GovernanceConfig struct {
	MaxWriteBytes           int     `toml:"max_write_bytes"`
	MaxWriteBytesPerMinute  int     `toml:"max_write_bytes_per_minute"`
	MaxImportItems          int     `toml:"max_import_items"`
	WritesPerMinute         float64 `toml:"writes_per_minute"`
	ReadsPerMinute          float64 `toml:"reads_per_minute"`
	BurstFactor             float64 `toml:"burst_factor"`
	MaxProposalsPerTurn     int     `toml:"max_proposals_per_turn"`
}

// Config is the full merged configuration.
type Config struct {
	Store       StoreConfig       `toml:"store"`
	Policy      PolicyConfig      `toml:"policy"`
	Consolidate ConsolidateConfig `toml:"consolidate"`
	Proposer    ProposerConfig    `toml:"proposer"`
	Loop        LoopConfig        `toml:"loop"`
	Governance  GovernanceConfig  `toml:"governance"`
}

// Default returns a Config with every built-in default filled in, matching
// the original system's shipped values.
func Default() *Config {
	return &Config{
		Store: StoreConfig{
			DBPath:       ".memory/memory.db",
			WALMode:      true,
			FTSTokenizer: "unicode61 remove_diacritics 2",
		},
		Policy: PolicyConfig{
			MaxContentLength:            2000,
			SecretPatternsEnabled:       true,
			InjectionPatternsEnabled:    true,
			InstructionalContentEnabled: true,
			PIIPatternsEnabled:          true,
			PromptguardEnabled:          true,
			RequireProvenanceFor:        []string{"mtm", "ltm"},
			LowConfidenceThreshold:      0.3,
			QuarantineExpiryHours:       72,
		},
		Consolidate: ConsolidateConfig{
			Enabled:                  true,
			STMThreshold:             20,
			ClusterDistanceThreshold: 0.3,
			UsageCountForLTM:         5,
			AutoPromoteTypes:         []string{"constraint", "decision", "definition"},
			FallbackToDeterministic:  true,
		},
		Proposer: ProposerConfig{
			Strategy:          "both",
			DelimiterOpen:     "<MEMORY_PROPOSALS_JSON>",
			DelimiterClose:    "</MEMORY_PROPOSALS_JSON>",
			SystemInstruction: "Emit any durable facts, decisions, or constraints worth remembering as a JSON array between the delimiters.",
		},
		Loop: LoopConfig{
			MaxIterations:       6,
			FixedPointThreshold: 0.92,
			CycleThreshold:      0.90,
			DefaultBudget:       800,
		},
		Governance: GovernanceConfig{
			MaxWriteBytes:          65536,
			MaxWriteBytesPerMinute: 524288,
			MaxImportItems:         500,
			WritesPerMinute:        20,
			ReadsPerMinute:         120,
			BurstFactor:            2.0,
			MaxProposalsPerTurn:    5,
		},
	}
}

// Load merges defaults, a TOML file found via findConfigFile, and
// environment variable overrides, in that order.
func Load() (*Config, error) {
	cfg := Default()

	if p := findConfigFile(); p != "" {
		meta, err := toml.DecodeFile(p, cfg)
		if err != nil {
			return nil, fmt.Errorf("parse config %s: %w", p, err)
		}
		warnUnknownKeys(meta, p)
	}

	applyEnv(cfg)
	return cfg, nil
}

// LoadFrom loads configuration starting from an explicit file path instead
// of auto-discovering one.
func LoadFrom(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			meta, err := toml.DecodeFile(path, cfg)
			if err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
			warnUnknownKeys(meta, path)
		}
	}
	applyEnv(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("MEMCTL_DB_PATH"); v != "" {
		cfg.Store.DBPath = v
	}
	if v := os.Getenv("MEMCTL_FTS_TOKENIZER"); v != "" {
		cfg.Store.FTSTokenizer = v
	}
	if v := os.Getenv("MEMCTL_MAX_CONTENT_LENGTH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Policy.MaxContentLength = n
		}
	}
}

// findConfigFile looks for .memctl/config.toml in the current working
// directory, walking up to the filesystem root.
func findConfigFile() string {
	if v := os.Getenv("MEMCTL_CONFIG"); v != "" {
		if _, err := os.Stat(v); err == nil {
			return v
		}
	}
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		p := filepath.Join(dir, ".memctl", "config.toml")
		if _, err := os.Stat(p); err == nil {
			return p
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// ConfigFilePath returns the canonical config file path under root.
func ConfigFilePath(root string) string {
	return filepath.Join(root, ".memctl", "config.toml")
}

// Write serializes cfg as TOML to the config file under root.
func Write(root string, cfg *Config) error {
	path := ConfigFilePath(root)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	var buf bytes.Buffer
	enc := toml.NewEncoder(&buf)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return os.WriteFile(path, buf.Bytes(), 0o600)
}

var configSuggestions = map[string]string{
	"tokenizer":    "fts_tokenizer",
	"db":           "db_path",
	"max_length":   "max_content_length",
	"budget":       "default_budget",
	"iterations":   "max_iterations",
}

func warnUnknownKeys(meta toml.MetaData, path string) {
	undecoded := meta.Undecoded()
	if len(undecoded) == 0 {
		return
	}
	fname := filepath.Base(path)
	for _, key := range undecoded {
		keyStr := key.String()
		last := key[len(key)-1]
		if suggestion, ok := configSuggestions[last]; ok {
			fmt.Fprintf(os.Stderr, "memctl: WARNING: unknown key %q in %s — did you mean %q?\n", keyStr, fname, suggestion)
		} else {
			fmt.Fprintf(os.Stderr, "memctl: WARNING: unknown key %q in %s (ignored)\n", keyStr, fname)
		}
	}
}

// Show renders the effective merged configuration as TOML text.
func Show() (string, error) {
	cfg, err := Load()
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	buf.WriteString("# Effective memctl configuration (merged from all sources)\n\n")
	enc := toml.NewEncoder(&buf)
	if err := enc.Encode(cfg); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// RequireProvenance reports whether tier requires provenance.SourceID to be
// set, per PolicyConfig.RequireProvenanceFor.
func (c *PolicyConfig) RequireProvenance(tier string) bool {
	for _, t := range c.RequireProvenanceFor {
		if strings.EqualFold(t, tier) {
			return true
		}
	}
	return false
}
