// Copyright 2025 Certen Protocol
//
// Configuration Loader
//
// This package loads the Speculator/Chain's runtime configuration from
// YAML files with environment variable substitution, in the structural
// style of the teacher's AnchorConfig loader (nested settings structs
// with yaml: tags, ${VAR_NAME} substitution before parsing).

package config

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// Config is the top-level settings document for cmd/speculatord.
type Config struct {
	Environment string `yaml:"environment"`

	Capability NetworkCapability `yaml:"capability"`
	Storage    StorageSettings   `yaml:"storage"`
	Logging    LoggingSettings   `yaml:"logging"`
}

// NetworkCapability is the capability set spec.md §9's Open Question
// resolution describes: "a capability set... passed as a configuration
// value, not inheritance." It pins the constants the Speculator, Merkle
// Reconciler, and Chain all need to agree on for two nodes to produce
// identical roots.
type NetworkCapability struct {
	// NetworkID identifies the network (spec.md §6's header metadata).
	// cmd/speculatord logs it at startup; it is not passed to the Chain,
	// and headers built by ProposeBlock carry NetworkID 0.
	NetworkID uint16 `yaml:"network_id"`

	// FieldType names the scalar field backing every digest (informational
	// only; pkg/field currently hardcodes BLS12-381 via gnark-crypto).
	FieldType string `yaml:"field_type"`

	// HashFunction names the Merkle pair-hash selector in use. Validate
	// accepts only "bhp" (matching spec.md's "BHP Merkle tree"
	// language); pkg/field computes every hash with a SHA-256 stand-in
	// reduced into the field, not an actual BHP hash.
	HashFunction string `yaml:"hash_function"`

	// BlockTreeDepth must match pkg/merkle.BlockTreeDepth (32); carried
	// here so a mismatched peer is caught at config-load time rather
	// than at the first divergent block proof.
	BlockTreeDepth int `yaml:"block_tree_depth"`

	// MaxMappingsPerProgram is the configured bound on a single Deploy
	// transaction's mapping count. It is loaded with the capability set
	// only: no component reads it, and deployments are not checked
	// against it.
	MaxMappingsPerProgram int `yaml:"max_mappings_per_program"`

	// MaxBatchSize is the configured bound on how many transactions one
	// ProposeBlock call takes. It is loaded with the capability set
	// only: ProposeBlock does not read it and does not limit batch size.
	MaxBatchSize int `yaml:"max_batch_size"`
}

// StorageSettings configures the KV Store and Chain store backends.
type StorageSettings struct {
	// Backend selects the cometbft-db driver: "memdb" or "goleveldb".
	Backend string `yaml:"backend"`
	// Path is the on-disk directory goleveldb opens; unused for memdb.
	Path string `yaml:"path"`
}

// LoggingSettings configures pkg/obslog.
type LoggingSettings struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// DefaultCapability is the reference network's capability set, matching
// pkg/merkle's compiled-in constants.
func DefaultCapability() NetworkCapability {
	return NetworkCapability{
		NetworkID:             0,
		FieldType:             "bls12-381",
		HashFunction:          "bhp",
		BlockTreeDepth:        32,
		MaxMappingsPerProgram: 64,
		MaxBatchSize:          1024,
	}
}

// Default returns a Config usable out of the box for a single-node
// in-memory deployment.
func Default() *Config {
	return &Config{
		Environment: "development",
		Capability:  DefaultCapability(),
		Storage:     StorageSettings{Backend: "memdb"},
		Logging:     LoggingSettings{Level: "info", Format: "text", Output: "stdout"},
	}
}

// envVarPattern matches ${VAR_NAME} or ${VAR_NAME:-default}.
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

func substituteEnvVars(content string) string {
	return envVarPattern.ReplaceAllStringFunc(content, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultValue := ""
		if len(groups) >= 4 {
			defaultValue = groups[3]
		}
		if value := os.Getenv(varName); value != "" {
			return value
		}
		return defaultValue
	})
}

// Load reads and parses a Config from a YAML file, substituting
// ${VAR_NAME} environment references before parsing.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	expanded := substituteEnvVars(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks a Config's capability set against what pkg/merkle and
// pkg/chain actually implement, catching a misconfigured peer before it
// can start speculating with an unexpected block-tree depth.
func (c *Config) Validate() error {
	if c.Capability.BlockTreeDepth != 32 {
		return fmt.Errorf("config: block_tree_depth %d is not supported (pkg/merkle.BlockTree is fixed at depth 32)", c.Capability.BlockTreeDepth)
	}
	if c.Capability.HashFunction != "bhp" {
		return fmt.Errorf("config: hash_function %q is not supported (only \"bhp\" is implemented)", c.Capability.HashFunction)
	}
	switch c.Storage.Backend {
	case "memdb", "goleveldb":
	default:
		return fmt.Errorf("config: storage.backend %q is not supported (use \"memdb\" or \"goleveldb\")", c.Storage.Backend)
	}
	return nil
}
