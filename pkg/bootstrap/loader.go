package bootstrap

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
)

const logPrefix = "bootstrap:loader"

// EnvSeedFile names the environment variable consulted after explicit paths.
const EnvSeedFile = "REMOTE_AGENTS_FILE"

// LoadSeedFile loads the seed file from the first readable path. It tries any
// paths passed in, then REMOTE_AGENTS_FILE, then config/remote_agents.json and
// remote_agents.json. When none is readable the empty default is returned.
// A file that exists but does not parse is an error.
func LoadSeedFile(paths ...string) (*SeedFile, error) {
	all := make([]string, 0, len(paths)+3)
	for _, p := range paths {
		if p != "" {
			all = append(all, p)
		}
	}
	if envPath := os.Getenv(EnvSeedFile); envPath != "" {
		all = append(all, envPath)
	}
	all = append(all, "config/remote_agents.json", "remote_agents.json")

	for _, p := range all {
		data, err := os.ReadFile(p)
		if err != nil {
			continue
		}

		f, err := ParseSeedFile(data)
		if err != nil {
			return nil, fmt.Errorf("%s - %s: %w", logPrefix, p, err)
		}

		slog.Info(fmt.Sprintf("%s - Loaded %d agent address(es) from %s", logPrefix, len(f.Agents), p))
		return f, nil
	}

	slog.Info(fmt.Sprintf("%s - No seed file found, using empty default", logPrefix))
	return DefaultSeedFile(), nil
}

// ParseSeedFile decodes and validates seed file content.
func ParseSeedFile(data []byte) (*SeedFile, error) {
	var f SeedFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("invalid seed file: %w", err)
	}
	for i, a := range f.Agents {
		addr := strings.TrimSpace(a.Address)
		if addr == "" {
			return nil, fmt.Errorf("agents[%d]: address is required", i)
		}
		if !strings.HasPrefix(addr, "http://") && !strings.HasPrefix(addr, "https://") {
			return nil, fmt.Errorf("agents[%d]: address %q must be http(s)", i, addr)
		}
	}
	return &f, nil
}

// DefaultSeedFile returns the empty seed file used when none is configured.
func DefaultSeedFile() *SeedFile {
	return &SeedFile{
		Name:    "agent-orchestrator-seed",
		Version: "1.0.0",
		Agents:  []SeedAgent{},
	}
}

// MergeSeedFiles overlays override onto base, keyed by normalized address.
// Entries only in override are appended in their order.
func MergeSeedFiles(base, override *SeedFile) *SeedFile {
	merged := *base
	merged.Agents = append([]SeedAgent(nil), base.Agents...)
	if override == nil {
		return &merged
	}

	index := make(map[string]int, len(merged.Agents))
	for i, a := range merged.Agents {
		index[normalize(a.Address)] = i
	}
	for _, a := range override.Agents {
		key := normalize(a.Address)
		if i, ok := index[key]; ok {
			merged.Agents[i] = a
			continue
		}
		index[key] = len(merged.Agents)
		merged.Agents = append(merged.Agents, a)
	}
	if override.Name != "" {
		merged.Name = override.Name
	}
	if override.Version != "" {
		merged.Version = override.Version
	}
	return &merged
}

func normalize(address string) string {
	return strings.TrimRight(strings.TrimSpace(address), "/")
}
