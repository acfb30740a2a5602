// Package bootstrap loads the remote agent seed file: the list of discovery
// addresses an installation starts with.
package bootstrap

import "github.com/morezero/agent-orchestrator/pkg/remote"

// SeedAgent is one discovery address in the seed file.
type SeedAgent struct {
	Address string `json:"address"`
	// Enabled defaults to true when omitted.
	Enabled *bool  `json:"enabled,omitempty"`
	Note    string `json:"note,omitempty"`
}

// IsEnabled reports whether the entry should be resolved.
func (a SeedAgent) IsEnabled() bool {
	return a.Enabled == nil || *a.Enabled
}

// SeedFile is the root of the seed file.
type SeedFile struct {
	Name        string      `json:"name"`
	Version     string      `json:"version"`
	Description string      `json:"description,omitempty"`
	Agents      []SeedAgent `json:"agents"`
}

// EnabledAddresses returns the normalized addresses of enabled entries.
func (f *SeedFile) EnabledAddresses() []string {
	if f == nil {
		return []string{}
	}
	raw := make([]string, 0, len(f.Agents))
	for _, a := range f.Agents {
		if a.IsEnabled() {
			raw = append(raw, a.Address)
		}
	}
	return remote.NormalizeAddresses(raw)
}
