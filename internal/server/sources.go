package server

import (
	"context"
	"fmt"

	"github.com/morezero/agent-orchestrator/pkg/bootstrap"
	"github.com/morezero/agent-orchestrator/pkg/orchestrator"
	"github.com/morezero/agent-orchestrator/pkg/remote"
)

type addressLister interface {
	ListEnabledAddresses(ctx context.Context) ([]string, error)
}

// addressSource merges, in order, the configured addresses, the seed file's
// enabled agents and the enabled rows of the remote_agents table. A catalog
// failure still yields the other addresses.
func addressSource(configured []string, seed *bootstrap.SeedFile, lister addressLister) orchestrator.AddressSource {
	return func(ctx context.Context) ([]string, error) {
		lists := [][]string{configured, seed.EnabledAddresses()}
		if lister == nil {
			return remote.NormalizeAddresses(lists...), nil
		}
		stored, err := lister.ListEnabledAddresses(ctx)
		if err != nil {
			return remote.NormalizeAddresses(lists...), fmt.Errorf("%s - remote agent catalog: %w", logPrefix, err)
		}
		return remote.NormalizeAddresses(append(lists, stored)...), nil
	}
}
