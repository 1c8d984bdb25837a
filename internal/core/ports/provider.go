package ports

import (
	"context"

	"github.com/melih/lighthouse-sandbox/internal/core/domain"
)

// ContainerSpec describes the single container of a session.
type ContainerSpec struct {
	Name       string
	Image      string
	CPU        float64
	MemoryInGB float64
	Env        map[string]string
	Ports      []int
}

// ContainerGroupSpec describes a container group with a public IP.
type ContainerGroupSpec struct {
	Name          string
	ResourceGroup string
	Location      string
	DNSLabel      string
	Container     ContainerSpec
}

// ResourceProvider is the remote inventory sessions live in. Create and
// delete calls block until the provider reports a terminal state.
// This interface lets the lifecycle logic run against Azure or a fake
// without change.
type ResourceProvider interface {
	ResourceGroupExists(ctx context.Context, name string) (bool, error)
	CreateResourceGroup(ctx context.Context, name, location string) error
	DeleteResourceGroup(ctx context.Context, name string) error
	CreateContainerGroup(ctx context.Context, spec ContainerGroupSpec) error
	ListContainerGroups(ctx context.Context) ([]domain.ContainerGroup, error)
	ContainerLogs(ctx context.Context, names domain.SessionNames, tail int) (string, error)
}
