package azure

import (
	"context"
	"fmt"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/arm"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/containerinstance/armcontainerinstance/v2"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/resources/armresources"
	"github.com/sirupsen/logrus"
	"k8s.io/utils/ptr"

	"github.com/melih/lighthouse-sandbox/internal/core/domain"
	"github.com/melih/lighthouse-sandbox/internal/core/ports"
)

const (
	// SessionTag marks resource groups created by this service.
	SessionTag = "lighthouse.session"
	// ResourceGroupTag records the owning resource group on a container group.
	ResourceGroupTag = "lighthouse.resource-group"

	defaultPollInterval = 5 * time.Second
)

// Adapter implements ports.ResourceProvider using the Azure Resource Manager SDK.
// The clients are built once and shared by all requests.
type Adapter struct {
	resourceGroups  *armresources.ResourceGroupsClient
	containerGroups *armcontainerinstance.ContainerGroupsClient
	containers      *armcontainerinstance.ContainersClient
	pollInterval    time.Duration
	log             logrus.FieldLogger
}

var _ ports.ResourceProvider = (*Adapter)(nil)

// NewAdapter creates the ARM clients for a subscription.
func NewAdapter(subscriptionID string, credential azcore.TokenCredential, options *arm.ClientOptions, log logrus.FieldLogger) (*Adapter, error) {
	resourceGroups, err := armresources.NewResourceGroupsClient(subscriptionID, credential, options)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource groups client: %w", err)
	}
	factory, err := armcontainerinstance.NewClientFactory(subscriptionID, credential, options)
	if err != nil {
		return nil, fmt.Errorf("failed to create container instance client factory: %w", err)
	}
	return &Adapter{
		resourceGroups:  resourceGroups,
		containerGroups: factory.NewContainerGroupsClient(),
		containers:      factory.NewContainersClient(),
		pollInterval:    defaultPollInterval,
		log:             log.WithField("component", "azure"),
	}, nil
}

// ResourceGroupExists reports whether the named resource group exists.
func (a *Adapter) ResourceGroupExists(ctx context.Context, name string) (bool, error) {
	resp, err := a.resourceGroups.CheckExistence(ctx, name, nil)
	if err != nil {
		if IsNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check resource group %q: %w", name, err)
	}
	return resp.Success, nil
}

// CreateResourceGroup creates the resource group in location.
func (a *Adapter) CreateResourceGroup(ctx context.Context, name, location string) error {
	_, err := a.resourceGroups.CreateOrUpdate(ctx, name, armresources.ResourceGroup{
		Location: to.Ptr(location),
		Tags: map[string]*string{
			SessionTag: to.Ptr("true"),
		},
	}, nil)
	if err != nil {
		return fmt.Errorf("failed to create resource group %q: %w", name, err)
	}
	a.log.WithFields(logrus.Fields{"resource_group": name, "location": location}).Debug("Resource group created")
	return nil
}

// DeleteResourceGroup deletes the resource group and waits for the operation to complete.
func (a *Adapter) DeleteResourceGroup(ctx context.Context, name string) error {
	poller, err := a.resourceGroups.BeginDelete(ctx, name, nil)
	if err != nil {
		return fmt.Errorf("failed to delete resource group %q: %w", name, err)
	}
	if _, err := poller.PollUntilDone(ctx, &runtime.PollUntilDoneOptions{Frequency: a.pollInterval}); err != nil {
		return fmt.Errorf("failed waiting for resource group %q to finish deleting: %w", name, err)
	}
	a.log.WithField("resource_group", name).Debug("Resource group deleted")
	return nil
}

// CreateContainerGroup creates the container group and waits for it to be provisioned.
func (a *Adapter) CreateContainerGroup(ctx context.Context, spec ports.ContainerGroupSpec) error {
	poller, err := a.containerGroups.BeginCreateOrUpdate(ctx, spec.ResourceGroup, spec.Name, buildContainerGroup(spec), nil)
	if err != nil {
		return fmt.Errorf("failed to create container group %q: %w", spec.Name, err)
	}
	if _, err := poller.PollUntilDone(ctx, &runtime.PollUntilDoneOptions{Frequency: a.pollInterval}); err != nil {
		return fmt.Errorf("failed waiting for container group %q to be created: %w", spec.Name, err)
	}
	a.log.WithFields(logrus.Fields{
		"resource_group":  spec.ResourceGroup,
		"container_group": spec.Name,
	}).Debug("Container group created")
	return nil
}

// ListContainerGroups returns every container group in the subscription.
func (a *Adapter) ListContainerGroups(ctx context.Context) ([]domain.ContainerGroup, error) {
	var result []domain.ContainerGroup
	pager := a.containerGroups.NewListPager(nil)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed listing container groups: %w", err)
		}
		for _, cg := range page.Value {
			if cg == nil || cg.Name == nil {
				continue
			}
			group := domain.ContainerGroup{
				Name:          *cg.Name,
				ResourceGroup: ptr.Deref(cg.Tags[ResourceGroupTag], ""),
			}
			if cg.Properties != nil {
				group.State = ptr.Deref(cg.Properties.ProvisioningState, "")
				if cg.Properties.IPAddress != nil {
					group.FQDN = ptr.Deref(cg.Properties.IPAddress.Fqdn, "")
				}
			}
			result = append(result, group)
		}
	}
	return result, nil
}

// ContainerLogs returns the log output of the session container.
func (a *Adapter) ContainerLogs(ctx context.Context, names domain.SessionNames, tail int) (string, error) {
	var opts *armcontainerinstance.ContainersClientListLogsOptions
	if tail > 0 {
		opts = &armcontainerinstance.ContainersClientListLogsOptions{Tail: to.Ptr(int32(tail))}
	}
	resp, err := a.containers.ListLogs(ctx, names.ResourceGroup, names.ContainerGroup, names.Container, opts)
	if err != nil {
		return "", fmt.Errorf("failed to fetch logs of container %q: %w", names.Container, err)
	}
	return ptr.Deref(resp.Content, ""), nil
}
