package azure

import (
	"sort"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/containerinstance/armcontainerinstance/v2"

	"github.com/melih/lighthouse-sandbox/internal/core/ports"
)

// buildContainerGroup maps a session spec onto a Linux container group with
// a public IP, one TCP mapping per port and the spec's DNS label.
func buildContainerGroup(spec ports.ContainerGroupSpec) armcontainerinstance.ContainerGroup {
	c := spec.Container

	envNames := make([]string, 0, len(c.Env))
	for name := range c.Env {
		envNames = append(envNames, name)
	}
	sort.Strings(envNames)
	env := make([]*armcontainerinstance.EnvironmentVariable, 0, len(envNames))
	for _, name := range envNames {
		env = append(env, &armcontainerinstance.EnvironmentVariable{
			Name:  to.Ptr(name),
			Value: to.Ptr(c.Env[name]),
		})
	}

	containerPorts := make([]*armcontainerinstance.ContainerPort, 0, len(c.Ports))
	groupPorts := make([]*armcontainerinstance.Port, 0, len(c.Ports))
	for _, p := range c.Ports {
		containerPorts = append(containerPorts, &armcontainerinstance.ContainerPort{
			Port:     to.Ptr(int32(p)),
			Protocol: to.Ptr(armcontainerinstance.ContainerNetworkProtocolTCP),
		})
		groupPorts = append(groupPorts, &armcontainerinstance.Port{
			Port:     to.Ptr(int32(p)),
			Protocol: to.Ptr(armcontainerinstance.ContainerGroupNetworkProtocolTCP),
		})
	}

	return armcontainerinstance.ContainerGroup{
		Location: to.Ptr(spec.Location),
		Tags: map[string]*string{
			ResourceGroupTag: to.Ptr(spec.ResourceGroup),
		},
		Properties: &armcontainerinstance.ContainerGroupPropertiesProperties{
			OSType: to.Ptr(armcontainerinstance.OperatingSystemTypesLinux),
			Containers: []*armcontainerinstance.Container{{
				Name: to.Ptr(c.Name),
				Properties: &armcontainerinstance.ContainerProperties{
					Image: to.Ptr(c.Image),
					Resources: &armcontainerinstance.ResourceRequirements{
						Requests: &armcontainerinstance.ResourceRequests{
							CPU:        to.Ptr(c.CPU),
							MemoryInGB: to.Ptr(c.MemoryInGB),
						},
					},
					EnvironmentVariables: env,
					Ports:                containerPorts,
				},
			}},
			IPAddress: &armcontainerinstance.IPAddress{
				Type:         to.Ptr(armcontainerinstance.ContainerGroupIPAddressTypePublic),
				Ports:        groupPorts,
				DNSNameLabel: to.Ptr(spec.DNSLabel),
			},
		},
	}
}
