package domain

import "strings"

const (
	resourceGroupSuffix  = "-rg"
	containerGroupSuffix = "-container-group"
	containerSuffix      = "-container"

	// DNSZone is the ACI public DNS zone appended to {label}.{region}.
	DNSZone = "azurecontainer.io"
)

// SessionNames holds the cloud resource identifiers derived from a
// (title, user) pair. Every field is a deterministic function of the pair.
type SessionNames struct {
	ResourceGroup  string
	ContainerGroup string
	Container      string
	DNSLabel       string
}

// NewSessionNames derives the resource names for a session. The title is
// lower-cased, the user is kept as given.
func NewSessionNames(title, user string) SessionNames {
	base := strings.ToLower(title) + "-" + user
	return namesFromBase(base)
}

// NamesFromResourceGroup recomposes the names of a session from its resource
// group name. It reports false when the name does not carry the resource
// group suffix.
func NamesFromResourceGroup(resourceGroup string) (SessionNames, bool) {
	base, ok := strings.CutSuffix(resourceGroup, resourceGroupSuffix)
	if !ok || base == "" {
		return SessionNames{}, false
	}
	return namesFromBase(base), true
}

func namesFromBase(base string) SessionNames {
	return SessionNames{
		ResourceGroup:  base + resourceGroupSuffix,
		ContainerGroup: base + containerGroupSuffix,
		Container:      base + containerSuffix,
		DNSLabel:       base,
	}
}

// FQDN is the externally reachable host name of the session's container group.
func (n SessionNames) FQDN(region string) string {
	return n.DNSLabel + "." + region + "." + DNSZone
}

// ResourceGroupForContainerGroup walks the naming scheme backwards: it drops
// the trailing "container" and "group" segments and appends "rg".
func ResourceGroupForContainerGroup(containerGroup string) string {
	parts := strings.Split(containerGroup, "-")
	if len(parts) > 2 {
		parts = parts[:len(parts)-2]
	} else {
		parts = parts[:0]
	}
	return strings.Join(append(parts, "rg"), "-")
}

// StartRequest carries everything needed to provision a session.
type StartRequest struct {
	Title string
	User  string
	Image string
	Env   map[string]string
	Ports []int
}

// Session is a provisioned (title, user) sandbox.
type Session struct {
	ResourceGroup  string `json:"resource_group"`
	ContainerGroup string `json:"container_group"`
	DNS            string `json:"DNS"`
	State          string `json:"state"` // ACI provisioning state
}

// ContainerGroup is a container group as reported by the provider listing.
type ContainerGroup struct {
	Name string
	// ResourceGroup is the owning group recorded as a tag at creation time,
	// empty for groups created without it.
	ResourceGroup string
	FQDN          string
	State         string
}
