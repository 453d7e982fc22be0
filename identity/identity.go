// Package identity maps external auth identities onto stable user ids.
package identity

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Version selects the name-based UUID construction.
type Version string

const (
	VersionSHA1 Version = "v5"
	VersionMD5  Version = "v3"
)

// DefaultNamespace is the RFC 4122 URL namespace.
var DefaultNamespace = uuid.NameSpaceURL

// Identity is what the auth provider tells us about the caller.
type Identity struct {
	ExternalID  string
	Username    string
	DisplayName string
	AvatarURL   string
}

// Deriver turns an external identity id into the internal user id.
type Deriver interface {
	Derive(externalID string) uuid.UUID
}

// NamespaceDeriver derives ids with a namespaced, name-based UUID.
type NamespaceDeriver struct {
	namespace uuid.UUID
	version   Version
}

// NewNamespaceDeriver parses the namespace and version coming from configuration.
// An empty namespace falls back to DefaultNamespace and an empty version to v5.
func NewNamespaceDeriver(namespace string, version string) (*NamespaceDeriver, error) {
	ns := DefaultNamespace
	if strings.TrimSpace(namespace) != "" {
		parsed, err := uuid.Parse(strings.TrimSpace(namespace))
		if err != nil {
			return nil, fmt.Errorf("invalid identity namespace %q: %w", namespace, err)
		}
		ns = parsed
	}

	v := Version(strings.ToLower(strings.TrimSpace(version)))
	switch v {
	case "":
		v = VersionSHA1
	case VersionSHA1, VersionMD5:
	default:
		return nil, fmt.Errorf("unsupported identity version %q", version)
	}

	return &NamespaceDeriver{namespace: ns, version: v}, nil
}

// Derive returns the same id for the same external id.
func (d *NamespaceDeriver) Derive(externalID string) uuid.UUID {
	if d.version == VersionMD5 {
		return uuid.NewMD5(d.namespace, []byte(externalID))
	}
	return uuid.NewSHA1(d.namespace, []byte(externalID))
}

// Namespace returns the namespace in use.
func (d *NamespaceDeriver) Namespace() uuid.UUID {
	return d.namespace
}

// Version returns the UUID version in use.
func (d *NamespaceDeriver) Version() Version {
	return d.version
}
