// Package kube implements the read-only resource query dispatcher for the
// kubesage agent. It translates an abstract (resource_type, namespace, name?)
// request into a concrete read or list call against the cluster API and
// returns a normalized result envelope.
package kube

import (
	_ "embed"
	"fmt"
	"strings"

	"sigs.k8s.io/yaml"
)

// Surface identifies the API surface a resource type is served by.
type Surface string

const (
	SurfaceCore Surface = "v1"
	SurfaceApps Surface = "apps_v1"
)

//go:embed resources.yaml
var resourcesYAML []byte

// Entry is one row of the resource mapping source.
type Entry struct {
	ResourceType string `json:"resource_type"`
	APIVersion   string `json:"api_version"`
	MethodSuffix string `json:"method_suffix"`
}

type mappingFile struct {
	Resources []Entry `json:"resources"`
}

// Mapping resolves a lower-cased resource type to its mapping entry.
// It is immutable after construction and safe for concurrent reads.
type Mapping map[string]Entry

// LoadMapping parses the embedded resource mapping. Only entries on the
// core and apps surfaces are retained; other rows are skipped, so their
// resource types stay terminal lookup failures at dispatch time.
func LoadMapping() (Mapping, error) {
	return parseMapping(resourcesYAML)
}

func parseMapping(data []byte) (Mapping, error) {
	var file mappingFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse resource mapping: %w", err)
	}

	m := make(Mapping, len(file.Resources))
	for _, e := range file.Resources {
		switch Surface(e.APIVersion) {
		case SurfaceCore, SurfaceApps:
		default:
			continue
		}
		key := strings.ToLower(strings.TrimSpace(e.ResourceType))
		if key == "" || e.MethodSuffix == "" {
			return nil, fmt.Errorf("resource mapping: invalid entry %+v", e)
		}
		if _, dup := m[key]; dup {
			return nil, fmt.Errorf("resource mapping: duplicate resource type %q", key)
		}
		m[key] = e
	}

	if len(m) == 0 {
		return nil, fmt.Errorf("resource mapping: no usable entries")
	}
	return m, nil
}

// Lookup resolves a resource type case-insensitively.
func (m Mapping) Lookup(resourceType string) (Entry, bool) {
	e, ok := m[strings.ToLower(strings.TrimSpace(resourceType))]
	return e, ok
}

// Surface returns the API surface for an entry.
func (e Entry) Surface() Surface {
	return Surface(e.APIVersion)
}
