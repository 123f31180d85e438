package resolver

import (
	"fmt"

	"gopkg.in/yaml.v3"

	v1alpha1 "stagehand/pkg/apis/stagehand/v1alpha1"
)

// ManifestFileName is the dependency manifest looked up at an Actor's
// resolved source path.
const ManifestFileName = ".stagehand.yaml"

// Manifest is the nested dependency declaration an Actor may carry at its
// source path. Dependencies found here are "discovered" (implicit), in
// contrast to the dependencies declared on the Actor record itself.
type Manifest struct {
	// Name is the actor name the manifest describes.
	Name string `yaml:"name"`

	// Description is an optional human-readable summary.
	Description string `yaml:"description,omitempty"`

	// Image overrides the image reference the pipeline produces.
	Image string `yaml:"image,omitempty"`

	// Dependencies maps sibling actor names to the source they can be
	// fetched from if no Actor record exists for them yet.
	Dependencies map[string]ManifestSource `yaml:"dependencies,omitempty"`
}

// ManifestSource locates a discovered dependency's source tree.
type ManifestSource struct {
	Repo string `yaml:"repo"`
	Path string `yaml:"path,omitempty"`
	Ref  string `yaml:"ref,omitempty"`
}

// SourceReference converts a manifest source into an API source reference.
func (s ManifestSource) SourceReference() v1alpha1.SourceReference {
	return v1alpha1.SourceReference{
		Repo: s.Repo,
		Path: s.Path,
		Ref:  s.Ref,
	}
}

// ParseManifest parses manifest bytes. A manifest without a name is
// rejected; everything else is optional.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("invalid manifest: %w", err)
	}
	if m.Name == "" {
		return nil, fmt.Errorf("invalid manifest: missing name")
	}
	return &m, nil
}
