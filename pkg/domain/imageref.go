package domain

import (
	"fmt"
	"strings"
)

// ImageReference is a parsed container image reference
// (registry, namespace, name, tag).
type ImageReference struct {
	Registry  string
	Namespace string
	Name      string
	Tag       string
}

const defaultTag = "latest"

// ParseImageReference parses a raw image reference string of the form
// "[registry/]namespace/name[:tag]" or "name[:tag]". A two-part reference
// is always read as namespace/name, never registry/name. A missing tag
// defaults to "latest".
func ParseImageReference(raw string) (ImageReference, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ImageReference{}, fmt.Errorf("empty image reference")
	}

	ref := raw
	tag := defaultTag
	if idx := strings.LastIndex(ref, ":"); idx != -1 && !strings.Contains(ref[idx:], "/") {
		tag = ref[idx+1:]
		ref = ref[:idx]
	}

	parts := strings.Split(ref, "/")
	var registry, namespace, name string
	switch len(parts) {
	case 1:
		name = parts[0]
	case 2:
		namespace, name = parts[0], parts[1]
	default:
		registry = strings.Join(parts[:len(parts)-2], "/")
		namespace, name = parts[len(parts)-2], parts[len(parts)-1]
	}

	if name == "" {
		return ImageReference{}, fmt.Errorf("image reference %q has an empty image name", raw)
	}

	return ImageReference{Registry: registry, Namespace: namespace, Name: name, Tag: tag}, nil
}

// Canonical returns the Nexus-normalized form: namespace slashes mapped to
// hyphens, registry dropped, tag defaulted. Equivalence between two image
// references is defined over this form.
func (r ImageReference) Canonical() string {
	tag := r.Tag
	if tag == "" {
		tag = defaultTag
	}

	name := r.Name
	if r.Namespace != "" {
		name = strings.ReplaceAll(r.Namespace, "/", "-") + "-" + r.Name
	}

	return fmt.Sprintf("%s:%s", name, tag)
}

// Equivalent reports whether r and other normalize to the same canonical
// form.
func (r ImageReference) Equivalent(other ImageReference) bool {
	return r.Canonical() == other.Canonical()
}

// String returns the reference in "registry/namespace/name:tag" display
// form, omitting empty components.
func (r ImageReference) String() string {
	var b strings.Builder
	if r.Registry != "" {
		b.WriteString(r.Registry)
		b.WriteByte('/')
	}
	if r.Namespace != "" {
		b.WriteString(r.Namespace)
		b.WriteByte('/')
	}
	b.WriteString(r.Name)
	tag := r.Tag
	if tag == "" {
		tag = defaultTag
	}
	b.WriteByte(':')
	b.WriteString(tag)
	return b.String()
}
