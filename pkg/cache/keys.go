package cache

import "github.com/matzehuels/stacklock/pkg/requirement"

// Keyer builds cache keys for the entries the resolver stores.
type Keyer interface {
	// HTTPKey keys a raw registry response.
	HTTPKey(namespace, key string) string
	// ProjectKey keys the release listing of one project on one index.
	ProjectKey(index, name string) string
	// MetadataKey keys the core metadata of one distribution.
	MetadataKey(name, version string, src *requirement.Source) string
}

// DefaultKeyer is the unscoped key layout.
type DefaultKeyer struct{}

// NewDefaultKeyer returns the default key layout.
func NewDefaultKeyer() Keyer { return DefaultKeyer{} }

func (DefaultKeyer) HTTPKey(namespace, key string) string {
	return "http:" + namespace + ":" + key
}

func (DefaultKeyer) ProjectKey(index, name string) string {
	return hashKey("project", index, name)
}

func (DefaultKeyer) MetadataKey(name, version string, src *requirement.Source) string {
	origin := ""
	if src != nil {
		origin = src.String()
	}
	return hashKey("metadata", name, version, origin)
}

// ScopedKeyer prefixes every key of an inner Keyer, so that several
// resolvers (one per index, or one per tenant) can share a backend.
type ScopedKeyer struct {
	inner  Keyer
	prefix string
}

// NewScopedKeyer wraps inner with prefix. A nil inner uses the default layout.
func NewScopedKeyer(inner Keyer, prefix string) Keyer {
	if inner == nil {
		inner = NewDefaultKeyer()
	}
	return &ScopedKeyer{inner: inner, prefix: prefix}
}

func (k *ScopedKeyer) HTTPKey(namespace, key string) string {
	return k.prefix + k.inner.HTTPKey(namespace, key)
}

func (k *ScopedKeyer) ProjectKey(index, name string) string {
	return k.prefix + k.inner.ProjectKey(index, name)
}

func (k *ScopedKeyer) MetadataKey(name, version string, src *requirement.Source) string {
	return k.prefix + k.inner.MetadataKey(name, version, src)
}
