// Package version implements PEP 440 versions and version specifier sets.
//
// Parsing and ordering are delegated to deps.dev/util/semver (the PyPI
// system). This package adds the specifier semantics a resolver needs on top
// of that: per-clause matching (including wildcard and compatible-release
// clauses), the pre-release policy, and intersection of specifier sets with
// emptiness detection.
//
// # Pre-releases
//
// A specifier excludes pre-release and development versions unless one of
// its clauses names a pre-release explicitly. [Specifier.Filter] falls back
// to pre-releases when no stable version matches at all.
//
// # Caching
//
// Parsing is pure but not free. A [Cache] memoizes parse results with a
// bounded LRU; callers own its lifetime, typically one per resolution run.
package version
