// Package pkg holds the stacklock libraries.
//
// Data flows from root requirements to a lockfile:
//
//	requirements.txt / pyproject.toml
//	         ↓
//	    [requirement] (parse roots, markers, sources)
//	         ↓
//	    [resolver] ← [provider] ← [candidate] ← [integrations/pypi] ← [cache]
//	         ↓
//	    [lockfile] (TOML, resolved markers, input hash)
//	         ↓
//	    [graph] → [render/nodelink] (DOT, SVG, JSON)
//
// Supporting packages: [version] for PEP 440 versions and specifiers,
// [marker] for PEP 508 environment markers, [errors] for coded errors,
// [observability] for hook interfaces, [httputil] for retries, and
// [buildinfo] for ldflags version data.
//
// [requirement]: github.com/matzehuels/stacklock/pkg/requirement
// [resolver]: github.com/matzehuels/stacklock/pkg/resolver
// [provider]: github.com/matzehuels/stacklock/pkg/provider
// [candidate]: github.com/matzehuels/stacklock/pkg/candidate
// [integrations/pypi]: github.com/matzehuels/stacklock/pkg/integrations/pypi
// [cache]: github.com/matzehuels/stacklock/pkg/cache
// [lockfile]: github.com/matzehuels/stacklock/pkg/lockfile
// [graph]: github.com/matzehuels/stacklock/pkg/graph
// [render/nodelink]: github.com/matzehuels/stacklock/pkg/render/nodelink
// [version]: github.com/matzehuels/stacklock/pkg/version
// [marker]: github.com/matzehuels/stacklock/pkg/marker
// [errors]: github.com/matzehuels/stacklock/pkg/errors
// [observability]: github.com/matzehuels/stacklock/pkg/observability
// [httputil]: github.com/matzehuels/stacklock/pkg/httputil
// [buildinfo]: github.com/matzehuels/stacklock/pkg/buildinfo
package pkg
