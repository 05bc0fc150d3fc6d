// Package integrations provides the HTTP plumbing for package index clients.
//
// [Client] wraps an [http.Client] with default headers, retries through
// [httputil.Retry] and response caching through a [cache.Cache] backend.
// Index-specific clients live in subpackages:
//
//   - [pypi]: the PyPI JSON API
//
// Clients report requests to [observability.HTTP] and cache traffic to
// [observability.Cache].
//
// [pypi]: github.com/matzehuels/stacklock/pkg/integrations/pypi
package integrations
