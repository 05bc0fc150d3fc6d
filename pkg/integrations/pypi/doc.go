// Package pypi is a client for the PyPI JSON API.
//
// [Client.FetchProject] lists the releases of a project with their files,
// digests and yank status; [Client.FetchMetadata] returns the core metadata
// of one release (requires_dist, requires_python, provides_extra).
//
//	client := pypi.NewClient(cache.NewNullCache(), "", 24*time.Hour)
//	project, err := client.FetchProject(ctx, "fastapi", false)
//
// Responses are cached through the backend passed to [NewClient]; pass
// refresh=true to bypass it. Package names are normalized following PEP 503.
package pypi
