// Package lockfile turns a resolution into a reproducible lockfile.
//
// A [Lockfile] is the ordered record of every pinned package: name,
// version, source, hashes, the markers under which it is needed, and the
// names of its dependencies. It carries enough to rebuild the dependency
// graph ([Lockfile.Graph]) without resolving again.
//
// The on-disk form is TOML:
//
//	version = 1
//	input_hash = "3f1c..."
//	roots = ["requests[socks]>=2"]
//
//	[environment]
//	python_version = "3.11"
//	sys_platform = "linux"
//
//	[[package]]
//	name = "requests"
//	version = "2.31.0"
//	hashes = ["sha256:58cd..."]
//	extras = ["socks"]
//	dependencies = ["certifi", "pysocks"]
//
// [WriteFile] replaces the file atomically, so a failed or interrupted
// run never leaves a partial lockfile behind. [Check] compares the stored
// input hash with the current roots and environment.
package lockfile
