// Package candidate models concrete, installable package versions.
//
// A [Candidate] is one version of one package from one source, optionally
// with a set of requested extras. Candidates are interned by a [Store]:
// asking twice for the same identity returns the same pointer, and the
// metadata behind a candidate is fetched at most once per identity, even
// when several goroutines prefetch concurrently.
//
// A candidate starts [Unresolved]. The first successful metadata fetch
// moves it to [Resolved]; a failed fetch moves it to [Failed] and the error
// is kept, so a broken candidate is never fetched again during a run.
//
// Extras candidates ("a[x]==1.0") share metadata with their base candidate
// ("a==1.0"). Their dependencies are the base pin plus the requirements
// that only apply under the requested extras; see [Candidate.Dependencies].
package candidate
