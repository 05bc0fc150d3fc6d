// Package resolver computes a consistent set of package versions for a set
// of root requirements.
//
// # Overview
//
// [Resolve] runs a backtracking search over candidates supplied by a
// [provider.Provider]. Requirements on the same resolution slot (package
// name plus extras, see [requirement.Key]) are accumulated into a
// criterion whose candidate list is the intersection of every constituent
// requirement's matches. Each round pins one candidate:
//
//  1. The unpinned criterion with the fewest remaining candidates is chosen;
//     ties go to the criterion seen first.
//  2. Its candidates are tried best first. A candidate is accepted when every
//     dependency it introduces merges cleanly into the existing criteria and
//     is satisfied by the candidates already pinned.
//  3. If no candidate is accepted the most recent pin is undone, its
//     candidate is marked incompatible, and the search continues from the
//     state before that pin.
//
// Resolution ends when every criterion is pinned, when backtracking runs out
// of alternatives ([ImpossibleError]), or when the round limit is reached
// ([TooDeepError]).
//
// # Determinism
//
// The engine is single-threaded. Given the same provider ordering and the
// same inputs it pins the same candidates in the same order. Metadata may
// be prefetched concurrently by providers that implement
// [provider.Prefetcher], but results are consumed synchronously.
//
// # Reporting
//
// A [Reporter] is notified of pins and backtracks. Reporters that also
// implement [PhaseReporter] see the start of every round and the end of the
// run. The engine also emits [observability.ResolverHooks].
package resolver
