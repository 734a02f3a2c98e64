// Package matchcache stores resolved match data between navigations.
//
// Entries are keyed by route id, params and loader deps (see Key). A stale
// entry is still served; the navigation scheduler refetches it in the
// background. Invalid entries are always refetched. Entries no active match
// references are collected by Sweep (or Run) after their GCTime.
//
// Writes race across overlapping navigations, so every entry carries the
// generation of the navigation that produced it and Put rejects writes
// from an older generation.
package matchcache
