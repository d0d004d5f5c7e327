// Package query answers filing lookups, preferring the persisted record
// cache over the registry.
//
// A cache hit spends no credential. A miss borrows one credential from the
// pool for a single registry call. Successful calls, including those with no
// matching filing, hand the credential back. A failed call does not: the
// credential may have been consumed or invalidated, and it is dropped rather
// than risk poisoning the pool.
package query
