// Package preflight provides readiness checks for the filesystem paths and
// external services icpquery depends on.
//
// These checks run in two contexts:
//   - daemonrun calls RunAll at startup and logs every failing check, so an
//     operator sees a missing model or unreachable sidecar before the first
//     lookup stalls on it.
//   - The CLI "icpquery status" command renders the same results as a table.
//
// Network checks use short timeouts and a single attempt.
package preflight
