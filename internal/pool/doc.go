// Package pool keeps verified registry credentials for reuse.
//
// Acquire hands out a parked credential when one exists. Otherwise the caller
// becomes the single solver: attempts repeat with a fixed pause until one
// succeeds, and every other caller queues behind it on a weighted semaphore
// that honours each caller's context. A caller that gives up mid-solve does
// not waste the work; the credential is parked for the next Acquire.
//
// Pool membership is guarded separately from the solve section, so Release
// and Len never wait on a running solve.
package pool
