// Package solver turns one registry click challenge into a verified
// credential.
//
// An attempt fetches a challenge, subtracts the stock background from the
// full image, asks the detector for exactly five glyph boxes, pairs each
// prompt glyph with a box using the siamese scorer, encrypts the resulting
// click points with the challenge secret and submits them. Each attempt is
// terminal: the first success or failure ends it, and retrying is the
// credential pool's job.
package solver
