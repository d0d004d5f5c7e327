// Package background recognises which stock background a challenge image was
// drawn on and isolates the glyphs painted over it.
//
// A Store holds the reference backgrounds loaded from a directory of PNG files
// together with a compact feature vector per template. The Matcher picks the
// template nearest to a challenge image and returns the inverted absolute
// difference, which leaves the glyph strokes dark on a white field for the
// box detector.
package background
