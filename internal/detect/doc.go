// Package detect locates glyph bounding boxes in a background-subtracted
// challenge image.
//
// Detection runs in an external OCR sidecar that exposes a single /det
// endpoint. HTTPDetector posts the PNG-encoded difference image and converts
// the returned corner coordinates into x/y/width/height boxes.
package detect
