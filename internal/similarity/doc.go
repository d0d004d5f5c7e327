// Package similarity scores whether two glyph crops show the same character.
//
// The scorer is a siamese network exported to ONNX and evaluated through the
// OpenCV dnn module. Crops are normalized into 1x3x105x105 RGB blobs scaled
// to [0, 1]; the network's logit is mapped through the logistic function.
package similarity
