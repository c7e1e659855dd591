// Package embedding produces and compares dense vector representations of
// images and text. The image tower and the default text tower run a CLIP
// model through ONNX Runtime; text embedding can alternatively be served by
// the Cohere API. Vectors are L2-normalized before storage so similarity
// reduces to a dot product.
package embedding
