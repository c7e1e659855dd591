// Package providers gathers unscored match candidates for a fingerprinted
// image. One source wraps an external reverse-image search API; another
// scans the internal corpus of already-fingerprinted assets. Sources run
// concurrently and fail independently: the union of whatever succeeded is
// the result, and an empty union is success.
package providers
