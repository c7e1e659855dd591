// Package pipeline implements the stage handlers that carry a scan run from
// submission to completion: fingerprinting the source image, collecting
// candidate sightings, scoring them, persisting qualifying matches, and
// announcing the outcome.
package pipeline
