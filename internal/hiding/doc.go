// Package hiding detects units held back between final inspection and
// packing. Delay-thresholded units feed three independent clusterers
// (packing proximity, inspection proximity, delay buckets) whose merged
// clusters are scored with a fixed evidence rubric. The rubric is a set of
// configuration constants, not a statistical model.
package hiding
