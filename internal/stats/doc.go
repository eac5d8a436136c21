// Package stats provides the sample statistics shared by the cycle-time and
// arrival analyzers: linear-interpolation percentiles, mean, median, and
// sample standard deviation. "No data" is signalled through ok returns,
// never through panics — callers translate a false ok into a null field.
package stats
