// Package ecdf computes empirical cumulative distribution functions over
// dwell-time samples: a right-continuous step function evaluated on a
// regular grid, nearest-rank percentiles, and point evaluations F(t).
//
// Percentiles here use the discrete ceil(p*n)-1 rank into the sorted sample,
// not the linear interpolation the stats package uses. Dashboards consuming
// these distributions expect observed sample values, so the two methods must
// not be unified.
package ecdf
