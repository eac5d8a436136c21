// Package arrival projects when units should reach each downstream station.
// For every stage a unit completed inside the analysis window, the walker
// steps forward hop by hop using historical median cycle times, anchoring
// each hop on the actual upstream completion when one exists and on the
// projected time otherwise. Comparing projections against recorded arrivals
// classifies units as on time, early, delayed, or not completed.
package arrival
