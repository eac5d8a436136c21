package hiding

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// Overlap limits of the merge policy: packing clusters claim first, the
// other detectors only contribute clusters mostly made of unclaimed units.
const (
	inspectionOverlapMax  = 0.5
	delayBucketOverlapMax = 0.3

	inspectionSubGap   = 30 * time.Minute
	delayBucketMinutes = 30
)

// packingClusters greedily grows clusters over units sorted by packing time,
// closing a cluster when the gap to the next unit exceeds window. Only
// clusters of at least minSize survive.
func packingClusters(units []Unit, window time.Duration, minSize int) [][]Unit {
	sorted := append([]Unit(nil), units...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].PackingTime.Before(sorted[j].PackingTime)
	})

	var clusters [][]Unit
	var cur []Unit
	for _, u := range sorted {
		if len(cur) > 0 && u.PackingTime.Sub(cur[len(cur)-1].PackingTime) > window {
			if len(cur) >= minSize {
				clusters = append(clusters, cur)
			}
			cur = nil
		}
		cur = append(cur, u)
	}
	if len(cur) >= minSize {
		clusters = append(clusters, cur)
	}
	return clusters
}

// inspectionClusters groups units by calendar hour of the inspection time,
// then sub-clusters within 30-minute gaps.
func inspectionClusters(units []Unit, minSize int) [][]Unit {
	groups := make(map[string][]Unit)
	for _, u := range units {
		key := u.InspectTime.Format("2006-01-02 15")
		groups[key] = append(groups[key], u)
	}

	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var clusters [][]Unit
	for _, key := range keys {
		group := groups[key]
		if len(group) < minSize {
			continue
		}
		sort.SliceStable(group, func(i, j int) bool {
			return group[i].InspectTime.Before(group[j].InspectTime)
		})
		var cur []Unit
		for _, u := range group {
			if len(cur) > 0 && u.InspectTime.Sub(cur[len(cur)-1].InspectTime) > inspectionSubGap {
				if len(cur) >= minSize {
					clusters = append(clusters, cur)
				}
				cur = nil
			}
			cur = append(cur, u)
		}
		if len(cur) >= minSize {
			clusters = append(clusters, cur)
		}
	}
	return clusters
}

// delayBucketClusters buckets units by delay rounded down to 30-minute
// steps combined with the packing hour. Any bucket of at least minSize is a
// cluster.
func delayBucketClusters(units []Unit, minSize int) [][]Unit {
	buckets := make(map[string][]Unit)
	for _, u := range units {
		bucket := int(math.Floor(u.DelayMinutes/delayBucketMinutes)) * delayBucketMinutes
		key := fmt.Sprintf("%dmin_%sh", bucket, u.PackingTime.Format("2006-01-02 15"))
		buckets[key] = append(buckets[key], u)
	}

	keys := make([]string, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var clusters [][]Unit
	for _, key := range keys {
		if len(buckets[key]) >= minSize {
			clusters = append(clusters, buckets[key])
		}
	}
	return clusters
}

// mergeClusters deduplicates the three detectors' output. Packing clusters
// claim their members first and are dropped entirely on any overlap with an
// earlier packing cluster. Inspection and delay-bucket clusters are
// re-filtered to unclaimed members, admitted only under their overlap limit
// and if the remainder still meets minSize.
func mergeClusters(packing, inspection, delayBucket [][]Unit, minSize int) [][]Unit {
	claimed := make(map[string]bool)
	var merged [][]Unit

	for _, cluster := range packing {
		overlap := 0
		for _, u := range cluster {
			if claimed[u.UnitID] {
				overlap++
			}
		}
		if overlap > 0 {
			continue
		}
		merged = append(merged, cluster)
		for _, u := range cluster {
			claimed[u.UnitID] = true
		}
	}

	admit := func(clusters [][]Unit, maxOverlap float64) {
		for _, cluster := range clusters {
			overlap := 0
			for _, u := range cluster {
				if claimed[u.UnitID] {
					overlap++
				}
			}
			if float64(overlap) >= float64(len(cluster))*maxOverlap {
				continue
			}
			var fresh []Unit
			for _, u := range cluster {
				if !claimed[u.UnitID] {
					fresh = append(fresh, u)
				}
			}
			if len(fresh) < minSize {
				continue
			}
			merged = append(merged, fresh)
			for _, u := range fresh {
				claimed[u.UnitID] = true
			}
		}
	}
	admit(inspection, inspectionOverlapMax)
	admit(delayBucket, delayBucketOverlapMax)

	return merged
}
