// Package zonal summarises hazard-classified region features (for example
// property parcels tagged with their dominant hazard class) by partition and
// class.
package zonal

import (
	"sort"

	"gonum.org/v1/gonum/floats"
)

// Unknown replaces an empty partition or class label.
const Unknown = "Unknown"

// squareMetresPerHectare converts feature areas to hectares.
const squareMetresPerHectare = 10000

// Feature is one classified region with its planar area in square metres.
type Feature struct {
	Partition string
	Class     string
	Area      float64
}

// Stat is a feature count and summed area.
type Stat struct {
	Count    int     `json:"count"`
	Area     float64 `json:"area_m2"`
	Hectares float64 `json:"area_ha"`
}

func newStat(count int, areas []float64) Stat {
	sum := floats.Sum(areas)
	return Stat{Count: count, Area: sum, Hectares: sum / squareMetresPerHectare}
}

func (s Stat) add(o Stat) Stat {
	s.Count += o.Count
	s.Area += o.Area
	s.Hectares = s.Area / squareMetresPerHectare
	return s
}

// ClassStat is the Stat of one class.
type ClassStat struct {
	Class string `json:"class"`
	Stat
}

// PartitionSummary breaks one partition down by class.
type PartitionSummary struct {
	Name     string      `json:"name"`
	Classes  []ClassStat `json:"classes"`
	Subtotal Stat        `json:"subtotal"`
}

// Summary is the full two-level aggregation. Partitions and classes are in
// ascending order.
type Summary struct {
	Partitions []PartitionSummary `json:"partitions"`
	AllClasses []ClassStat        `json:"all_partitions"`
	Total      Stat               `json:"grand_total"`
}

// Aggregate groups features by partition then class, and by class across all
// partitions. The grand total is the sum of the partition subtotals.
func Aggregate(features []Feature) Summary {
	byPartition := make(map[string]map[string][]float64)
	byClass := make(map[string][]float64)

	for _, f := range features {
		p := labelOrUnknown(f.Partition)
		c := labelOrUnknown(f.Class)
		if byPartition[p] == nil {
			byPartition[p] = make(map[string][]float64)
		}
		byPartition[p][c] = append(byPartition[p][c], f.Area)
		byClass[c] = append(byClass[c], f.Area)
	}

	var s Summary
	for _, p := range sortedKeys(byPartition) {
		ps := PartitionSummary{Name: p}
		classes := byPartition[p]
		for _, c := range sortedKeys(classes) {
			st := newStat(len(classes[c]), classes[c])
			ps.Classes = append(ps.Classes, ClassStat{Class: c, Stat: st})
			ps.Subtotal = ps.Subtotal.add(st)
		}
		s.Partitions = append(s.Partitions, ps)
		s.Total = s.Total.add(ps.Subtotal)
	}
	for _, c := range sortedKeys(byClass) {
		s.AllClasses = append(s.AllClasses, ClassStat{Class: c, Stat: newStat(len(byClass[c]), byClass[c])})
	}
	return s
}

// DominantClass returns the 1-based class with the largest count, the first
// one on ties. All-zero (or empty) counts give 0.
func DominantClass(counts []int) int {
	best, bestCount := 0, 0
	for i, n := range counts {
		if n > bestCount {
			best, bestCount = i+1, n
		}
	}
	return best
}

func labelOrUnknown(s string) string {
	if s == "" {
		return Unknown
	}
	return s
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
