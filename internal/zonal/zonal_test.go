package zonal_test

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/flood-hazard-etl/internal/zonal"
)

func sampleFeatures() []zonal.Feature {
	return []zonal.Feature{
		{Partition: "Northern Grampians", Class: "H4", Area: 1000},
		{Partition: "Northern Grampians", Class: "H2", Area: 2000},
		{Partition: "Northern Grampians", Class: "H2", Area: 2000},
		{Partition: "Northern Grampians", Class: "H4", Area: 1000},
		{Partition: "Northern Grampians", Class: "H2", Area: 2000},
		{Partition: "Ararat", Class: "H2", Area: 500},
		{Partition: "", Class: "", Area: 250},
	}
}

func TestAggregate(t *testing.T) {
	s := zonal.Aggregate(sampleFeatures())

	expected := zonal.Summary{
		Partitions: []zonal.PartitionSummary{
			{
				Name:     "Ararat",
				Classes:  []zonal.ClassStat{{Class: "H2", Stat: zonal.Stat{Count: 1, Area: 500, Hectares: 0.05}}},
				Subtotal: zonal.Stat{Count: 1, Area: 500, Hectares: 0.05},
			},
			{
				Name: "Northern Grampians",
				Classes: []zonal.ClassStat{
					{Class: "H2", Stat: zonal.Stat{Count: 3, Area: 6000, Hectares: 0.6}},
					{Class: "H4", Stat: zonal.Stat{Count: 2, Area: 2000, Hectares: 0.2}},
				},
				Subtotal: zonal.Stat{Count: 5, Area: 8000, Hectares: 0.8},
			},
			{
				Name:     zonal.Unknown,
				Classes:  []zonal.ClassStat{{Class: zonal.Unknown, Stat: zonal.Stat{Count: 1, Area: 250, Hectares: 0.025}}},
				Subtotal: zonal.Stat{Count: 1, Area: 250, Hectares: 0.025},
			},
		},
		AllClasses: []zonal.ClassStat{
			{Class: "H2", Stat: zonal.Stat{Count: 4, Area: 6500, Hectares: 0.65}},
			{Class: "H4", Stat: zonal.Stat{Count: 2, Area: 2000, Hectares: 0.2}},
			{Class: zonal.Unknown, Stat: zonal.Stat{Count: 1, Area: 250, Hectares: 0.025}},
		},
		Total: zonal.Stat{Count: 7, Area: 8750, Hectares: 0.875},
	}

	if diff := cmp.Diff(expected, s, cmpopts.EquateApprox(0, 1e-9)); diff != "" {
		t.Errorf("Aggregate mismatch (-want +got):\n%s", diff)
	}
}

func TestAggregate_TotalIsSumOfSubtotals(t *testing.T) {
	s := zonal.Aggregate(sampleFeatures())

	var count int
	var area float64
	for _, p := range s.Partitions {
		count += p.Subtotal.Count
		area += p.Subtotal.Area
	}
	assert.Equal(t, count, s.Total.Count)
	assert.InDelta(t, area, s.Total.Area, 1e-9)
}

func TestAggregate_Empty(t *testing.T) {
	s := zonal.Aggregate(nil)
	assert.Empty(t, s.Partitions)
	assert.Empty(t, s.AllClasses)
	assert.Equal(t, zonal.Stat{}, s.Total)
}

func TestDominantClass(t *testing.T) {
	assert.Equal(t, 3, zonal.DominantClass([]int{1, 0, 9, 2, 0, 0}))
	assert.Equal(t, 2, zonal.DominantClass([]int{0, 4, 0, 4, 0, 0}), "first class wins ties")
	assert.Equal(t, 0, zonal.DominantClass([]int{0, 0, 0, 0, 0, 0}))
	assert.Equal(t, 0, zonal.DominantClass(nil))
}

func TestWriteText(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, zonal.WriteText(&buf, zonal.Aggregate(sampleFeatures())))
	out := buf.String()

	assert.Contains(t, out, "FLOOD ANALYSIS STATISTICS")
	assert.Contains(t, out, "--- LGA: Northern Grampians ---\nH2: 3 properties, 0.60 ha\nH4: 2 properties, 0.20 ha\nSubtotal: 5 properties, 0.80 ha\n")
	assert.Contains(t, out, "ALL LGAs SUMMARY")
	assert.Contains(t, out, "Grand Total: 7 properties, 0.88 ha")
	assert.Less(t, strings.Index(out, "LGA: Ararat"), strings.Index(out, "LGA: Northern Grampians"))
}

func TestWriteText_ThousandsSeparator(t *testing.T) {
	var buf bytes.Buffer
	s := zonal.Aggregate([]zonal.Feature{{Partition: "A", Class: "H1", Area: 12_345_678}})
	require.NoError(t, zonal.WriteText(&buf, s))
	assert.Contains(t, buf.String(), "H1: 1 properties, 1,234.57 ha")
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, zonal.WriteJSON(&buf, zonal.Aggregate(sampleFeatures()[:5])))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	total := decoded["grand_total"].(map[string]any)
	assert.InDelta(t, 5.0, total["count"], 0)
	assert.InDelta(t, 0.8, total["area_ha"], 1e-9)

	partitions := decoded["partitions"].([]any)
	first := partitions[0].(map[string]any)
	classes := first["classes"].([]any)
	assert.Equal(t, "H2", classes[0].(map[string]any)["class"])
}
