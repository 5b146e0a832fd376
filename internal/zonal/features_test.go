package zonal_test

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/flood-hazard-etl/internal/zonal"
)

func TestReadFeaturesCSV(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []zonal.Feature
	}{
		{
			name:  "hazard label column",
			input: "PFI,LGA_NAME,hazard,area\n1,Ararat,H2,1500.5\n2,,H3,10\n3,Ararat,,\n",
			expected: []zonal.Feature{
				{Partition: "Ararat", Class: "H2", Area: 1500.5},
				{Partition: "", Class: "H3", Area: 10},
				{Partition: "Ararat", Class: "", Area: 0},
			},
		},
		{
			name:  "lga_name preferred over name",
			input: "name,lga_name,hazard,area\nParcel 7,Northern Grampians,H1,5\n",
			expected: []zonal.Feature{
				{Partition: "Northern Grampians", Class: "H1", Area: 5},
			},
		},
		{
			name:  "histogram columns summed across rasters",
			input: "partition,area,r5_h1,r5_h2,r5_h3,r100_h1,r100_h2,r100_h3\nA,100,4,1,0,0,5,0\nA,50,0,0,0,0,0,0\n",
			expected: []zonal.Feature{
				{Partition: "A", Class: "H2", Area: 100},
				{Partition: "A", Class: "", Area: 50},
			},
		},
		{
			name:  "byte order mark on first header",
			input: "\ufeffLGA_NAME,hazard,area\nHorsham,H4,20\n",
			expected: []zonal.Feature{
				{Partition: "Horsham", Class: "H4", Area: 20},
			},
		},
		{
			name:     "no partition column",
			input:    "hazard,area\nH6,1\n",
			expected: []zonal.Feature{{Class: "H6", Area: 1}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := zonal.ReadFeaturesCSV(strings.NewReader(tt.input))
			require.NoError(t, err)
			if diff := cmp.Diff(tt.expected, got); diff != "" {
				t.Errorf("ReadFeaturesCSV mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestReadFeaturesCSV_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"no area column", "lga,hazard\nA,H1\n"},
		{"no class columns", "lga,area\nA,1\n"},
		{"bad area", "hazard,area\nH1,lots\n"},
		{"bad count", "area,h1\n1,many\n"},
		{"ragged row", "hazard,area\nH1\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := zonal.ReadFeaturesCSV(strings.NewReader(tt.input))
			require.Error(t, err)
		})
	}
}
