package zonal

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/couchcryptid/flood-hazard-etl/internal/hazard"
)

// PartitionColumns are the accepted partition headers, most specific first.
var PartitionColumns = []string{"lga_name", "lga", "name", "partition"}

// histogramColumnRe matches per-class pixel count columns such as "h3" or
// "r100_h3".
var histogramColumnRe = regexp.MustCompile(`(?i)(?:^|_)h([1-6])$`)

// utf8BOM is prepended to CSVs exported by spreadsheet tools.
const utf8BOM = "\ufeff"

type featureColumns struct {
	partition int
	class     int
	area      int
	histogram map[int][]int // class -> column indexes
}

// ReadFeaturesCSV reads classified features from CSV. The header must carry
// an "area" column (square metres) and either a "hazard" label column or
// per-class pixel count columns (h1..h6, optionally prefixed), in which case
// the class is the dominant one. The partition column is optional.
func ReadFeaturesCSV(r io.Reader) ([]Feature, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, errors.New("read features: empty input")
	}
	if err != nil {
		return nil, fmt.Errorf("read features header: %w", err)
	}
	cols, err := detectColumns(header)
	if err != nil {
		return nil, err
	}

	var features []Feature
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read features line %d: %w", line, err)
		}
		f, err := cols.feature(rec)
		if err != nil {
			return nil, fmt.Errorf("read features line %d: %w", line, err)
		}
		features = append(features, f)
	}
	return features, nil
}

func detectColumns(header []string) (featureColumns, error) {
	cols := featureColumns{partition: -1, class: -1, area: -1, histogram: map[int][]int{}}
	index := make(map[string]int, len(header))
	for i, h := range header {
		if i == 0 {
			h = strings.TrimPrefix(h, utf8BOM)
		}
		name := strings.ToLower(strings.TrimSpace(h))
		if _, dup := index[name]; !dup {
			index[name] = i
		}
		if m := histogramColumnRe.FindStringSubmatch(name); m != nil {
			class, _ := strconv.Atoi(m[1])
			cols.histogram[class] = append(cols.histogram[class], i)
		}
	}

	for _, name := range PartitionColumns {
		if i, ok := index[name]; ok {
			cols.partition = i
			break
		}
	}
	if i, ok := index["hazard"]; ok {
		cols.class = i
	}
	if i, ok := index["area"]; ok {
		cols.area = i
	} else {
		return cols, errors.New("read features: no area column")
	}
	if cols.class < 0 && len(cols.histogram) == 0 {
		return cols, errors.New("read features: no hazard or h1..h6 columns")
	}
	return cols, nil
}

func (c featureColumns) feature(rec []string) (Feature, error) {
	var f Feature
	if c.partition >= 0 {
		f.Partition = strings.TrimSpace(rec[c.partition])
	}

	areaText := strings.TrimSpace(rec[c.area])
	if areaText != "" {
		area, err := strconv.ParseFloat(areaText, 64)
		if err != nil {
			return f, fmt.Errorf("parse area %q: %w", areaText, err)
		}
		f.Area = area
	}

	if c.class >= 0 {
		f.Class = strings.TrimSpace(rec[c.class])
		return f, nil
	}

	counts := make([]int, hazard.MaxClass)
	for class, idxs := range c.histogram {
		for _, i := range idxs {
			v := strings.TrimSpace(rec[i])
			if v == "" {
				continue
			}
			n, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return f, fmt.Errorf("parse h%d count %q: %w", class, v, err)
			}
			counts[class-1] += int(n)
		}
	}
	if class := DominantClass(counts); class > 0 {
		f.Class = hazard.Label(uint8(class))
	}
	return f, nil
}
