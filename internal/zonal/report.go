package zonal

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const rule = "=================================================="

// WriteText prints the summary as a per-partition breakdown followed by the
// all-partition class totals and the grand total.
func WriteText(w io.Writer, s Summary) error {
	p := message.NewPrinter(language.English)
	var b strings.Builder

	line := func(label string, st Stat) {
		p.Fprintf(&b, "%s: %d properties, %.2f ha\n", label, st.Count, st.Hectares)
	}

	fmt.Fprintf(&b, "\n%s\nFLOOD ANALYSIS STATISTICS\n%s\n", rule, rule)
	for _, ps := range s.Partitions {
		fmt.Fprintf(&b, "\n--- LGA: %s ---\n", ps.Name)
		for _, cs := range ps.Classes {
			line(cs.Class, cs.Stat)
		}
		line("Subtotal", ps.Subtotal)
	}

	fmt.Fprintf(&b, "\n%s\nALL LGAs SUMMARY\n%s\n", rule, rule)
	for _, cs := range s.AllClasses {
		line(cs.Class, cs.Stat)
	}
	b.WriteString("\n")
	line("Grand Total", s.Total)
	b.WriteString(rule + "\n")

	_, err := io.WriteString(w, b.String())
	return err
}

// WriteJSON encodes the summary as indented JSON.
func WriteJSON(w io.Writer, s Summary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s); err != nil {
		return fmt.Errorf("encode zonal summary: %w", err)
	}
	return nil
}
