// Package report turns pipeline output into the summaries users download or
// read: PHI counts, the entity count table, the type distribution and
// highlighted renderings of the note.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"

	"clinical-deid/internal/deid"
	"clinical-deid/internal/extract"
)

// PHISummary counts the placeholders in a masked note.
type PHISummary struct {
	Names     int `json:"names"`
	Addresses int `json:"addresses"`
	Contacts  int `json:"contacts"`
	IDs       int `json:"ids"`
	Dates     int `json:"dates"`
	Orgs      int `json:"orgs"`
	Total     int `json:"total"`
}

// PHICounts summarizes the placeholders in masked.
func PHICounts(masked string) PHISummary {
	c := deid.CountPlaceholders(masked)
	return PHISummary{
		Names:     c[deid.PlaceholderName],
		Addresses: c[deid.PlaceholderAddress],
		Contacts:  c[deid.PlaceholderContact],
		IDs:       c[deid.PlaceholderID],
		Dates:     c[deid.PlaceholderDate],
		Orgs:      c[deid.PlaceholderOrg],
		Total:     c.Total(),
	}
}

// EntityCount is one row of the entity count table.
type EntityCount struct {
	Entity string       `json:"entity"`
	Type   extract.Type `json:"type"`
	Count  int          `json:"count"`
}

// CountEntities groups entities by exact surface text and type. Rows are
// sorted by entity text, then type name.
func CountEntities(entities []extract.Entity) []EntityCount {
	type key struct {
		text string
		typ  extract.Type
	}
	idx := make(map[key]int)
	counts := []EntityCount{}
	for _, e := range entities {
		k := key{e.Text, e.Type}
		if i, ok := idx[k]; ok {
			counts[i].Count++
			continue
		}
		idx[k] = len(counts)
		counts = append(counts, EntityCount{Entity: e.Text, Type: e.Type, Count: 1})
	}
	sort.Slice(counts, func(i, j int) bool {
		if counts[i].Entity != counts[j].Entity {
			return counts[i].Entity < counts[j].Entity
		}
		return counts[i].Type.String() < counts[j].Type.String()
	})
	return counts
}

// WriteCountsCSV writes counts as CSV with an Entity,Type,Count header.
// An empty table still gets the header.
func WriteCountsCSV(w io.Writer, counts []EntityCount) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"Entity", "Type", "Count"}); err != nil {
		return err
	}
	for _, c := range counts {
		if err := cw.Write([]string{c.Entity, c.Type.String(), strconv.Itoa(c.Count)}); err != nil {
			return err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return nil
}

// TypeCount is one bar of the type distribution.
type TypeCount struct {
	Type  extract.Type `json:"type"`
	Count int          `json:"count"`
}

// TypeDistribution counts entities per type, most frequent first. Ties keep
// type order; types with no entities are omitted.
func TypeDistribution(entities []extract.Entity) []TypeCount {
	var per [len(typeColors)]int
	for _, e := range entities {
		if int(e.Type) >= 0 && int(e.Type) < len(per) {
			per[e.Type]++
		}
	}
	out := []TypeCount{}
	for _, t := range extract.Types() {
		if per[t] > 0 {
			out = append(out, TypeCount{Type: t, Count: per[t]})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	return out
}
