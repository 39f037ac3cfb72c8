// Package viz turns raw submissions plus a field schema into chart-ready
// datasets. The engine is a pure computation: it never mutates its inputs
// and rebuilds every dataset from scratch on each call, so toggling a
// visualization twice over the same data yields identical output.
package viz

import (
	"sort"
	"strconv"
	"strings"

	"survey-service/internal/domain"
)

// Mode selects how one field's aggregated answers are rendered.
type Mode string

const (
	ModeNone      Mode = ""
	ModeHistogram Mode = "histogram"
	ModePie       Mode = "pie"
	ModeTagCloud  Mode = "tag-cloud"
)

// Valid reports whether m is a known visualization mode.
func (m Mode) Valid() bool {
	switch m {
	case ModeNone, ModeHistogram, ModePie, ModeTagCloud:
		return true
	}
	return false
}

// Selection maps field names to visualization modes. ModeNone (or an
// absent key) excludes the field from aggregation. It is a per-results-view
// value: built when the view opens, passed into Aggregate, discarded after.
type Selection map[string]Mode

// Active reports whether at least one field has a visualization selected;
// the compute action is only enabled when it does.
func (s Selection) Active() bool {
	for _, m := range s {
		if m != ModeNone {
			return true
		}
	}
	return false
}

// Point is one labeled value of a dataset. For tag clouds the label is the
// word and the value its weight.
type Point struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
}

// Dataset is the chart-ready aggregate for one field, independent of the
// rendering technology.
type Dataset struct {
	FieldName  string  `json:"fieldName"`
	FieldLabel string  `json:"fieldLabel"`
	Mode       Mode    `json:"mode"`
	Points     []Point `json:"points"`
}

// Aggregate produces one dataset per selected field, in field order.
// Submissions missing a value for a field are excluded from that field's
// counts. The returned datasets are freshly allocated on every call.
func Aggregate(fields []*domain.Field, submissions []domain.Submission, sel Selection) ([]Dataset, error) {
	datasets := make([]Dataset, 0, len(sel))
	for _, f := range fields {
		mode := sel[f.Name]
		if mode == ModeNone {
			continue
		}
		if !mode.Valid() {
			return nil, domain.Validationf("unknown visualization mode %q for field %q", mode, f.Name)
		}
		if mode == ModeTagCloud && !f.Type.FreeText() {
			return nil, domain.Validationf("tag cloud requires a free-text field, %q is %q", f.Name, f.Type)
		}

		counts := make(map[string]float64)
		for _, sub := range submissions {
			sf, ok := sub.Fields[f.Name]
			if !ok {
				continue
			}
			value := normalize(f.Type, sf.Value)
			if mode == ModeTagCloud {
				countTokens(counts, value)
			} else {
				counts[value]++
			}
		}

		datasets = append(datasets, Dataset{
			FieldName:  f.Name,
			FieldLabel: f.Label,
			Mode:       mode,
			Points:     shape(f, counts),
		})
	}
	return datasets, nil
}

// normalize maps a raw submitted value to its aggregation key.
func normalize(t domain.FieldType, v any) string {
	switch t {
	case domain.FieldCheckbox:
		if truthy(v) {
			return "yes"
		}
		return "no"
	case domain.FieldText, domain.FieldTextarea:
		return strings.ToLower(stringify(v))
	default:
		return stringify(v)
	}
}

func truthy(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case string:
		return x != "" && x != "false" && x != "0"
	case float64:
		return x != 0
	case int:
		return x != 0
	case nil:
		return false
	}
	return true
}

func stringify(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case bool:
		return strconv.FormatBool(x)
	case nil:
		return ""
	}
	return ""
}

// countTokens adds one submission's tag-cloud contribution to the global
// counts: a word's first occurrence in the text counts 1.0, every repeat
// in the same text adds a 0.1 boost rather than a second full count.
func countTokens(global map[string]float64, text string) {
	local := make(map[string]float64)
	tok := Tokenize(text)
	for {
		w, ok := tok.Next()
		if !ok {
			break
		}
		if _, seen := local[w]; seen {
			local[w] += 0.1
		} else {
			local[w] = 1
		}
	}
	for w, c := range local {
		global[w] += c
	}
}

// shape orders the aggregated counts into the dataset layout for the
// field's type.
func shape(f *domain.Field, counts map[string]float64) []Point {
	switch f.Type {
	case domain.FieldSelect:
		// One entry per declared option, in option order, zero-filled.
		points := make([]Point, 0, len(f.Options))
		for _, o := range f.Options {
			points = append(points, Point{Label: o.Label, Value: counts[o.Value]})
		}
		return points

	case domain.FieldCheckbox:
		return []Point{
			{Label: "Yes", Value: counts["yes"]},
			{Label: "No", Value: counts["no"]},
		}

	case domain.FieldNumber:
		points := collect(counts)
		sort.Slice(points, func(i, j int) bool {
			a, aerr := strconv.ParseFloat(points[i].Label, 64)
			b, berr := strconv.ParseFloat(points[j].Label, 64)
			switch {
			case aerr == nil && berr == nil:
				return a < b
			case aerr == nil:
				return true
			case berr == nil:
				return false
			}
			return points[i].Label < points[j].Label
		})
		return points

	default:
		// Free text, including tag clouds: lexicographic order keeps the
		// output deterministic; cloud layout ignores it anyway.
		points := collect(counts)
		sort.Slice(points, func(i, j int) bool {
			return points[i].Label < points[j].Label
		})
		return points
	}
}

func collect(counts map[string]float64) []Point {
	points := make([]Point, 0, len(counts))
	for label, value := range counts {
		points = append(points, Point{Label: label, Value: value})
	}
	return points
}
