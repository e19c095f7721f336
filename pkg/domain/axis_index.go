package domain

import "sort"

// axisIndex is the per-type behavior table backing addColumn/findColumn
// overlap detection and lookup (§9 "dynamic dispatch on AxisType" redesign
// note: a tagged variant with a behavior table, not a class hierarchy).
//
// findPoint binds a coordinate value to the column that owns it.
// overlapsValue reports whether a candidate column value (same shape as the
// values already stored — a point for DISCRETE/NEAREST/RULE, a Range for
// RANGE, a RangeSet for SET) conflicts with an existing column.
type axisIndex interface {
	findPoint(point Value) (*Column, bool)
	overlapsValue(v Value) (*Column, bool)
	insert(col *Column)
	remove(col *Column)
}

func newAxisIndex(axisType AxisType, valueType AxisValueType) axisIndex {
	switch axisType {
	case Discrete:
		return &discreteIndex{byKey: make(map[string]*Column), caseFold: valueType == ValueString}
	case Range_:
		return &rangeIndex{}
	case Set:
		return &rangeSetIndex{}
	case Nearest:
		return &nearestIndex{}
	case RuleAxis:
		return &ruleIndex{byName: make(map[string]*Column)}
	default:
		return &discreteIndex{byKey: make(map[string]*Column)}
	}
}

// discreteIndex backs DISCRETE axes: canonical value string -> Column. String
// values canonicalize case-insensitively (column names on discrete/string
// axes are unique case-insensitively); other value types compare exactly.
type discreteIndex struct {
	byKey    map[string]*Column
	caseFold bool
}

func (d *discreteIndex) key(v Value) string {
	if d.caseFold {
		return foldCase(v.String())
	}
	return v.String()
}

func (d *discreteIndex) findPoint(point Value) (*Column, bool) {
	c, ok := d.byKey[d.key(point)]
	return c, ok
}
func (d *discreteIndex) overlapsValue(v Value) (*Column, bool) { return d.findPoint(v) }
func (d *discreteIndex) insert(col *Column)                    { d.byKey[d.key(col.Value)] = col }
func (d *discreteIndex) remove(col *Column)                    { delete(d.byKey, d.key(col.Value)) }

func foldCase(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r >= 'A' && r <= 'Z' {
			r += 'a' - 'A'
		}
		out = append(out, r)
	}
	return string(out)
}

// rangeIndex backs RANGE axes. Columns are kept sorted by Low so lookups and
// overlap checks behave like an ordered interval tree keyed by low.
type rangeIndex struct {
	cols []*Column
}

func (r *rangeIndex) findPoint(point Value) (*Column, bool) {
	for _, c := range r.cols {
		if c.Value.(Range).Contains(point) {
			return c, true
		}
	}
	return nil, false
}

func (r *rangeIndex) overlapsValue(v Value) (*Column, bool) {
	candidate := v.(Range)
	for _, c := range r.cols {
		if c.Value.(Range).Overlaps(candidate) {
			return c, true
		}
	}
	return nil, false
}

func (r *rangeIndex) insert(col *Column) {
	r.cols = append(r.cols, col)
	sort.Slice(r.cols, func(i, j int) bool {
		return r.cols[i].Value.(Range).Low.Compare(r.cols[j].Value.(Range).Low) < 0
	})
}

func (r *rangeIndex) remove(col *Column) {
	for i, c := range r.cols {
		if c.ID == col.ID {
			r.cols = append(r.cols[:i], r.cols[i+1:]...)
			return
		}
	}
}

// rangeSetIndex backs SET axes: each column may own multiple range/discrete
// entries, all checked for overlap/containment.
type rangeSetIndex struct {
	cols []*Column
}

func (r *rangeSetIndex) findPoint(point Value) (*Column, bool) {
	for _, c := range r.cols {
		if c.Value.(RangeSet).Contains(point) {
			return c, true
		}
	}
	return nil, false
}

func (r *rangeSetIndex) overlapsValue(v Value) (*Column, bool) {
	candidate := v.(RangeSet)
	for _, c := range r.cols {
		if c.Value.(RangeSet).Overlaps(candidate) {
			return c, true
		}
	}
	return nil, false
}

func (r *rangeSetIndex) insert(col *Column) { r.cols = append(r.cols, col) }
func (r *rangeSetIndex) remove(col *Column) {
	for i, c := range r.cols {
		if c.ID == col.ID {
			r.cols = append(r.cols[:i], r.cols[i+1:]...)
			return
		}
	}
}

// nearestIndex backs NEAREST axes: a linear scan over all columns, returning
// the column whose value minimizes the type's distance metric from the query
// point. Ties are broken by insertion order (the order cols were appended).
type nearestIndex struct {
	cols []*Column
}

// NEAREST axes never reject a value as "overlapping" — any number of points
// may coexist; overlapsValue always reports no conflict.
func (n *nearestIndex) overlapsValue(Value) (*Column, bool) { return nil, false }

func (n *nearestIndex) findPoint(point Value) (*Column, bool) {
	var best *Column
	bestDist := 0.0
	for _, c := range n.cols {
		d, err := Distance(c.Value, point)
		if err != nil {
			continue
		}
		if best == nil || d < bestDist {
			best = c
			bestDist = d
		}
	}
	if best == nil {
		return nil, false
	}
	return best, true
}

func (n *nearestIndex) insert(col *Column) { n.cols = append(n.cols, col) }
func (n *nearestIndex) remove(col *Column) {
	for i, c := range n.cols {
		if c.ID == col.ID {
			n.cols = append(n.cols[:i], n.cols[i+1:]...)
			return
		}
	}
}

// ruleIndex backs RULE axes: lookups are by string rule name, stored in the
// column's "name" meta-property, not by the Expression value itself.
type ruleIndex struct {
	byName map[string]*Column
}

func ruleColumnName(col *Column) string {
	if name, ok := col.Meta.Get("name"); ok {
		if s, ok := name.(string); ok {
			return s
		}
	}
	return ""
}

// findPoint looks a rule column up by its name, case-insensitively; only a
// StringValue point can match. Axis.FindColumn calls it for RULE axes.
func (r *ruleIndex) findPoint(point Value) (*Column, bool) {
	name, ok := point.(StringValue)
	if !ok {
		return nil, false
	}
	c, ok := r.byName[foldCase(string(name))]
	return c, ok
}
func (r *ruleIndex) overlapsValue(v Value) (*Column, bool) { return r.findPoint(v) }
func (r *ruleIndex) insert(col *Column) {
	if name := ruleColumnName(col); name != "" {
		r.byName[foldCase(name)] = col
	}
}
func (r *ruleIndex) remove(col *Column) {
	if name := ruleColumnName(col); name != "" {
		delete(r.byName, foldCase(name))
	}
}
