package domain

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"ncube/pkg/domain/metaprops"
)

// ColumnIDSet is a coordinate binding: one column id per axis, keyed by axis
// id. It is the cellMap key shape, canonicalized by Key so that two bindings
// built in different axis orders still collide correctly.
type ColumnIDSet map[int64]ColumnID

// Key returns a canonical, order-independent string encoding of the set,
// suitable for use as a map key.
func (s ColumnIDSet) Key() string {
	ids := make([]int64, 0, len(s))
	for axisID := range s {
		ids = append(ids, axisID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	var b strings.Builder
	for i, axisID := range ids {
		if i > 0 {
			b.WriteByte('|')
		}
		b.WriteString(strconv.FormatInt(axisID, 10))
		b.WriteByte(':')
		b.WriteString(strconv.FormatInt(int64(s[axisID]), 10))
	}
	return b.String()
}

// RuleResult is one fired coordinate/value pair produced by Lookup when the
// cube has one or more RULE axes. RuleNames maps each RULE axis's name to the
// name of the column that fired for this result.
type RuleResult struct {
	RuleNames map[string]string
	Value     any
}

// RuleInfo accumulates every result Lookup produced. For a cube with no RULE
// axes it holds exactly one entry.
type RuleInfo struct {
	Results []RuleResult
}

// Cube is a single named decision table: an ordered set of axes and a sparse
// map from coordinate bindings to cell values.
type Cube struct {
	Name           string
	AppID          ApplicationID
	DefaultValue   any
	HasDefaultCell bool
	Meta           metaprops.Container

	// IndexFormat selects the JSON wire encoding MarshalJSON emits and the
	// one UnmarshalJSON expects: false (the default) is the column-list
	// form keying each cell by axis name, true is the indexed form keying
	// each cell by column id.
	IndexFormat bool

	axes     []*Axis
	axisByID map[int64]*Axis
	nextID   int64
	cells    map[string]any
	sha1     string
	dirty    bool
}

// NewCube constructs an empty cube bound to appID.
func NewCube(name string, appID ApplicationID) *Cube {
	return &Cube{
		Name:     name,
		AppID:    appID,
		Meta:     metaprops.New(),
		axisByID: make(map[int64]*Axis),
		cells:    make(map[string]any),
		dirty:    true,
	}
}

// AddAxis appends an axis, rejecting a duplicate name (case-insensitively,
// per the case-insensitive naming rule shared by cubes, axes and columns).
func (c *Cube) AddAxis(name string, axisType AxisType, valueType AxisValueType, order ColumnOrder, hasDefault bool) (*Axis, error) {
	if _, ok := c.GetAxis(name); ok {
		return nil, IllegalArgumentError{Axis: name, Message: fmt.Sprintf("cube %s already has an axis named %s", c.Name, name)}
	}
	c.nextID++
	axis, err := NewAxis(c.nextID, name, axisType, valueType, order, hasDefault)
	if err != nil {
		return nil, err
	}
	c.axes = append(c.axes, axis)
	c.axisByID[axis.ID()] = axis
	c.dirty = true
	return axis, nil
}

// GetAxis looks an axis up by name, case-insensitively.
func (c *Cube) GetAxis(name string) (*Axis, bool) {
	for _, a := range c.axes {
		if strings.EqualFold(a.Name(), name) {
			return a, true
		}
	}
	return nil, false
}

// Axes returns the cube's axes in declaration order.
func (c *Cube) Axes() []*Axis {
	out := make([]*Axis, len(c.axes))
	copy(out, c.axes)
	return out
}

func (c *Cube) bind(coord map[string]any) (map[int64][]*Column, error) {
	bound := make(map[int64][]*Column, len(c.axes))
	for _, axis := range c.axes {
		if axis.Type() == RuleAxis {
			// RULE axes are bound by the caller via ruleColumnsForCoordinate,
			// since which columns fire depends on expression evaluation, not
			// a single-valued coordinate lookup.
			continue
		}
		query, ok := coord[axis.Name()]
		if !ok {
			if axis.DefaultColumn() != nil {
				bound[axis.ID()] = []*Column{axis.DefaultColumn()}
				continue
			}
			return nil, CoordinateNotFoundError{Axis: axis.Name(), Value: nil}
		}
		col, err := axis.FindColumn(query)
		if err != nil {
			return nil, err
		}
		bound[axis.ID()] = []*Column{col}
	}
	return bound, nil
}

// SetCell stores value at the coordinate named by coord, a map from axis name
// to a query value for every non-default-bound, non-RULE axis in the cube.
func (c *Cube) SetCell(coord map[string]any, value any) error {
	bound, err := c.bind(coord)
	if err != nil {
		return err
	}
	set := ColumnIDSet{}
	for axisID, cols := range bound {
		set[axisID] = cols[0].ID
	}
	c.cells[set.Key()] = value
	c.dirty = true
	return nil
}

// ruleColumnsForCoordinate evaluates a RULE axis's columns against coord
// using evaluator, returning the columns whose condition is true. When
// ruleStart is non-empty, only the columns from that name onward (in display
// order) are considered, per the "resume from a given rule" restart
// semantics of GetRuleColumnsStartingAt. When no column fires the result is
// empty, and Lookup reports a CoordinateNotFoundError for the axis.
func ruleColumnsForCoordinate(axis *Axis, coord map[string]any, evaluator ExpressionEvaluator, ruleStart string) ([]*Column, error) {
	candidates, err := axis.GetRuleColumnsStartingAt(ruleStart)
	if err != nil {
		return nil, err
	}
	var fired []*Column
	for _, col := range candidates {
		expr, ok := col.Value.(Expression)
		if !ok {
			continue
		}
		ok, err := evaluator.Evaluate(expr, coord)
		if err != nil {
			return nil, err
		}
		if ok {
			fired = append(fired, col)
		}
	}
	if len(fired) == 0 && axis.DefaultColumn() != nil {
		fired = append(fired, axis.DefaultColumn())
	}
	return fired, nil
}

// Lookup binds coord against every axis and returns the cell value(s) found.
// Cubes with no RULE axis produce exactly one result; cubes with one or more
// RULE axes may produce several, one per combination of fired rule columns,
// reported in RuleInfo. ruleStart, if non-empty, names the rule column each
// RULE axis resumes evaluation from rather than its first column.
func (c *Cube) Lookup(coord map[string]any, evaluator ExpressionEvaluator, ruleStart string) (any, *RuleInfo, error) {
	bound, err := c.bind(coord)
	if err != nil {
		return nil, nil, err
	}

	var ruleAxes []*Axis
	for _, axis := range c.axes {
		if axis.Type() == RuleAxis {
			ruleAxes = append(ruleAxes, axis)
		}
	}

	combos := []map[int64]*Column{{}}
	for _, axis := range ruleAxes {
		if evaluator == nil {
			return nil, nil, IllegalStateError{Message: fmt.Sprintf("cube %s has a RULE axis %s but no expression evaluator was supplied", c.Name, axis.Name())}
		}
		fired, err := ruleColumnsForCoordinate(axis, coord, evaluator, ruleStart)
		if err != nil {
			return nil, nil, err
		}
		if len(fired) == 0 {
			return nil, nil, CoordinateNotFoundError{Axis: axis.Name(), Value: coord}
		}
		var next []map[int64]*Column
		for _, prefix := range combos {
			for _, col := range fired {
				m := make(map[int64]*Column, len(prefix)+1)
				for k, v := range prefix {
					m[k] = v
				}
				m[axis.ID()] = col
				next = append(next, m)
			}
		}
		combos = next
	}

	info := &RuleInfo{}
	for _, combo := range combos {
		set := ColumnIDSet{}
		for axisID, col := range bound {
			set[axisID] = col[0].ID
		}
		names := map[string]string{}
		for _, axis := range ruleAxes {
			col := combo[axis.ID()]
			set[axis.ID()] = col.ID
			names[axis.Name()] = ruleColumnName(col)
		}
		value, ok := c.cells[set.Key()]
		if !ok {
			if !c.HasDefaultCell {
				continue
			}
			value = c.DefaultValue
		}
		info.Results = append(info.Results, RuleResult{RuleNames: names, Value: value})
	}

	if len(info.Results) == 0 {
		if c.HasDefaultCell {
			return c.DefaultValue, &RuleInfo{Results: []RuleResult{{Value: c.DefaultValue}}}, nil
		}
		return nil, nil, CoordinateNotFoundError{Axis: c.Name, Value: coord}
	}
	return info.Results[0].Value, info, nil
}

// Clone returns a deep, independent copy of the cube via its own JSON codec,
// re-parsing every column value through the target axis's declared type.
func (c *Cube) Clone() *Cube {
	data, err := c.MarshalJSON()
	if err != nil {
		panic(fmt.Errorf("clone cube %s: %w", c.Name, err))
	}
	clone := NewCube(c.Name, c.AppID)
	if err := clone.UnmarshalJSON(data); err != nil {
		panic(fmt.Errorf("clone cube %s: %w", c.Name, err))
	}
	return clone
}

// Sha1 returns the stable content hash of the cube: axis names/types/order,
// column values in axis column order, and every cell. Meta-properties are not
// part of the hash. Renaming an axis preserves the declared-case text but the
// hash is computed over the canonicalized shape, so case-only renames and
// re-declaring columns in the same SORTED order do not change it; altering a
// cell, a column's value or default-flag, or an axis's type does.
func (c *Cube) Sha1() string {
	h := sha1.New()
	fmt.Fprintf(h, "cube:%s\n", strings.ToLower(c.Name))
	for _, axis := range c.axes {
		fmt.Fprintf(h, "axis:%s:%s:%s:%s\n", strings.ToLower(axis.Name()), axis.Type(), axis.ValueType(), axis.Order())
		for _, col := range axis.Columns() {
			fmt.Fprintf(h, "col:%s\n", col.Value.String())
		}
		if axis.HasDefault() {
			fmt.Fprint(h, "col:default\n")
		}
	}
	keys := make([]string, 0, len(c.cells))
	for k := range c.cells {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(h, "cell:%s=%v\n", k, c.cells[k])
	}
	c.sha1 = hex.EncodeToString(h.Sum(nil))
	c.dirty = false
	return c.sha1
}

// wireColumn/wireAxis/wireCube mirror the cube export/import wire shape:
// axes are emitted with their columns inline rather than as a side index.
// Cells support two encodings (§6): column-list form keys a cell's binding
// by axis name (map<axisName,colId>), indexed form inverts it (map<colId,
// axisName>). Which one a cube emits and expects is the IndexFormat toggle.
type wireColumn struct {
	ID           ColumnID       `json:"id"`
	Value        any            `json:"value,omitempty"`
	Type         string         `json:"type,omitempty"`
	Default      bool           `json:"default,omitempty"`
	DisplayOrder int32          `json:"displayOrder"`
	Meta         map[string]any `json:"metaProperties,omitempty"`
}

type wireAxis struct {
	ID        int64          `json:"id"`
	Name      string         `json:"name"`
	Type      AxisType       `json:"type"`
	ValueType AxisValueType  `json:"valueType"`
	Order     ColumnOrder    `json:"preferredOrder"`
	Default   bool           `json:"hasDefault"`
	Meta      map[string]any `json:"metaProperties,omitempty"`
	Columns   []wireColumn   `json:"columns"`
}

// wireCell carries its id binding as raw JSON so the same struct serves both
// encodings; the caller decodes Key according to the cube's IndexFormat.
type wireCell struct {
	Key   json.RawMessage `json:"id"`
	Value any             `json:"value"`
}

type wireCube struct {
	Name           string         `json:"name"`
	IndexFormat    bool           `json:"indexFormat,omitempty"`
	DefaultValue   any            `json:"defaultCellValue,omitempty"`
	HasDefaultCell bool           `json:"hasDefaultCell,omitempty"`
	Meta           map[string]any `json:"metaProperties,omitempty"`
	Axes           []wireAxis     `json:"axes"`
	Cells          []wireCell     `json:"cells"`
}

// MarshalJSON emits the cube's wire form (§6): every axis with its columns
// inline, and cells keyed per c.IndexFormat — column-list form (the default)
// keys each cell by axis name, indexed form by column id.
func (c *Cube) MarshalJSON() ([]byte, error) {
	w := wireCube{
		Name:           c.Name,
		IndexFormat:    c.IndexFormat,
		DefaultValue:   c.DefaultValue,
		HasDefaultCell: c.HasDefaultCell,
		Meta:           c.Meta.Raw(),
	}
	axisNameByID := make(map[int64]string, len(c.axes))
	for _, axis := range c.axes {
		axisNameByID[axis.ID()] = axis.Name()
		wa := wireAxis{
			ID:        axis.ID(),
			Name:      axis.Name(),
			Type:      axis.Type(),
			ValueType: axis.ValueType(),
			Order:     axis.Order(),
			Default:   axis.HasDefault(),
			Meta:      axis.Meta().Raw(),
		}
		for _, col := range axis.Columns() {
			wa.Columns = append(wa.Columns, wireColumn{
				ID:           col.ID,
				Value:        valueToWire(col.Value),
				DisplayOrder: col.DisplayOrder,
				Meta:         col.Meta.Raw(),
			})
		}
		if axis.HasDefault() {
			d := axis.DefaultColumn()
			wa.Columns = append(wa.Columns, wireColumn{ID: d.ID, Default: true, DisplayOrder: d.DisplayOrder, Meta: d.Meta.Raw()})
		}
		w.Axes = append(w.Axes, wa)
	}
	for key, value := range c.cells {
		var keyRaw json.RawMessage
		var err error
		if c.IndexFormat {
			keyRaw, err = json.Marshal(c.indexedCellKey(key, axisNameByID))
		} else {
			keyRaw, err = json.Marshal(c.namedCellKey(key, axisNameByID))
		}
		if err != nil {
			return nil, err
		}
		w.Cells = append(w.Cells, wireCell{Key: keyRaw, Value: value})
	}
	return json.Marshal(w)
}

func valueToWire(v Value) any {
	if v == nil {
		return nil
	}
	if expr, ok := v.(Expression); ok {
		s := expr.Cmd
		if expr.URL != "" {
			s = "url|" + expr.URL
		}
		if expr.Cacheable {
			s = "cache|" + s
		}
		return s
	}
	return v.String()
}

// namedCellKey converts an internal axisID-keyed ColumnIDSet.Key() string
// into the axis-name-keyed map the column-list wire form uses.
func (c *Cube) namedCellKey(key string, axisNameByID map[int64]string) map[string]ColumnID {
	out := map[string]ColumnID{}
	for _, part := range strings.Split(key, "|") {
		kv := strings.SplitN(part, ":", 2)
		if len(kv) != 2 {
			continue
		}
		axisID, _ := strconv.ParseInt(kv[0], 10, 64)
		colID, _ := strconv.ParseInt(kv[1], 10, 64)
		if name, ok := axisNameByID[axisID]; ok {
			out[name] = ColumnID(colID)
		}
	}
	return out
}

// indexedCellKey is namedCellKey inverted: column id to axis name, the
// indexed wire form's cell key shape.
func (c *Cube) indexedCellKey(key string, axisNameByID map[int64]string) map[ColumnID]string {
	out := map[ColumnID]string{}
	for _, part := range strings.Split(key, "|") {
		kv := strings.SplitN(part, ":", 2)
		if len(kv) != 2 {
			continue
		}
		axisID, _ := strconv.ParseInt(kv[0], 10, 64)
		colID, _ := strconv.ParseInt(kv[1], 10, 64)
		if name, ok := axisNameByID[axisID]; ok {
			out[ColumnID(colID)] = name
		}
	}
	return out
}

// UnmarshalJSON reverses MarshalJSON, decoding whichever of the two cell
// encodings the payload's indexFormat flag names. Column values are parsed
// back using each axis's declared type, so round-tripping a cube through
// JSON reproduces its typed Values exactly in either encoding.
func (c *Cube) UnmarshalJSON(data []byte) error {
	var w wireCube
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	c.Name = w.Name
	c.IndexFormat = w.IndexFormat
	c.DefaultValue = w.DefaultValue
	c.HasDefaultCell = w.HasDefaultCell
	c.Meta = metaprops.FromRaw(w.Meta)
	c.axisByID = make(map[int64]*Axis)
	c.cells = make(map[string]any)
	c.axes = nil

	for _, wa := range w.Axes {
		axis, err := NewAxis(wa.ID, wa.Name, wa.Type, wa.ValueType, wa.Order, false)
		if err != nil {
			return err
		}
		axis.SetMeta(metaprops.FromRaw(wa.Meta))
		for _, wc := range wa.Columns {
			if wc.Default {
				axis.RestoreDefaultColumn(&Column{ID: wc.ID, Meta: metaprops.FromRaw(wc.Meta)})
				continue
			}
			token := fmt.Sprintf("%v", wc.Value)
			var v Value
			var err error
			switch axis.Type() {
			case Discrete:
				v, err = ParseDiscreteValue(axis.Name(), axis.ValueType(), token)
			case Range_:
				v, err = ParseRangeValue(axis.Name(), axis.ValueType(), token)
			case Set:
				v, err = ParseSetValue(axis.Name(), axis.ValueType(), token)
			case Nearest:
				v, err = ParseNearestValue(axis.Name(), axis.ValueType(), token)
			case RuleAxis:
				v, err = ParseRuleValue(token)
			}
			if err != nil {
				return err
			}
			axis.RestoreColumn(&Column{ID: wc.ID, Value: v, Meta: metaprops.FromRaw(wc.Meta)})
		}
		if axis.ID() > c.nextID {
			c.nextID = axis.ID()
		}
		c.axes = append(c.axes, axis)
		c.axisByID[axis.ID()] = axis
	}

	axisByName := make(map[string]*Axis, len(c.axes))
	for _, axis := range c.axes {
		axisByName[strings.ToLower(axis.Name())] = axis
	}
	for _, wc := range w.Cells {
		set := ColumnIDSet{}
		if w.IndexFormat {
			var key map[ColumnID]string
			if err := json.Unmarshal(wc.Key, &key); err != nil {
				return err
			}
			for colID, axisName := range key {
				axis, ok := axisByName[strings.ToLower(axisName)]
				if !ok {
					return IllegalArgumentError{Axis: axisName, Message: "cell references unknown axis"}
				}
				set[axis.ID()] = colID
			}
		} else {
			var key map[string]ColumnID
			if err := json.Unmarshal(wc.Key, &key); err != nil {
				return err
			}
			for axisName, colID := range key {
				axis, ok := axisByName[strings.ToLower(axisName)]
				if !ok {
					return IllegalArgumentError{Axis: axisName, Message: "cell references unknown axis"}
				}
				set[axis.ID()] = colID
			}
		}
		c.cells[set.Key()] = wc.Value
	}
	c.dirty = true
	return nil
}
