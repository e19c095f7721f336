package domain

import (
	"fmt"
	"sort"
	"strings"

	"ncube/pkg/domain/metaprops"
)

// Axis is one dimension of a Cube: a typed, ordered collection of Columns
// plus the index structure that binds coordinate values to them.
type Axis struct {
	id        int64
	name      string
	axisType  AxisType
	valueType AxisValueType
	order     ColumnOrder
	reference *RefSpec
	meta      metaprops.Container

	columns       []*Column
	defaultColumn *Column
	nextSeq       int64
	idx           axisIndex
}

// NewAxis constructs an Axis, applying the RULE-axis shape coercion and
// rejecting a default column declared on a NEAREST axis (NEAREST always binds
// to the nearest column; a catch-all default would never be reachable).
func NewAxis(id int64, name string, axisType AxisType, valueType AxisValueType, order ColumnOrder, hasDefault bool) (*Axis, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, IllegalArgumentError{Message: "axis name must not be empty"}
	}
	if !axisType.Valid() {
		return nil, IllegalArgumentError{Axis: name, Message: fmt.Sprintf("unknown axis type %q", axisType)}
	}
	if !valueType.Valid() {
		return nil, IllegalArgumentError{Axis: name, Message: fmt.Sprintf("unknown value type %q", valueType)}
	}
	if !order.Valid() {
		return nil, IllegalArgumentError{Axis: name, Message: fmt.Sprintf("unknown column order %q", order)}
	}
	if axisType == Nearest && hasDefault {
		return nil, IllegalArgumentError{Axis: name, Message: "NEAREST axes cannot declare a default column"}
	}
	valueType, order = normalizeAxisShape(axisType, valueType, order)

	a := &Axis{
		id:        id,
		name:      name,
		axisType:  axisType,
		valueType: valueType,
		order:     order,
		meta:      metaprops.New(),
		idx:       newAxisIndex(axisType, valueType),
	}
	if hasDefault {
		if _, err := a.AddDefaultColumn(nil); err != nil {
			return nil, err
		}
	}
	return a, nil
}

func (a *Axis) ID() int64                { return a.id }
func (a *Axis) Name() string             { return a.name }
func (a *Axis) Type() AxisType           { return a.axisType }
func (a *Axis) ValueType() AxisValueType { return a.valueType }
func (a *Axis) Order() ColumnOrder       { return a.order }
func (a *Axis) Reference() *RefSpec      { return a.reference }
func (a *Axis) Meta() metaprops.Container {
	return a.meta
}
func (a *Axis) SetMeta(m metaprops.Container) { a.meta = m }
func (a *Axis) SetReference(r *RefSpec)       { a.reference = r }
func (a *Axis) HasDefault() bool              { return a.defaultColumn != nil }

// Columns returns the axis's non-default columns in display order.
func (a *Axis) Columns() []*Column {
	out := make([]*Column, len(a.columns))
	copy(out, a.columns)
	return out
}

// DefaultColumn returns the axis's default column, or nil if it has none.
func (a *Axis) DefaultColumn() *Column { return a.defaultColumn }

func (a *Axis) nextColumnID() ColumnID {
	a.nextSeq++
	return EncodeColumnID(a.id, a.nextSeq)
}

// parseColumnValue converts a raw literal into the Value shape this axis's
// type expects: a point for DISCRETE/NEAREST/RULE, a Range for RANGE, a
// RangeSet for SET.
func (a *Axis) parseColumnValue(raw any) (Value, error) {
	if v, ok := raw.(Value); ok {
		return v, nil
	}
	token := fmt.Sprintf("%v", raw)
	switch a.axisType {
	case Discrete:
		return ParseDiscreteValue(a.name, a.valueType, token)
	case Range_:
		return ParseRangeValue(a.name, a.valueType, token)
	case Set:
		return ParseSetValue(a.name, a.valueType, token)
	case Nearest:
		return ParseNearestValue(a.name, a.valueType, token)
	case RuleAxis:
		return ParseRuleValue(token)
	default:
		return nil, IllegalArgumentError{Axis: a.name, Message: fmt.Sprintf("unknown axis type %q", a.axisType)}
	}
}

// AddColumn parses value per the axis's type/value-type, rejects an
// overlapping or duplicate binding, and appends the new column in the
// position its ColumnOrder dictates. A reference axis's columns are
// read-only: they are populated by ReferenceAxisLoader, not added directly.
func (a *Axis) AddColumn(value any, meta map[string]any) (*Column, error) {
	if a.reference != nil {
		return nil, IllegalStateError{Message: fmt.Sprintf("axis %s is a reference axis; its columns are read-only", a.name)}
	}
	v, err := a.parseColumnValue(value)
	if err != nil {
		return nil, err
	}
	if existing, ok := a.idx.overlapsValue(v); ok {
		return nil, AxisOverlapError{Axis: a.name, Message: fmt.Sprintf("value %s overlaps existing column %s", v, existing.Value)}
	}
	col := &Column{
		ID:    a.nextColumnID(),
		Value: v,
		Meta:  metaprops.FromRaw(meta),
	}
	a.insertColumn(col)
	return col, nil
}

// RestoreColumn inserts a column built elsewhere (typically by JSON
// deserialization) under its own explicit id, bypassing overlap validation
// since the caller is replaying a previously-valid state. It advances the
// axis's id sequence so subsequently added columns never collide with a
// restored one.
func (a *Axis) RestoreColumn(col *Column) {
	if col.ID.IsPending() {
		col.ID = a.nextColumnID()
	} else if _, seq := DecodeColumnID(col.ID); seq > a.nextSeq {
		a.nextSeq = seq
	}
	col.DisplayOrder = int32(len(a.columns))
	a.columns = append(a.columns, col)
	if a.order == Sorted {
		sortColumns(a.columns)
	}
	a.idx.insert(col)
}

// RestoreDefaultColumn installs col as the axis's default column under its
// own explicit id, used by JSON deserialization.
func (a *Axis) RestoreDefaultColumn(col *Column) {
	if _, seq := DecodeColumnID(col.ID); seq > a.nextSeq {
		a.nextSeq = seq
	}
	col.DisplayOrder = MaxDisplayOrder
	a.defaultColumn = col
}

// AddDefaultColumn adds the axis's catch-all default column. It is a no-op
// error if one already exists.
func (a *Axis) AddDefaultColumn(meta map[string]any) (*Column, error) {
	if a.axisType == Nearest {
		return nil, IllegalArgumentError{Axis: a.name, Message: "NEAREST axes cannot have a default column"}
	}
	if a.defaultColumn != nil {
		return nil, IllegalStateError{Message: fmt.Sprintf("axis %s already has a default column", a.name)}
	}
	col := &Column{
		ID:           a.nextColumnID(),
		DisplayOrder: MaxDisplayOrder,
		Meta:         metaprops.FromRaw(meta),
	}
	a.defaultColumn = col
	return col, nil
}

// insertColumn appends col to the column list, re-establishing sort order for
// SORTED axes, and registers it in the lookup index.
func (a *Axis) insertColumn(col *Column) {
	col.DisplayOrder = int32(len(a.columns))
	a.columns = append(a.columns, col)
	if a.order == Sorted {
		sortColumns(a.columns)
	}
	a.idx.insert(col)
}

func sortColumns(cols []*Column) {
	sort.SliceStable(cols, func(i, j int) bool {
		return cols[i].Value.Compare(cols[j].Value) < 0
	})
}

// FindColumn binds query to the column that owns it. RULE axes require an
// explicit string rule name; passing any other shape is a programming error,
// not a data error, and is reported as such.
func (a *Axis) FindColumn(query any) (*Column, error) {
	if a.axisType == RuleAxis {
		name, ok := query.(string)
		if !ok {
			return nil, IllegalArgumentError{Axis: a.name, Message: "RULE axis lookup requires a string rule name (programming error)"}
		}
		if col, ok := a.idx.findPoint(StringValue(name)); ok {
			return col, nil
		}
		if a.defaultColumn != nil {
			return a.defaultColumn, nil
		}
		return nil, CoordinateNotFoundError{Axis: a.name, Value: name}
	}

	v, err := a.coerceQueryValue(query)
	if err != nil {
		return nil, err
	}
	if col, ok := a.idx.findPoint(v); ok {
		return col, nil
	}
	if a.defaultColumn != nil {
		return a.defaultColumn, nil
	}
	return nil, CoordinateNotFoundError{Axis: a.name, Value: query}
}

func (a *Axis) coerceQueryValue(query any) (Value, error) {
	if v, ok := query.(Value); ok {
		return v, nil
	}
	token := fmt.Sprintf("%v", query)
	if a.axisType == Nearest {
		return ParseNearestValue(a.name, a.valueType, token)
	}
	return ParseDiscreteValue(a.name, a.valueType, token)
}

// GetRuleColumnsStartingAt returns the RULE axis's columns in DISPLAY order,
// starting at (and including) the column named by name. An empty name starts
// at the beginning. Used to implement the "resume from a given rule" restart
// semantics of a rule-axis cube execution.
func (a *Axis) GetRuleColumnsStartingAt(name string) ([]*Column, error) {
	if a.axisType != RuleAxis {
		return nil, IllegalArgumentError{Axis: a.name, Message: "GetRuleColumnsStartingAt requires a RULE axis"}
	}
	if name == "" {
		return a.Columns(), nil
	}
	cols := a.columns
	for i, c := range cols {
		if strings.EqualFold(ruleColumnName(c), name) {
			out := make([]*Column, len(cols)-i)
			copy(out, cols[i:])
			return out, nil
		}
	}
	return nil, CoordinateNotFoundError{Axis: a.name, Value: name}
}

// UpdateColumns atomically reconciles the axis's column set against newCols:
// columns with a positive existing id are updated in place, columns with a
// negative placeholder id are treated as additions and assigned fresh ids,
// and any existing column absent from newCols is removed. The whole batch is
// validated (re-parsed and checked for overlaps) against a scratch copy of the
// index before anything is committed, so a single invalid entry leaves the
// axis untouched. A reference axis's columns are read-only and cannot be
// updated through this path.
func (a *Axis) UpdateColumns(newCols []Column) error {
	if a.reference != nil {
		return IllegalStateError{Message: fmt.Sprintf("axis %s is a reference axis; its columns are read-only", a.name)}
	}
	scratchIdx := newAxisIndex(a.axisType, a.valueType)
	keep := make(map[ColumnID]*Column, len(a.columns))
	for _, c := range a.columns {
		keep[c.ID] = c
	}

	type resolved struct {
		col     *Column
		isNew   bool
		existed *Column
	}
	var plan []resolved

	for _, nc := range newCols {
		nc := nc
		if nc.ID.IsPending() {
			v, err := a.parseColumnValue(nc.Value)
			if err != nil {
				return err
			}
			if existing, ok := scratchIdx.overlapsValue(v); ok {
				return AxisOverlapError{Axis: a.name, Message: fmt.Sprintf("value %s overlaps existing column %s", v, existing.Value)}
			}
			col := &Column{Value: v, Meta: nc.Meta.Clone()}
			scratchIdx.insert(col)
			plan = append(plan, resolved{col: col, isNew: true})
			continue
		}
		existing, ok := keep[nc.ID]
		if !ok {
			return IllegalArgumentError{Axis: a.name, Message: fmt.Sprintf("column id %d does not belong to axis %s", nc.ID, a.name)}
		}
		v := existing.Value
		if nc.Value != nil {
			parsed, err := a.parseColumnValue(nc.Value)
			if err != nil {
				return err
			}
			v = parsed
		}
		if other, ok := scratchIdx.overlapsValue(v); ok && other.ID != nc.ID {
			return AxisOverlapError{Axis: a.name, Message: fmt.Sprintf("value %s overlaps existing column %s", v, other.Value)}
		}
		merged := &Column{ID: nc.ID, Value: v, Meta: nc.Meta.Clone()}
		scratchIdx.insert(merged)
		delete(keep, nc.ID)
		plan = append(plan, resolved{col: merged, existed: existing})
	}

	// Everything validated: commit. Remaining entries in keep were dropped.
	a.columns = a.columns[:0]
	a.idx = newAxisIndex(a.axisType, a.valueType)
	for _, r := range plan {
		col := r.col
		if r.isNew {
			col.ID = a.nextColumnID()
		}
		a.insertColumn(col)
	}
	return nil
}
