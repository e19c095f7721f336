package domain

import (
	"math"

	"ncube/pkg/domain/metaprops"
)

// ColumnID packs an axis id into the high 16 bits and a per-axis monotonic
// sequence into the low 48 bits, so ids are globally unique inside a cube and
// stable across serialization. Negative ids are used only transiently, as
// "pending add" markers inside an UpdateColumns batch; they are never
// produced by EncodeColumnID.
type ColumnID int64

const (
	columnIDSeqBits  = 48
	columnIDAxisBits = 16
	columnIDSeqMask  = int64(1)<<columnIDSeqBits - 1
	columnIDAxisMask = int64(1)<<columnIDAxisBits - 1
)

// EncodeColumnID packs an axis id and sequence number into a ColumnID.
func EncodeColumnID(axisID, seq int64) ColumnID {
	return ColumnID((axisID & columnIDAxisMask) << columnIDSeqBits | (seq & columnIDSeqMask))
}

// DecodeColumnID unpacks the axis id and sequence number from a ColumnID.
func DecodeColumnID(id ColumnID) (axisID, seq int64) {
	v := int64(id)
	axisID = (v >> columnIDSeqBits) & columnIDAxisMask
	seq = v & columnIDSeqMask
	return axisID, seq
}

// IsPending reports whether id is a negative placeholder from an
// UpdateColumns batch, denoting a column still to be assigned a real id.
func (id ColumnID) IsPending() bool { return id < 0 }

// MaxDisplayOrder is the display order forced onto every default column so it
// sorts last regardless of the axis's chosen ColumnOrder.
const MaxDisplayOrder = math.MaxInt32

// Column is a single partition of an axis: it binds a Value (or nil for the
// default column) to a stable id.
type Column struct {
	ID           ColumnID
	Value        Value
	DisplayOrder int32
	Meta         metaprops.Container
}

// IsDefault reports whether this is the axis's catch-all default column.
func (c Column) IsDefault() bool { return c.Value == nil }

// Clone returns a deep copy of the column, including its meta-properties.
func (c Column) Clone() Column {
	c.Meta = c.Meta.Clone()
	return c
}
