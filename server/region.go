// Package server implements the Modbus server request pipeline: frame
// ingest, address/function parsing, mapping dispatch, exception and
// broadcast handling, per spec.md §4.4.
package server

import (
	"sort"

	"github.com/lgili/modbuscore"
)

// Kind identifies a mapping region's data space.
type Kind int

const (
	KindCoil Kind = iota
	KindDiscreteInput
	KindHoldingRegister
	KindInputRegister
)

// Region is a mapping region per spec.md §3 "Server mapping region": a
// contiguous run of addresses of one Kind, backed by storage the pipeline
// reads/writes directly unless read/write callbacks are supplied.
//
// Regions of the same Kind must not overlap; Mapping enforces ordering by
// Start but not overlap (the caller is responsible, as in the teacher's
// handler which owns one flat array per kind).
type Region struct {
	Kind     Kind
	Start    uint16
	Count    uint16
	ReadOnly bool

	// Bits backs KindCoil/KindDiscreteInput regions. Registers backs
	// KindHoldingRegister/KindInputRegister regions. Exactly one is used,
	// selected by Kind.
	Bits      []bool
	Registers []uint16

	// ReadBit/WriteBit and ReadReg/WriteReg, if set, are invoked instead of
	// touching Bits/Registers directly — e.g. to bridge a region to live
	// I/O. Index is relative to Start (0 .. Count-1).
	ReadBit   func(index uint16) (bool, error)
	WriteBit  func(index uint16, value bool) error
	ReadReg   func(index uint16) (uint16, error)
	WriteReg  func(index uint16, value uint16) error
}

// End returns the exclusive end address of the region (Start + Count).
func (r *Region) End() uint16 { return r.Start + r.Count }

// contains reports whether [addr, addr+count) falls entirely within r.
func (r *Region) contains(addr, count uint16) bool {
	if count == 0 {
		return false
	}
	end := uint32(addr) + uint32(count)
	return addr >= r.Start && end <= uint32(r.End())
}

// Mapping holds the address-sorted region tables for each Kind, looked up
// by binary search per spec.md §3 ("O(log N) over an address-sorted
// array").
type Mapping struct {
	byKind [4][]*Region
}

// NewMapping builds an empty mapping.
func NewMapping() *Mapping {
	return &Mapping{}
}

// AddRegion inserts r into its Kind's table, keeping it sorted by Start.
func (m *Mapping) AddRegion(r *Region) {
	table := m.byKind[r.Kind]
	i := sort.Search(len(table), func(i int) bool { return table[i].Start >= r.Start })
	table = append(table, nil)
	copy(table[i+1:], table[i:])
	table[i] = r
	m.byKind[r.Kind] = table
}

// find returns the region of kind covering [addr, addr+count), or nil.
func (m *Mapping) find(kind Kind, addr, count uint16) *Region {
	table := m.byKind[kind]
	// sort.Search finds the first region whose Start is > addr, then steps
	// back one: the covering region (if any) must start at or before addr.
	i := sort.Search(len(table), func(i int) bool { return table[i].Start > addr })
	if i == 0 {
		return nil
	}
	r := table[i-1]
	if r.contains(addr, count) {
		return r
	}
	return nil
}

// ReadBits reads count bool values starting at addr from the region of the
// given kind (KindCoil or KindDiscreteInput). Returns ExIllegalDataAddress
// if no region covers the span, ExServerDeviceFailure if a callback fails.
func (m *Mapping) ReadBits(kind Kind, addr, count uint16) ([]bool, error) {
	r := m.find(kind, addr, count)
	if r == nil {
		return nil, modbuscore.ExIllegalDataAddress
	}
	out := make([]bool, count)
	for i := uint16(0); i < count; i++ {
		idx := addr - r.Start + i
		if r.ReadBit != nil {
			v, err := r.ReadBit(idx)
			if err != nil {
				return nil, modbuscore.ExServerDeviceFailure
			}
			out[i] = v
			continue
		}
		out[i] = r.Bits[idx]
	}
	return out, nil
}

// WriteBits writes values starting at addr into the region of the given
// kind. Returns ExIllegalDataAddress if uncovered, ExIllegalDataAddress if
// the region is read-only, ExServerDeviceFailure on callback error.
func (m *Mapping) WriteBits(kind Kind, addr uint16, values []bool) error {
	r := m.find(kind, addr, uint16(len(values)))
	if r == nil {
		return modbuscore.ExIllegalDataAddress
	}
	if r.ReadOnly {
		return modbuscore.ExIllegalDataAddress
	}
	for i, v := range values {
		idx := addr - r.Start + uint16(i)
		if r.WriteBit != nil {
			if err := r.WriteBit(idx, v); err != nil {
				return modbuscore.ExServerDeviceFailure
			}
			continue
		}
		r.Bits[idx] = v
	}
	return nil
}

// ReadRegisters reads count uint16 values starting at addr from the region
// of the given kind (KindHoldingRegister or KindInputRegister).
func (m *Mapping) ReadRegisters(kind Kind, addr, count uint16) ([]uint16, error) {
	r := m.find(kind, addr, count)
	if r == nil {
		return nil, modbuscore.ExIllegalDataAddress
	}
	out := make([]uint16, count)
	for i := uint16(0); i < count; i++ {
		idx := addr - r.Start + i
		if r.ReadReg != nil {
			v, err := r.ReadReg(idx)
			if err != nil {
				return nil, modbuscore.ExServerDeviceFailure
			}
			out[i] = v
			continue
		}
		out[i] = r.Registers[idx]
	}
	return out, nil
}

// WriteRegisters writes values starting at addr into the region of the
// given kind.
func (m *Mapping) WriteRegisters(kind Kind, addr uint16, values []uint16) error {
	r := m.find(kind, addr, uint16(len(values)))
	if r == nil {
		return modbuscore.ExIllegalDataAddress
	}
	if r.ReadOnly {
		return modbuscore.ExIllegalDataAddress
	}
	for i, v := range values {
		idx := addr - r.Start + uint16(i)
		if r.WriteReg != nil {
			if err := r.WriteReg(idx, v); err != nil {
				return modbuscore.ExServerDeviceFailure
			}
			continue
		}
		r.Registers[idx] = v
	}
	return nil
}
