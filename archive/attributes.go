package archive

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// AttributeType is the type of an attribute value.
type AttributeType uint8

// Attribute types.
const (
	TypeUint8 AttributeType = iota + 1
	TypeUint32
	TypeUint64
	TypeInt32
	TypeString
)

var attributeTypeNames = [...]string{
	"", "uint8", "uint32", "uint64", "int32", "string",
}

func (t AttributeType) String() string {
	if t > 0 && int(t) < len(attributeTypeNames) {
		return attributeTypeNames[t]
	}

	return fmt.Sprintf("AttributeType(%d)", t)
}

// Attribute is a typed value attached to an event or a region. Values of
// every type are carried in a uint64; string values are string refs.
type Attribute struct {
	Ref   AttributeRef  `msgpack:"r"`
	Type  AttributeType `msgpack:"t"`
	Value uint64        `msgpack:"v"`
}

// Int32 returns the value of an int32 attribute.
func (a Attribute) Int32() int32 {
	return int32(uint32(a.Value))
}

// StringRef returns the value of a string attribute.
func (a Attribute) StringRef() StringRef {
	return StringRef(a.Value)
}

// AttributeList is an ordered list of attributes. Adding an attribute that
// is already present replaces its value.
type AttributeList []Attribute

func (l *AttributeList) add(ref AttributeRef, t AttributeType, v uint64) {
	for i := range *l {
		if (*l)[i].Ref == ref {
			(*l)[i].Type = t
			(*l)[i].Value = v
			return
		}
	}

	*l = append(*l, Attribute{Ref: ref, Type: t, Value: v})
}

// AddUint8 adds a uint8 attribute.
func (l *AttributeList) AddUint8(ref AttributeRef, v uint8) {
	l.add(ref, TypeUint8, uint64(v))
}

// AddUint32 adds a uint32 attribute.
func (l *AttributeList) AddUint32(ref AttributeRef, v uint32) {
	l.add(ref, TypeUint32, uint64(v))
}

// AddUint64 adds a uint64 attribute.
func (l *AttributeList) AddUint64(ref AttributeRef, v uint64) {
	l.add(ref, TypeUint64, v)
}

// AddInt32 adds an int32 attribute.
func (l *AttributeList) AddInt32(ref AttributeRef, v int32) {
	l.add(ref, TypeInt32, uint64(uint32(v)))
}

// AddStringRef adds a string attribute.
func (l *AttributeList) AddStringRef(ref AttributeRef, v StringRef) {
	l.add(ref, TypeString, uint64(v))
}

// Lookup finds the attribute with the given ref.
func (l AttributeList) Lookup(ref AttributeRef) (Attribute, bool) {
	for _, a := range l {
		if a.Ref == ref {
			return a, true
		}
	}

	return Attribute{}, false
}

// Clone returns a copy of the list.
func (l AttributeList) Clone() AttributeList {
	if l == nil {
		return nil
	}

	return append(AttributeList(nil), l...)
}

// Encode serialises the list with msgpack.
func (l AttributeList) Encode() ([]byte, error) {
	return msgpack.Marshal([]Attribute(l))
}

// DecodeAttributes parses a list produced by Encode.
func DecodeAttributes(b []byte) (AttributeList, error) {
	if len(b) == 0 {
		return nil, nil
	}

	var l []Attribute
	if err := msgpack.Unmarshal(b, &l); err != nil {
		return nil, fmt.Errorf("decode attributes: %w", err)
	}

	return AttributeList(l), nil
}
