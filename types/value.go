package types

import (
	"fmt"
	"math"
	"math/big"
	"strconv"
)

// StorageType is the type of a storage value or of a formal parameter:
// a basic type name or a fully qualified class name.
type StorageType string

// Basic storage types.
const (
	BooleanType StorageType = "boolean"
	ByteType    StorageType = "byte"
	CharType    StorageType = "char"
	ShortType   StorageType = "short"
	IntType     StorageType = "int"
	LongType    StorageType = "long"
	FloatType   StorageType = "float"
	DoubleType  StorageType = "double"
)

// Class types with a dedicated storage value kind.
const (
	BigIntegerType StorageType = "java.math.BigInteger"
	StringType     StorageType = "java.lang.String"
)

// BasicTypes lists the basic storage types in their canonical order.
var BasicTypes = []StorageType{BooleanType, ByteType, CharType, ShortType, IntType, LongType, FloatType, DoubleType}

// IsBasic reports whether t is one of the basic types.
func (t StorageType) IsBasic() bool {
	for _, b := range BasicTypes {
		if t == b {
			return true
		}
	}
	return false
}

// ValueKind discriminates the variants of StorageValue. The zero kind
// is invalid.
type ValueKind uint8

const (
	KindNull ValueKind = iota + 1
	KindBoolean
	KindByte
	KindChar
	KindShort
	KindInt
	KindLong
	KindFloat
	KindDouble
	KindBigInteger
	KindString
	KindReference
	KindEnum
)

var valueKindNames = [...]string{
	KindNull:       "null",
	KindBoolean:    "boolean",
	KindByte:       "byte",
	KindChar:       "char",
	KindShort:      "short",
	KindInt:        "int",
	KindLong:       "long",
	KindFloat:      "float",
	KindDouble:     "double",
	KindBigInteger: "biginteger",
	KindString:     "string",
	KindReference:  "reference",
	KindEnum:       "enum",
}

func (k ValueKind) String() string {
	if int(k) < len(valueKindNames) && valueKindNames[k] != "" {
		return valueKindNames[k]
	}
	return fmt.Sprintf("unknown(%d)", uint8(k))
}

// Valid reports whether k names a variant.
func (k ValueKind) Valid() bool { return k >= KindNull && k <= KindEnum }

// StorageValue is a value held in ledger storage or passed as an actual
// argument. Build values with the constructors below; the tag always
// matches the payload.
type StorageValue struct {
	kind  ValueKind
	b     bool
	i     int64
	f     float64
	big   *big.Int
	s     string
	class string
	ref   StorageReference
}

func NullValue() StorageValue            { return StorageValue{kind: KindNull} }
func BooleanValue(v bool) StorageValue   { return StorageValue{kind: KindBoolean, b: v} }
func ByteValue(v int8) StorageValue      { return StorageValue{kind: KindByte, i: int64(v)} }
func CharValue(v uint16) StorageValue    { return StorageValue{kind: KindChar, i: int64(v)} }
func ShortValue(v int16) StorageValue    { return StorageValue{kind: KindShort, i: int64(v)} }
func IntValue(v int32) StorageValue      { return StorageValue{kind: KindInt, i: int64(v)} }
func LongValue(v int64) StorageValue     { return StorageValue{kind: KindLong, i: v} }
func FloatValue(v float32) StorageValue  { return StorageValue{kind: KindFloat, f: float64(v)} }
func DoubleValue(v float64) StorageValue { return StorageValue{kind: KindDouble, f: v} }
func StringValue(v string) StorageValue  { return StorageValue{kind: KindString, s: v} }

func ReferenceValue(r StorageReference) StorageValue {
	return StorageValue{kind: KindReference, ref: r}
}

// BigIntegerValue wraps a copy of v. A nil v makes a value that fails to
// encode.
func BigIntegerValue(v *big.Int) StorageValue {
	if v == nil {
		return StorageValue{kind: KindBigInteger}
	}
	return StorageValue{kind: KindBigInteger, big: new(big.Int).Set(v)}
}

// EnumValue is the element name of the enumeration class enumClass.
func EnumValue(enumClass, name string) StorageValue {
	return StorageValue{kind: KindEnum, class: enumClass, s: name}
}

// Kind returns the variant of v.
func (v StorageValue) Kind() ValueKind { return v.kind }

// Bool returns the payload of a boolean value.
func (v StorageValue) Bool() (bool, bool) { return v.b, v.kind == KindBoolean }

// Int64 returns the payload of a byte, char, short, int or long value.
func (v StorageValue) Int64() (int64, bool) {
	switch v.kind {
	case KindByte, KindChar, KindShort, KindInt, KindLong:
		return v.i, true
	}
	return 0, false
}

// Float64 returns the payload of a float or double value.
func (v StorageValue) Float64() (float64, bool) {
	return v.f, v.kind == KindFloat || v.kind == KindDouble
}

// BigInt returns a copy of the payload of a big integer value.
func (v StorageValue) BigInt() (*big.Int, bool) {
	if v.kind != KindBigInteger {
		return nil, false
	}
	if v.big == nil {
		return nil, true
	}
	return new(big.Int).Set(v.big), true
}

// Text returns the payload of a string value.
func (v StorageValue) Text() (string, bool) { return v.s, v.kind == KindString }

// Reference returns the payload of a reference value.
func (v StorageValue) Reference() (StorageReference, bool) { return v.ref, v.kind == KindReference }

// Enum returns the class and element name of an enum value.
func (v StorageValue) Enum() (class, name string, ok bool) {
	return v.class, v.s, v.kind == KindEnum
}

// Type returns the storage type of v. Null and reference values have
// no static type and report "reference".
func (v StorageValue) Type() StorageType {
	switch v.kind {
	case KindBoolean:
		return BooleanType
	case KindByte:
		return ByteType
	case KindChar:
		return CharType
	case KindShort:
		return ShortType
	case KindInt:
		return IntType
	case KindLong:
		return LongType
	case KindFloat:
		return FloatType
	case KindDouble:
		return DoubleType
	case KindBigInteger:
		return BigIntegerType
	case KindString:
		return StringType
	case KindEnum:
		return StorageType(v.class)
	}
	return "reference"
}

// Equal reports whether v and o are the same variant with the same payload.
func (v StorageValue) Equal(o StorageValue) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindBoolean:
		return v.b == o.b
	case KindByte, KindChar, KindShort, KindInt, KindLong:
		return v.i == o.i
	case KindFloat, KindDouble:
		return v.f == o.f || (math.IsNaN(v.f) && math.IsNaN(o.f))
	case KindBigInteger:
		if v.big == nil || o.big == nil {
			return v.big == o.big
		}
		return v.big.Cmp(o.big) == 0
	case KindString:
		return v.s == o.s
	case KindReference:
		return v.ref.Equal(o.ref)
	case KindEnum:
		return v.class == o.class && v.s == o.s
	}
	return true
}

func (v StorageValue) String() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindBoolean:
		return strconv.FormatBool(v.b)
	case KindChar:
		return string(rune(v.i))
	case KindByte, KindShort, KindInt, KindLong:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 32)
	case KindDouble:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindBigInteger:
		return v.big.String()
	case KindString:
		return v.s
	case KindReference:
		return v.ref.String()
	case KindEnum:
		return v.class + "." + v.s
	}
	return "<invalid>"
}
