package codec

import (
	"encoding/hex"
	"math"

	"github.com/blockberries/moka/types"
)

// Storage value selectors.
const (
	valueNull byte = iota
	valueBoolean
	valueByte
	valueChar
	valueShort
	valueInt
	valueLong
	valueFloat
	valueDouble
	valueBigInteger
	valueString
	valueReference
	valueEnum
)

// classTypeSelector follows the basic type selectors 0..7.
const classTypeSelector byte = 8

// Update selectors.
const (
	updateClassTag byte = iota
	updateField
)

func (e *Encoder) putTransactionReference(field string, r types.TransactionReference) {
	hash, err := hex.DecodeString(r.Hash)
	if err != nil {
		e.fail(field, "hash %q is not hexadecimal", r.Hash)
		return
	}
	e.PutString(field, r.Type)
	e.PutBytes(hash)
}

func (d *Decoder) transactionReference() types.TransactionReference {
	typ := d.Text()
	return types.TransactionReference{Type: typ, Hash: hex.EncodeToString(d.Bytes())}
}

func (e *Encoder) putStorageReference(field string, r types.StorageReference) {
	e.putTransactionReference(field, r.Transaction)
	e.PutMagnitude(field+".progressive", r.Progressive)
}

func (d *Decoder) storageReference() types.StorageReference {
	tx := d.transactionReference()
	return types.StorageReference{Transaction: tx, Progressive: d.BigInt()}
}

func (e *Encoder) putStorageReferences(field string, rs []types.StorageReference) {
	e.PutCompactInt(len(rs))
	for _, r := range rs {
		e.putStorageReference(field, r)
	}
}

func (d *Decoder) storageReferences() []types.StorageReference {
	n := d.CompactInt()
	var rs []types.StorageReference
	for i := 0; i < n && d.err == nil; i++ {
		rs = append(rs, d.storageReference())
	}
	return rs
}

func (e *Encoder) putTransactionReferences(field string, rs []types.TransactionReference) {
	e.PutCompactInt(len(rs))
	for _, r := range rs {
		e.putTransactionReference(field, r)
	}
}

func (d *Decoder) transactionReferences() []types.TransactionReference {
	n := d.CompactInt()
	var rs []types.TransactionReference
	for i := 0; i < n && d.err == nil; i++ {
		rs = append(rs, d.transactionReference())
	}
	return rs
}

func (e *Encoder) putType(field string, t types.StorageType) {
	for i, b := range types.BasicTypes {
		if t == b {
			e.PutByte(byte(i))
			return
		}
	}
	if t == "" {
		e.fail(field, "empty storage type")
		return
	}
	e.PutByte(classTypeSelector)
	e.PutString(field, string(t))
}

func (d *Decoder) storageType() types.StorageType {
	sel := d.Byte()
	switch {
	case int(sel) < len(types.BasicTypes):
		return types.BasicTypes[sel]
	case sel == classTypeSelector:
		return types.StorageType(d.Text())
	}
	d.fail("", "unknown storage type selector %d", sel)
	return ""
}

func (e *Encoder) putTypes(field string, ts []types.StorageType) {
	e.PutCompactInt(len(ts))
	for _, t := range ts {
		e.putType(field, t)
	}
}

func (d *Decoder) storageTypes() []types.StorageType {
	n := d.CompactInt()
	var ts []types.StorageType
	for i := 0; i < n && d.err == nil; i++ {
		ts = append(ts, d.storageType())
	}
	return ts
}

// PutValue writes a storage value preceded by its selector.
func (e *Encoder) PutValue(field string, v types.StorageValue) {
	switch v.Kind() {
	case types.KindNull:
		e.PutByte(valueNull)
	case types.KindBoolean:
		b, _ := v.Bool()
		e.PutByte(valueBoolean)
		e.PutBool(b)
	case types.KindByte:
		i, _ := v.Int64()
		e.PutByte(valueByte)
		e.PutByte(byte(int8(i)))
	case types.KindChar:
		i, _ := v.Int64()
		e.PutByte(valueChar)
		e.PutUint16(uint16(i))
	case types.KindShort:
		i, _ := v.Int64()
		e.PutByte(valueShort)
		e.PutInt16(int16(i))
	case types.KindInt:
		i, _ := v.Int64()
		e.PutByte(valueInt)
		e.PutInt32(int32(i))
	case types.KindLong:
		i, _ := v.Int64()
		e.PutByte(valueLong)
		e.PutInt64(i)
	case types.KindFloat:
		f, _ := v.Float64()
		e.PutByte(valueFloat)
		e.PutFloat32(field, float32(f))
	case types.KindDouble:
		f, _ := v.Float64()
		e.PutByte(valueDouble)
		e.PutFloat64(field, f)
	case types.KindBigInteger:
		i, _ := v.BigInt()
		e.PutByte(valueBigInteger)
		e.PutBigInt(field, i)
	case types.KindString:
		s, _ := v.Text()
		e.PutByte(valueString)
		e.PutString(field, s)
	case types.KindReference:
		r, _ := v.Reference()
		e.PutByte(valueReference)
		e.putStorageReference(field, r)
	case types.KindEnum:
		class, name, _ := v.Enum()
		e.PutByte(valueEnum)
		e.PutString(field, class)
		e.PutString(field, name)
	default:
		e.fail(field, "storage value of %s kind", v.Kind())
	}
}

// Value reads a storage value written by PutValue.
func (d *Decoder) Value() types.StorageValue {
	switch sel := d.Byte(); sel {
	case valueNull:
		return types.NullValue()
	case valueBoolean:
		return types.BooleanValue(d.Bool())
	case valueByte:
		return types.ByteValue(int8(d.Byte()))
	case valueChar:
		return types.CharValue(d.Uint16())
	case valueShort:
		return types.ShortValue(d.Int16())
	case valueInt:
		return types.IntValue(d.Int32())
	case valueLong:
		return types.LongValue(d.Int64())
	case valueFloat:
		f := d.Float32()
		if math.IsNaN(float64(f)) || math.IsInf(float64(f), 0) {
			d.fail("", "non-finite float")
		}
		return types.FloatValue(f)
	case valueDouble:
		f := d.Float64()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			d.fail("", "non-finite double")
		}
		return types.DoubleValue(f)
	case valueBigInteger:
		return types.BigIntegerValue(d.BigInt())
	case valueString:
		return types.StringValue(d.Text())
	case valueReference:
		return types.ReferenceValue(d.storageReference())
	case valueEnum:
		class := d.Text()
		return types.EnumValue(class, d.Text())
	default:
		d.fail("", "unknown storage value selector %d", sel)
		return types.StorageValue{}
	}
}

func (e *Encoder) putValues(field string, vs []types.StorageValue) {
	e.PutCompactInt(len(vs))
	for _, v := range vs {
		e.PutValue(field, v)
	}
}

func (d *Decoder) values() []types.StorageValue {
	n := d.CompactInt()
	var vs []types.StorageValue
	for i := 0; i < n && d.err == nil; i++ {
		vs = append(vs, d.Value())
	}
	return vs
}

func (e *Encoder) putConstructorSignature(field string, c types.ConstructorSignature) {
	e.PutString(field, c.DefiningClass)
	e.putTypes(field, c.Formals)
}

func (d *Decoder) constructorSignature() types.ConstructorSignature {
	class := d.Text()
	return types.ConstructorSignature{DefiningClass: class, Formals: d.storageTypes()}
}

// Method signatures start with 0 for void methods and 1 otherwise; the
// return type, when present, comes last.
func (e *Encoder) putMethodSignature(field string, m types.MethodSignature) {
	e.PutBool(!m.IsVoid())
	e.PutString(field, m.DefiningClass)
	e.PutString(field, m.Name)
	e.putTypes(field, m.Formals)
	if !m.IsVoid() {
		e.putType(field, m.ReturnType)
	}
}

func (d *Decoder) methodSignature() types.MethodSignature {
	nonVoid := d.Bool()
	m := types.MethodSignature{DefiningClass: d.Text()}
	m.Name = d.Text()
	m.Formals = d.storageTypes()
	if nonVoid {
		m.ReturnType = d.storageType()
	}
	return m
}

func (e *Encoder) putFieldSignature(field string, f types.FieldSignature) {
	e.PutString(field, f.DefiningClass)
	e.PutString(field, f.Name)
	e.putType(field, f.Type)
}

func (d *Decoder) fieldSignature() types.FieldSignature {
	f := types.FieldSignature{DefiningClass: d.Text()}
	f.Name = d.Text()
	f.Type = d.storageType()
	return f
}

func (e *Encoder) putUpdate(u types.Update) {
	if u.IsClassTag() {
		if u.Jar == nil {
			e.fail("update.jar", "class tag without jar")
			return
		}
		e.PutByte(updateClassTag)
		e.putStorageReference("update.object", u.Object)
		e.PutString("update.className", u.ClassName)
		e.putTransactionReference("update.jar", *u.Jar)
		return
	}
	if u.Value == nil {
		e.fail("update.value", "field update without value")
		return
	}
	e.PutByte(updateField)
	e.putStorageReference("update.object", u.Object)
	e.putFieldSignature("update.field", *u.Field)
	e.PutValue("update.value", *u.Value)
}

func (d *Decoder) update() types.Update {
	switch sel := d.Byte(); sel {
	case updateClassTag:
		obj := d.storageReference()
		class := d.Text()
		return types.ClassTagUpdate(obj, class, d.transactionReference())
	case updateField:
		obj := d.storageReference()
		f := d.fieldSignature()
		return types.FieldUpdate(obj, f, d.Value())
	default:
		d.fail("", "unknown update selector %d", sel)
		return types.Update{}
	}
}

func (e *Encoder) putUpdates(us []types.Update) {
	e.PutCompactInt(len(us))
	for _, u := range us {
		e.putUpdate(u)
	}
}

func (d *Decoder) updates() []types.Update {
	n := d.CompactInt()
	var us []types.Update
	for i := 0; i < n && d.err == nil; i++ {
		us = append(us, d.update())
	}
	return us
}

// EncodeValue returns the canonical bytes of v.
func EncodeValue(v types.StorageValue) ([]byte, error) {
	e := NewEncoder()
	e.PutValue("value", v)
	return e.Bytes(), e.Err()
}

// DecodeValue parses bytes written by EncodeValue.
func DecodeValue(b []byte) (types.StorageValue, error) {
	d := NewDecoder(b)
	v := d.Value()
	if err := d.Finish(); err != nil {
		return types.StorageValue{}, err
	}
	return v, nil
}
