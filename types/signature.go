package types

import "strings"

// ConstructorSignature names a constructor by its class and formal types.
type ConstructorSignature struct {
	DefiningClass string
	Formals       []StorageType
}

// NewConstructorSignature returns the signature of a constructor of definingClass.
func NewConstructorSignature(definingClass string, formals ...StorageType) ConstructorSignature {
	return ConstructorSignature{DefiningClass: definingClass, Formals: formals}
}

func (c ConstructorSignature) String() string {
	return c.DefiningClass + "(" + joinTypes(c.Formals) + ")"
}

// MethodSignature names a method. An empty ReturnType denotes a void method.
type MethodSignature struct {
	DefiningClass string
	Name          string
	Formals       []StorageType
	ReturnType    StorageType
}

// NewVoidMethodSignature returns the signature of a void method.
func NewVoidMethodSignature(definingClass, name string, formals ...StorageType) MethodSignature {
	return MethodSignature{DefiningClass: definingClass, Name: name, Formals: formals}
}

// NewMethodSignature returns the signature of a method returning returnType.
func NewMethodSignature(definingClass, name string, returnType StorageType, formals ...StorageType) MethodSignature {
	return MethodSignature{DefiningClass: definingClass, Name: name, Formals: formals, ReturnType: returnType}
}

// IsVoid reports whether the method returns nothing.
func (m MethodSignature) IsVoid() bool { return m.ReturnType == "" }

func (m MethodSignature) String() string {
	ret := "void"
	if !m.IsVoid() {
		ret = string(m.ReturnType)
	}
	return ret + " " + m.DefiningClass + "." + m.Name + "(" + joinTypes(m.Formals) + ")"
}

// FieldSignature names a field by its class, name and type.
type FieldSignature struct {
	DefiningClass string      `json:"definingClass"`
	Name          string      `json:"name"`
	Type          StorageType `json:"type"`
}

func joinTypes(ts []StorageType) string {
	parts := make([]string, len(ts))
	for i, t := range ts {
		parts[i] = string(t)
	}
	return strings.Join(parts, ",")
}
