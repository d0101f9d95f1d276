package types

// Update is one piece of the state of an object: either its class tag
// (ClassName and Jar set) or the value of one of its fields (Field and
// Value set).
type Update struct {
	Object    StorageReference      `json:"object"`
	Field     *FieldSignature       `json:"field,omitempty"`
	Value     *StorageValue         `json:"value,omitempty"`
	ClassName string                `json:"className,omitempty"`
	Jar       *TransactionReference `json:"jar,omitempty"`
}

// ClassTagUpdate returns the update stating that object has class className
// defined in jar.
func ClassTagUpdate(object StorageReference, className string, jar TransactionReference) Update {
	return Update{Object: object, ClassName: className, Jar: &jar}
}

// FieldUpdate returns the update stating that field of object holds value.
func FieldUpdate(object StorageReference, field FieldSignature, value StorageValue) Update {
	return Update{Object: object, Field: &field, Value: &value}
}

// IsClassTag reports whether u is a class tag update.
func (u Update) IsClassTag() bool { return u.Field == nil }

// State is the ordered set of updates describing one object.
type State struct {
	Updates []Update `json:"updates"`
}

// ClassTag is the class of an object and the jar that defines it.
type ClassTag struct {
	ClassName string               `json:"className"`
	Jar       TransactionReference `json:"jar"`
}

// SignatureAlgorithmResponse names the signature algorithm a node
// expects for requests.
type SignatureAlgorithmResponse struct {
	Algorithm string `json:"algorithm"`
}

// ErrorModel is the body a node answers with when a call fails.
type ErrorModel struct {
	Message            string `json:"message"`
	ExceptionClassName string `json:"exceptionClassName"`
}
