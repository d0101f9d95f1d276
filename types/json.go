package types

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
	"unicode/utf16"
)

// decimal carries a big integer as a JSON string of decimal digits.
type decimal struct{ v *big.Int }

func dec(x *big.Int) *decimal {
	if x == nil {
		return nil
	}
	return &decimal{v: x}
}

func (d *decimal) big() *big.Int {
	if d == nil {
		return nil
	}
	return d.v
}

func (d decimal) MarshalJSON() ([]byte, error) {
	return json.Marshal(bigOrZero(d.v).String())
}

func (d *decimal) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		// Some nodes emit bare numbers.
		s = string(b)
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return fmt.Errorf("invalid decimal integer %q", s)
	}
	d.v = v
	return nil
}

// --- references ---

type storageReferenceModel struct {
	Transaction TransactionReference `json:"transaction"`
	Progressive *decimal             `json:"progressive"`
}

func (r StorageReference) MarshalJSON() ([]byte, error) {
	return json.Marshal(storageReferenceModel{
		Transaction: r.Transaction,
		Progressive: dec(bigOrZero(r.Progressive)),
	})
}

func (r *StorageReference) UnmarshalJSON(b []byte) error {
	var m storageReferenceModel
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	r.Transaction = m.Transaction
	r.Progressive = bigOrZero(m.Progressive.big())
	return nil
}

// --- storage values ---

type storageValueModel struct {
	Value           *string           `json:"value,omitempty"`
	Reference       *StorageReference `json:"reference,omitempty"`
	Type            string            `json:"type"`
	EnumElementName string            `json:"enumElementName,omitempty"`
}

func (v StorageValue) MarshalJSON() ([]byte, error) {
	var m storageValueModel
	switch v.kind {
	case KindNull:
		m.Type = "reference"
	case KindReference:
		ref := v.ref
		m.Type, m.Reference = "reference", &ref
	case KindEnum:
		m.Type, m.EnumElementName = v.class, v.s
	case KindBigInteger:
		if v.big == nil {
			return nil, fmt.Errorf("biginteger value without payload")
		}
		s := v.big.String()
		m.Type, m.Value = string(v.Type()), &s
	case KindBoolean, KindByte, KindChar, KindShort, KindInt, KindLong,
		KindFloat, KindDouble, KindString:
		s := v.String()
		m.Type, m.Value = string(v.Type()), &s
	default:
		return nil, fmt.Errorf("storage value of %s kind", v.kind)
	}
	return json.Marshal(m)
}

func (v *StorageValue) UnmarshalJSON(b []byte) error {
	var m storageValueModel
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	parsed, err := m.value()
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

func (m storageValueModel) value() (StorageValue, error) {
	if m.EnumElementName != "" {
		return EnumValue(m.Type, m.EnumElementName), nil
	}
	t := StorageType(m.Type)
	if t == "reference" || t == "" {
		if m.Reference == nil {
			return NullValue(), nil
		}
		return ReferenceValue(*m.Reference), nil
	}
	if m.Value == nil {
		if t == StringType || t == BigIntegerType {
			return NullValue(), nil
		}
		return StorageValue{}, fmt.Errorf("storage value of type %s without a value", t)
	}
	s := *m.Value
	switch t {
	case BooleanType:
		b, err := strconv.ParseBool(s)
		return BooleanValue(b), err
	case ByteType:
		i, err := strconv.ParseInt(s, 10, 8)
		return ByteValue(int8(i)), err
	case CharType:
		units := utf16.Encode([]rune(s))
		if len(units) != 1 {
			return StorageValue{}, fmt.Errorf("char value %q is not a single UTF-16 unit", s)
		}
		return CharValue(units[0]), nil
	case ShortType:
		i, err := strconv.ParseInt(s, 10, 16)
		return ShortValue(int16(i)), err
	case IntType:
		i, err := strconv.ParseInt(s, 10, 32)
		return IntValue(int32(i)), err
	case LongType:
		i, err := strconv.ParseInt(s, 10, 64)
		return LongValue(i), err
	case FloatType:
		f, err := strconv.ParseFloat(s, 32)
		return FloatValue(float32(f)), err
	case DoubleType:
		f, err := strconv.ParseFloat(s, 64)
		return DoubleValue(f), err
	case BigIntegerType:
		i, ok := new(big.Int).SetString(s, 10)
		if !ok {
			return StorageValue{}, fmt.Errorf("invalid big integer value %q", s)
		}
		return BigIntegerValue(i), nil
	case StringType:
		return StringValue(s), nil
	}
	return StorageValue{}, fmt.Errorf("unknown storage value type %q", t)
}

// --- signatures ---

type constructorSignatureModel struct {
	DefiningClass string        `json:"definingClass"`
	Formals       []StorageType `json:"formals"`
}

func (c ConstructorSignature) MarshalJSON() ([]byte, error) {
	return json.Marshal(constructorSignatureModel{DefiningClass: c.DefiningClass, Formals: orEmpty(c.Formals)})
}

func (c *ConstructorSignature) UnmarshalJSON(b []byte) error {
	var m constructorSignatureModel
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	*c = ConstructorSignature{DefiningClass: m.DefiningClass, Formals: m.Formals}
	return nil
}

type methodSignatureModel struct {
	DefiningClass string        `json:"definingClass"`
	MethodName    string        `json:"methodName"`
	Formals       []StorageType `json:"formals"`
	ReturnType    StorageType   `json:"returnType,omitempty"`
}

func (m MethodSignature) MarshalJSON() ([]byte, error) {
	return json.Marshal(methodSignatureModel{
		DefiningClass: m.DefiningClass,
		MethodName:    m.Name,
		Formals:       orEmpty(m.Formals),
		ReturnType:    m.ReturnType,
	})
}

func (m *MethodSignature) UnmarshalJSON(b []byte) error {
	var model methodSignatureModel
	if err := json.Unmarshal(b, &model); err != nil {
		return err
	}
	*m = MethodSignature{
		DefiningClass: model.DefiningClass,
		Name:          model.MethodName,
		Formals:       model.Formals,
		ReturnType:    model.ReturnType,
	}
	return nil
}

// --- requests ---

type nonInitialModel struct {
	Caller    StorageReference     `json:"caller"`
	Nonce     *decimal             `json:"nonce"`
	Classpath TransactionReference `json:"classpath"`
	GasLimit  *decimal             `json:"gasLimit"`
	GasPrice  *decimal             `json:"gasPrice"`
	ChainID   string               `json:"chainId"`
	Signature string               `json:"signature"`
}

func (r *NonInitialRequest) model() nonInitialModel {
	return nonInitialModel{
		Caller:    r.Caller,
		Nonce:     dec(r.Nonce),
		Classpath: r.Classpath,
		GasLimit:  dec(r.GasLimit),
		GasPrice:  dec(r.GasPrice),
		ChainID:   r.ChainID,
		Signature: base64.StdEncoding.EncodeToString(r.Signature),
	}
}

func (r *NonInitialRequest) fromModel(m nonInitialModel) error {
	sig, err := base64.StdEncoding.DecodeString(m.Signature)
	if err != nil {
		return fmt.Errorf("signature: %w", err)
	}
	if len(sig) == 0 {
		sig = nil
	}
	*r = NonInitialRequest{
		Caller:    m.Caller,
		Nonce:     m.Nonce.big(),
		Classpath: m.Classpath,
		GasLimit:  m.GasLimit.big(),
		GasPrice:  m.GasPrice.big(),
		ChainID:   m.ChainID,
		Signature: sig,
	}
	return nil
}

type jarStoreInitialModel struct {
	Jar          []byte                 `json:"jar"`
	Dependencies []TransactionReference `json:"dependencies"`
}

func (r *JarStoreInitialRequest) MarshalJSON() ([]byte, error) {
	return json.Marshal(jarStoreInitialModel{Jar: r.Jar, Dependencies: orEmpty(r.Dependencies)})
}

func (r *JarStoreInitialRequest) UnmarshalJSON(b []byte) error {
	var m jarStoreInitialModel
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	*r = JarStoreInitialRequest{Jar: m.Jar, Dependencies: m.Dependencies}
	return nil
}

type gameteCreationModel struct {
	InitialAmount    *decimal             `json:"initialAmount"`
	RedInitialAmount *decimal             `json:"redInitialAmount,omitempty"`
	PublicKey        string               `json:"publicKey"`
	Classpath        TransactionReference `json:"classpath"`
}

func (r *GameteCreationRequest) MarshalJSON() ([]byte, error) {
	return json.Marshal(gameteCreationModel{
		InitialAmount: dec(r.InitialAmount),
		PublicKey:     r.PublicKey,
		Classpath:     r.Classpath,
	})
}

func (r *GameteCreationRequest) UnmarshalJSON(b []byte) error {
	var m gameteCreationModel
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	*r = GameteCreationRequest{Classpath: m.Classpath, InitialAmount: m.InitialAmount.big(), PublicKey: m.PublicKey}
	return nil
}

func (r *RedGreenGameteCreationRequest) MarshalJSON() ([]byte, error) {
	return json.Marshal(gameteCreationModel{
		InitialAmount:    dec(r.InitialAmount),
		RedInitialAmount: dec(r.RedInitialAmount),
		PublicKey:        r.PublicKey,
		Classpath:        r.Classpath,
	})
}

func (r *RedGreenGameteCreationRequest) UnmarshalJSON(b []byte) error {
	var m gameteCreationModel
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	*r = RedGreenGameteCreationRequest{
		Classpath:        m.Classpath,
		InitialAmount:    m.InitialAmount.big(),
		RedInitialAmount: m.RedInitialAmount.big(),
		PublicKey:        m.PublicKey,
	}
	return nil
}

type initializationModel struct {
	Manifest  StorageReference     `json:"manifest"`
	Classpath TransactionReference `json:"classpath"`
}

func (r *InitializationRequest) MarshalJSON() ([]byte, error) {
	return json.Marshal(initializationModel{Manifest: r.Manifest, Classpath: r.Classpath})
}

func (r *InitializationRequest) UnmarshalJSON(b []byte) error {
	var m initializationModel
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	*r = InitializationRequest{Classpath: m.Classpath, Manifest: m.Manifest}
	return nil
}

type jarStoreModel struct {
	nonInitialModel
	Jar          []byte                 `json:"jar"`
	Dependencies []TransactionReference `json:"dependencies"`
}

func (r *JarStoreRequest) MarshalJSON() ([]byte, error) {
	return json.Marshal(jarStoreModel{
		nonInitialModel: r.NonInitialRequest.model(),
		Jar:             r.Jar,
		Dependencies:    orEmpty(r.Dependencies),
	})
}

func (r *JarStoreRequest) UnmarshalJSON(b []byte) error {
	var m jarStoreModel
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	r.Jar, r.Dependencies = m.Jar, m.Dependencies
	return r.NonInitialRequest.fromModel(m.nonInitialModel)
}

type constructorCallModel struct {
	nonInitialModel
	ConstructorSignature ConstructorSignature `json:"constructorSignature"`
	Actuals              []StorageValue       `json:"actuals"`
}

func (r *ConstructorCallRequest) MarshalJSON() ([]byte, error) {
	return json.Marshal(constructorCallModel{
		nonInitialModel:      r.NonInitialRequest.model(),
		ConstructorSignature: r.Constructor,
		Actuals:              orEmpty(r.Actuals),
	})
}

func (r *ConstructorCallRequest) UnmarshalJSON(b []byte) error {
	var m constructorCallModel
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	r.Constructor, r.Actuals = m.ConstructorSignature, m.Actuals
	return r.NonInitialRequest.fromModel(m.nonInitialModel)
}

type methodCallModel struct {
	nonInitialModel
	Method   MethodSignature   `json:"method"`
	Actuals  []StorageValue    `json:"actuals"`
	Receiver *StorageReference `json:"receiver,omitempty"`
}

func (r *InstanceMethodCallRequest) MarshalJSON() ([]byte, error) {
	receiver := r.Receiver
	return json.Marshal(methodCallModel{
		nonInitialModel: r.NonInitialRequest.model(),
		Method:          r.Method,
		Actuals:         orEmpty(r.Actuals),
		Receiver:        &receiver,
	})
}

func (r *InstanceMethodCallRequest) UnmarshalJSON(b []byte) error {
	var m methodCallModel
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	if m.Receiver == nil {
		return fmt.Errorf("instance method call without receiver")
	}
	r.Method, r.Actuals, r.Receiver = m.Method, m.Actuals, *m.Receiver
	return r.NonInitialRequest.fromModel(m.nonInitialModel)
}

func (r *StaticMethodCallRequest) MarshalJSON() ([]byte, error) {
	return json.Marshal(methodCallModel{
		nonInitialModel: r.NonInitialRequest.model(),
		Method:          r.Method,
		Actuals:         orEmpty(r.Actuals),
	})
}

func (r *StaticMethodCallRequest) UnmarshalJSON(b []byte) error {
	var m methodCallModel
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	r.Method, r.Actuals = m.Method, m.Actuals
	return r.NonInitialRequest.fromModel(m.nonInitialModel)
}

// --- responses ---

// responseModel is the union of the fields of every response model.
// Each variant reads and writes only its own fields.
type responseModel struct {
	InstrumentedJar       []byte                 `json:"instrumentedJar,omitempty"`
	Dependencies          []TransactionReference `json:"dependencies,omitempty"`
	Updates               []Update               `json:"updates,omitempty"`
	Gamete                *StorageReference      `json:"gamete,omitempty"`
	NewObject             *StorageReference      `json:"newObject,omitempty"`
	Result                *StorageValue          `json:"result,omitempty"`
	Events                []StorageReference     `json:"events,omitempty"`
	GasConsumedForCPU     *decimal               `json:"gasConsumedForCPU,omitempty"`
	GasConsumedForRAM     *decimal               `json:"gasConsumedForRAM,omitempty"`
	GasConsumedForStorage *decimal               `json:"gasConsumedForStorage,omitempty"`
	GasConsumedForPenalty *decimal               `json:"gasConsumedForPenalty,omitempty"`
	ClassNameOfCause      string                 `json:"classNameOfCause,omitempty"`
	MessageOfCause        string                 `json:"messageOfCause,omitempty"`
	Where                 string                 `json:"where,omitempty"`
}

func (m *responseModel) setGas(g Gas) {
	m.GasConsumedForCPU, m.GasConsumedForRAM, m.GasConsumedForStorage = dec(g.CPU), dec(g.RAM), dec(g.Storage)
}

func (m *responseModel) gas() Gas {
	return Gas{CPU: m.GasConsumedForCPU.big(), RAM: m.GasConsumedForRAM.big(), Storage: m.GasConsumedForStorage.big()}
}

func (m *responseModel) setCause(c Cause) {
	m.ClassNameOfCause, m.MessageOfCause, m.Where = c.ClassName, c.Message, c.Where
}

func (m *responseModel) cause() Cause {
	return Cause{ClassName: m.ClassNameOfCause, Message: m.MessageOfCause, Where: m.Where}
}

func toResponseModel(r Response) (responseModel, error) {
	var m responseModel
	switch r := r.(type) {
	case *JarStoreInitialResponse:
		m.InstrumentedJar, m.Dependencies = r.InstrumentedJar, r.Dependencies
	case *GameteCreationResponse:
		gamete := r.Gamete
		m.Updates, m.Gamete = r.Updates, &gamete
	case *InitializationResponse:
	case *JarStoreSuccessfulResponse:
		m.InstrumentedJar, m.Dependencies, m.Updates = r.InstrumentedJar, r.Dependencies, r.Updates
		m.setGas(r.Gas)
	case *JarStoreFailedResponse:
		m.Updates, m.GasConsumedForPenalty = r.Updates, dec(r.GasForPenalty)
		m.setGas(r.Gas)
		m.setCause(r.Cause)
	case *ConstructorCallSuccessfulResponse:
		obj := r.NewObject
		m.NewObject, m.Updates, m.Events = &obj, r.Updates, r.Events
		m.setGas(r.Gas)
	case *ConstructorCallExceptionResponse:
		m.Updates, m.Events = r.Updates, r.Events
		m.setGas(r.Gas)
		m.setCause(r.Cause)
	case *ConstructorCallFailedResponse:
		m.Updates, m.GasConsumedForPenalty = r.Updates, dec(r.GasForPenalty)
		m.setGas(r.Gas)
		m.setCause(r.Cause)
	case *MethodCallSuccessfulResponse:
		result := r.Result
		m.Result, m.Updates, m.Events = &result, r.Updates, r.Events
		m.setGas(r.Gas)
	case *VoidMethodCallSuccessfulResponse:
		m.Updates, m.Events = r.Updates, r.Events
		m.setGas(r.Gas)
	case *MethodCallExceptionResponse:
		m.Updates, m.Events = r.Updates, r.Events
		m.setGas(r.Gas)
		m.setCause(r.Cause)
	case *MethodCallFailedResponse:
		m.Updates, m.GasConsumedForPenalty = r.Updates, dec(r.GasForPenalty)
		m.setGas(r.Gas)
		m.setCause(r.Cause)
	default:
		return m, fmt.Errorf("unsupported response %T", r)
	}
	return m, nil
}

func fromResponseModel(k ResponseKind, m responseModel) (Response, error) {
	switch k {
	case ResponseJarStoreInitial:
		return &JarStoreInitialResponse{InstrumentedJar: m.InstrumentedJar, Dependencies: m.Dependencies}, nil
	case ResponseGameteCreation:
		if m.Gamete == nil {
			return nil, fmt.Errorf("%s without gamete", k)
		}
		return &GameteCreationResponse{Updates: m.Updates, Gamete: *m.Gamete}, nil
	case ResponseInitialization:
		return &InitializationResponse{}, nil
	case ResponseJarStoreSuccessful:
		return &JarStoreSuccessfulResponse{
			InstrumentedJar: m.InstrumentedJar, Dependencies: m.Dependencies, Updates: m.Updates, Gas: m.gas(),
		}, nil
	case ResponseJarStoreFailed:
		return &JarStoreFailedResponse{
			Updates: m.Updates, Gas: m.gas(), GasForPenalty: m.GasConsumedForPenalty.big(), Cause: m.cause(),
		}, nil
	case ResponseConstructorCallSuccessful:
		if m.NewObject == nil {
			return nil, fmt.Errorf("%s without new object", k)
		}
		return &ConstructorCallSuccessfulResponse{NewObject: *m.NewObject, Updates: m.Updates, Events: m.Events, Gas: m.gas()}, nil
	case ResponseConstructorCallException:
		return &ConstructorCallExceptionResponse{Updates: m.Updates, Events: m.Events, Gas: m.gas(), Cause: m.cause()}, nil
	case ResponseConstructorCallFailed:
		return &ConstructorCallFailedResponse{
			Updates: m.Updates, Gas: m.gas(), GasForPenalty: m.GasConsumedForPenalty.big(), Cause: m.cause(),
		}, nil
	case ResponseMethodCallSuccessful:
		if m.Result == nil {
			return nil, fmt.Errorf("%s without result", k)
		}
		return &MethodCallSuccessfulResponse{Result: *m.Result, Updates: m.Updates, Events: m.Events, Gas: m.gas()}, nil
	case ResponseVoidMethodCallSuccessful:
		return &VoidMethodCallSuccessfulResponse{Updates: m.Updates, Events: m.Events, Gas: m.gas()}, nil
	case ResponseMethodCallException:
		return &MethodCallExceptionResponse{Updates: m.Updates, Events: m.Events, Gas: m.gas(), Cause: m.cause()}, nil
	case ResponseMethodCallFailed:
		return &MethodCallFailedResponse{
			Updates: m.Updates, Gas: m.gas(), GasForPenalty: m.GasConsumedForPenalty.big(), Cause: m.cause(),
		}, nil
	}
	return nil, fmt.Errorf("unsupported response kind %s", k)
}

func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
