package types_test

import (
	"encoding/json"
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockberries/moka/types"
)

// roundTrip marshals v to JSON and unmarshals into a new T.
func roundTrip[T any](t *testing.T, v T) T {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	var out T
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

var gamete = types.NewStorageReference(types.NewTransactionReference("ab12"), 0)

func TestStorageReference_JSON(t *testing.T) {
	ref := types.NewStorageReference(types.NewTransactionReference("ab12"), 300)
	data, err := json.Marshal(ref)
	require.NoError(t, err)
	assert.JSONEq(t, `{"transaction":{"type":"local","hash":"ab12"},"progressive":"300"}`, string(data))

	got := roundTrip(t, ref)
	assert.True(t, got.Equal(ref))
	assert.Equal(t, "ab12#12c", got.String())

	parsed, err := types.ParseStorageReference("AB12#12c")
	require.NoError(t, err)
	assert.True(t, parsed.Equal(ref))
}

func TestStorageValue_JSON(t *testing.T) {
	values := []types.StorageValue{
		types.NullValue(),
		types.BooleanValue(true),
		types.ByteValue(-3),
		types.CharValue('Z'),
		types.ShortValue(-300),
		types.IntValue(42),
		types.LongValue(1 << 40),
		types.FloatValue(1.5),
		types.DoubleValue(-2.25),
		types.BigIntegerValue(new(big.Int).Lsh(big.NewInt(1), 100)),
		types.StringValue("hello"),
		types.ReferenceValue(gamete),
		types.EnumValue("io.hotmoka.Color", "RED"),
	}
	for _, v := range values {
		got := roundTrip(t, v)
		assert.True(t, got.Equal(v), "%s: got %s", v.Kind(), got)
	}

	_, err := json.Marshal(types.BigIntegerValue(nil))
	assert.Error(t, err)
	assert.False(t, types.BigIntegerValue(nil).Equal(types.BigIntegerValue(big.NewInt(0))))
}

func TestStorageValue_NodeModels(t *testing.T) {
	var v types.StorageValue
	require.NoError(t, json.Unmarshal([]byte(`{"value":"203377","type":"java.math.BigInteger"}`), &v))
	n, ok := v.BigInt()
	require.True(t, ok)
	assert.Equal(t, "203377", n.String())

	require.NoError(t, json.Unmarshal([]byte(`{"type":"reference"}`), &v))
	assert.Equal(t, types.KindNull, v.Kind())

	require.Error(t, json.Unmarshal([]byte(`{"value":"x","type":"int"}`), &v))
	require.Error(t, json.Unmarshal([]byte(`{"value":"1","type":"weird"}`), &v))
}

func TestMethodSignature_JSON(t *testing.T) {
	m := types.NewMethodSignature("io.takamaka.code.lang.Account", "nonce", types.BigIntegerType)
	data, err := json.Marshal(m)
	require.NoError(t, err)
	assert.JSONEq(t, `{"definingClass":"io.takamaka.code.lang.Account","methodName":"nonce","formals":[],"returnType":"java.math.BigInteger"}`, string(data))

	void := types.NewVoidMethodSignature("C", "m", types.IntType)
	got := roundTrip(t, void)
	assert.True(t, got.IsVoid())
	assert.Equal(t, []types.StorageType{types.IntType}, got.Formals)
}

func TestRequest_JSON(t *testing.T) {
	req := &types.JarStoreRequest{
		NonInitialRequest: types.NonInitialRequest{
			Caller:    gamete,
			Nonce:     big.NewInt(12),
			Classpath: types.NewTransactionReference("cd34"),
			GasLimit:  big.NewInt(500000),
			GasPrice:  big.NewInt(203377),
			ChainID:   "test",
			Signature: []byte{1, 2, 3},
		},
		Jar:          []byte("jar"),
		Dependencies: []types.TransactionReference{types.NewTransactionReference("cd34")},
	}
	data, err := json.Marshal(req)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "12", raw["nonce"])
	assert.Equal(t, "203377", raw["gasPrice"])
	assert.Equal(t, "AQID", raw["signature"])
	assert.Equal(t, "test", raw["chainId"])

	var got types.JarStoreRequest
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, req.Nonce, got.Nonce)
	assert.Equal(t, req.Signature, got.Signature)
	assert.Equal(t, req.Jar, got.Jar)
	assert.True(t, got.Caller.Equal(gamete))
}

func TestResponseEnvelope_NestedAndFlat(t *testing.T) {
	nested := `{"type":"io.hotmoka.network.responses.MethodCallTransactionSuccessfulResponseModel",
		"transactionResponseModel":{"result":{"value":"7","type":"int"},"gasConsumedForCPU":"10"}}`
	flat := `{"type":"MethodCallTransactionSuccessfulResponseModel","result":{"value":"7","type":"int"},"gasConsumedForCPU":"10"}`

	for _, doc := range []string{nested, flat} {
		r, err := types.UnmarshalResponse([]byte(doc))
		require.NoError(t, err)
		ok, isOK := r.(*types.MethodCallSuccessfulResponse)
		require.True(t, isOK)
		i, _ := ok.Result.Int64()
		assert.EqualValues(t, 7, i)
		assert.Equal(t, "10", ok.Gas.CPU.String())
	}
}

func TestResponseEnvelope_RoundTrip(t *testing.T) {
	resp := &types.MethodCallFailedResponse{
		Gas:           types.Gas{CPU: big.NewInt(1), RAM: big.NewInt(2), Storage: big.NewInt(3)},
		GasForPenalty: big.NewInt(99),
		Cause:         types.Cause{ClassName: "io.takamaka.code.lang.OutOfGasError", Message: "out of gas", Where: "Foo.java:3"},
	}
	data, err := types.MarshalResponse(resp)
	require.NoError(t, err)
	got, err := types.UnmarshalResponse(data)
	require.NoError(t, err)
	failed, ok := got.(types.FailedResponse)
	require.True(t, ok)
	assert.Equal(t, resp.Cause, failed.Failure())
	assert.Equal(t, "99", got.(*types.MethodCallFailedResponse).GasForPenalty.String())
}

func TestEnvelope_UnknownDiscriminator(t *testing.T) {
	_, err := types.UnmarshalResponse([]byte(`{"type":"io.hotmoka.network.responses.MintTransactionResponseModel"}`))
	var ud *types.UnknownDiscriminatorError
	require.True(t, errors.As(err, &ud))
	assert.Equal(t, "io.hotmoka.network.responses.MintTransactionResponseModel", ud.Discriminator)

	_, err = types.UnmarshalRequest([]byte(`{"type":"io.hotmoka.network.requests.MintTransactionRequestModel"}`))
	require.True(t, errors.As(err, &ud))
}

func TestRequestEnvelope_RoundTrip(t *testing.T) {
	req := &types.InstanceMethodCallRequest{
		NonInitialRequest: types.NonInitialRequest{
			Caller: gamete, Nonce: big.NewInt(1), Classpath: types.NewTransactionReference("cd34"),
			GasLimit: big.NewInt(2), GasPrice: big.NewInt(3), ChainID: "c",
		},
		Method:   types.NewMethodSignature("io.takamaka.code.lang.Account", "nonce", types.BigIntegerType),
		Receiver: gamete,
	}
	data, err := types.MarshalRequest(req)
	require.NoError(t, err)

	got, err := types.UnmarshalRequest(data)
	require.NoError(t, err)
	call, ok := got.(*types.InstanceMethodCallRequest)
	require.True(t, ok)
	assert.True(t, call.Receiver.Equal(gamete))
	assert.Equal(t, "nonce", call.Method.Name)
	assert.Nil(t, call.Signature)
}

func TestKinds(t *testing.T) {
	for _, k := range types.RequestKinds {
		got, ok := types.RequestKindOf(k.Discriminator())
		require.True(t, ok, k.String())
		assert.Equal(t, k, got)
		assert.Equal(t, k <= types.RequestInitialization, k.IsInitial())
	}
	for _, k := range types.ResponseKinds {
		got, ok := types.ResponseKindOf(k.Discriminator())
		require.True(t, ok, k.String())
		assert.Equal(t, k, got)
		assert.NotNil(t, types.NewResponse(k))
	}
}
