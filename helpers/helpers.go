// Package helpers reads well-known values of an initialized node, such
// as its gamete, gas station and current gas price, by running view
// calls on the manifest.
package helpers

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"go.uber.org/zap"

	"github.com/blockberries/moka"
	"github.com/blockberries/moka/types"
)

// Class names of the Takamaka runtime.
const (
	ManifestClass   = "io.takamaka.code.system.Manifest"
	GasStationClass = "io.takamaka.code.system.GasStation"
	AccountClass    = "io.takamaka.code.lang.Account"
)

// DefaultGasLimit bounds the gas of every view call.
const DefaultGasLimit = 100_000

// Signatures of the view methods run by this package.
var (
	GetChainID       = types.NewMethodSignature(ManifestClass, "getChainId", types.StringType)
	GetGamete        = types.NewMethodSignature(ManifestClass, "getGamete", types.StorageType(AccountClass))
	GetGasStation    = types.NewMethodSignature(ManifestClass, "getGasStation", types.StorageType(GasStationClass))
	GetGasPrice      = types.NewMethodSignature(GasStationClass, "getGasPrice", types.BigIntegerType)
	IgnoresGasPrice  = types.NewMethodSignature(GasStationClass, "ignoresGasPrice", types.BooleanType)
	Nonce            = types.NewMethodSignature(AccountClass, "nonce", types.BigIntegerType)
	unitGasPrice     = big.NewInt(1)
	viewCallGasPrice = new(big.Int)
)

// Node is what the helpers need from a node.
type Node interface {
	GetTakamakaCode(ctx context.Context) (types.TransactionReference, error)
	GetManifest(ctx context.Context) (types.StorageReference, error)
	moka.Runner
}

// Views runs view calls on a node. The classpath, manifest and chain
// id are fetched once and reused.
type Views struct {
	node     Node
	gasLimit *big.Int
	logger   *zap.Logger

	mu        sync.Mutex
	resolved  bool
	classpath types.TransactionReference
	manifest  types.StorageReference
	chainID   string
}

// Option configures Views.
type Option func(*Views)

// WithGasLimit sets the gas limit of each view call.
func WithGasLimit(limit int64) Option {
	return func(v *Views) { v.gasLimit = big.NewInt(limit) }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(v *Views) { v.logger = l }
}

// New returns views over node.
func New(node Node, opts ...Option) *Views {
	v := &Views{node: node, gasLimit: big.NewInt(DefaultGasLimit), logger: zap.NewNop()}
	for _, o := range opts {
		o(v)
	}
	return v
}

// resolve fetches the classpath, manifest and chain id of the node.
// A failed resolution is retried by the next call.
func (v *Views) resolve(ctx context.Context) (types.TransactionReference, types.StorageReference, string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.resolved {
		return v.classpath, v.manifest, v.chainID, nil
	}

	classpath, err := v.node.GetTakamakaCode(ctx)
	if err != nil {
		return types.TransactionReference{}, types.StorageReference{}, "", err
	}
	manifest, err := v.node.GetManifest(ctx)
	if err != nil {
		return types.TransactionReference{}, types.StorageReference{}, "", err
	}
	// getChainId is the only view that runs before the chain id is known.
	result, err := v.node.RunInstanceMethodCallTransaction(ctx, v.request(classpath, manifest, "", manifest, GetChainID))
	if err != nil {
		return types.TransactionReference{}, types.StorageReference{}, "", err
	}
	if result == nil {
		return types.TransactionReference{}, types.StorageReference{}, "", unexpected(GetChainID, nil)
	}
	chainID, ok := result.Text()
	if !ok {
		return types.TransactionReference{}, types.StorageReference{}, "", unexpected(GetChainID, result)
	}

	v.resolved, v.classpath, v.manifest, v.chainID = true, classpath, manifest, chainID
	v.logger.Debug("node context resolved",
		zap.Stringer("classpath", classpath),
		zap.Stringer("manifest", manifest),
		zap.String("chain_id", chainID))
	return classpath, manifest, chainID, nil
}

func (v *Views) request(classpath types.TransactionReference, caller types.StorageReference, chainID string, receiver types.StorageReference, m types.MethodSignature) *types.InstanceMethodCallRequest {
	return &types.InstanceMethodCallRequest{
		NonInitialRequest: types.NonInitialRequest{
			Caller:    caller,
			Nonce:     new(big.Int),
			Classpath: classpath,
			GasLimit:  new(big.Int).Set(v.gasLimit),
			GasPrice:  new(big.Int).Set(viewCallGasPrice),
			ChainID:   chainID,
		},
		Method:   m,
		Receiver: receiver,
	}
}

// run calls m on receiver with the manifest as caller.
func (v *Views) run(ctx context.Context, receiver *types.StorageReference, m types.MethodSignature) (*types.StorageValue, error) {
	classpath, manifest, chainID, err := v.resolve(ctx)
	if err != nil {
		return nil, err
	}
	target := manifest
	if receiver != nil {
		target = *receiver
	}
	result, err := v.node.RunInstanceMethodCallTransaction(ctx, v.request(classpath, manifest, chainID, target, m))
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, unexpected(m, nil)
	}
	return result, nil
}

func (v *Views) reference(ctx context.Context, receiver *types.StorageReference, m types.MethodSignature) (types.StorageReference, error) {
	result, err := v.run(ctx, receiver, m)
	if err != nil {
		return types.StorageReference{}, err
	}
	ref, ok := result.Reference()
	if !ok {
		return types.StorageReference{}, unexpected(m, result)
	}
	return ref, nil
}

func (v *Views) bigInt(ctx context.Context, receiver *types.StorageReference, m types.MethodSignature) (*big.Int, error) {
	result, err := v.run(ctx, receiver, m)
	if err != nil {
		return nil, err
	}
	n, ok := result.BigInt()
	if !ok {
		return nil, unexpected(m, result)
	}
	return n, nil
}

// ChainID returns the chain id of the node.
func (v *Views) ChainID(ctx context.Context) (string, error) {
	_, _, chainID, err := v.resolve(ctx)
	return chainID, err
}

// Gamete returns the gamete account of the node.
func (v *Views) Gamete(ctx context.Context) (types.StorageReference, error) {
	return v.reference(ctx, nil, GetGamete)
}

// GasStation returns the gas station of the node.
func (v *Views) GasStation(ctx context.Context) (types.StorageReference, error) {
	return v.reference(ctx, nil, GetGasStation)
}

// GasPrice returns the gas price requests must pay. It is 1 when the
// gas station ignores gas prices.
func (v *Views) GasPrice(ctx context.Context) (*big.Int, error) {
	station, err := v.GasStation(ctx)
	if err != nil {
		return nil, err
	}
	result, err := v.run(ctx, &station, IgnoresGasPrice)
	if err != nil {
		return nil, err
	}
	ignores, ok := result.Bool()
	if !ok {
		return nil, unexpected(IgnoresGasPrice, result)
	}
	if ignores {
		return new(big.Int).Set(unitGasPrice), nil
	}
	return v.bigInt(ctx, &station, GetGasPrice)
}

// NonceOf returns the nonce account must use for its next request.
func (v *Views) NonceOf(ctx context.Context, account types.StorageReference) (*big.Int, error) {
	return v.bigInt(ctx, &account, Nonce)
}

func unexpected(m types.MethodSignature, result *types.StorageValue) error {
	got := "no value"
	if result != nil {
		got = string(result.Type())
	}
	return fmt.Errorf("moka helpers: %s.%s returned %s, expected %s", m.DefiningClass, m.Name, got, m.ReturnType)
}
