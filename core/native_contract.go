// SPDX-License-Identifier: BUSL-1.1
//
// Native-contract plumbing: one NativeContract value per built-in, a
// method table closed over shared ledger state, dispatched through the VM
// via the System.Contract.CallNative stub.
package core

import (
	"fmt"
	"sort"
)

// Fixed native contract ids; natives are negative, deployed contracts
// count up from one.
const (
	NativeIDManagement int32 = -1
	NativeIDStdLib     int32 = -2
	NativeIDCryptoLib  int32 = -3
	NativeIDLedger     int32 = -4
	NativeIDNeoToken   int32 = -5
	NativeIDGasToken   int32 = -6
	NativeIDPolicy     int32 = -7
	NativeIDRoleMgmt   int32 = -8
	NativeIDOracle     int32 = -9
)

// NativeMethodHandler executes one native method. args arrive in
// declaration order; the return item (possibly nil for void) is pushed for
// the caller.
type NativeMethodHandler func(e *ApplicationEngine, args []*StackItem) (*StackItem, error)

// NativeMethod is one manifest entry of a native contract.
type NativeMethod struct {
	Name          string
	ParamCount    int
	RequiredFlags CallFlags
	Price         int64
	Handler       NativeMethodHandler
}

// NativeManifest is the declared ABI/trust surface of a native contract. A
// deployed contract's Manifest (native_management.go) carries the same group
// semantics; both feed the CustomGroups witness-scope check.
type NativeManifest struct {
	Name               string
	Groups             []ECPoint
	SupportedStandards []string
}

// GroupKeys returns the compressed encodings of the manifest's groups.
func (m *NativeManifest) GroupKeys() [][]byte {
	out := make([][]byte, len(m.Groups))
	for i, g := range m.Groups {
		out[i] = g.CompressedBytes()
	}
	return out
}

// NativeContract is one in-process contract: an id, a stub script whose
// hash doubles as the contract address, and a method table.
type NativeContract struct {
	ID       int32
	Name     string
	Hash     U160
	Manifest NativeManifest

	methods map[string]*NativeMethod

	// Lifecycle hooks. Any may be nil.
	initialize  func(e *ApplicationEngine) error
	onPersist   func(e *ApplicationEngine) error
	postPersist func(e *ApplicationEngine) error

	stub []byte
}

func newNativeContract(id int32, name string) *NativeContract {
	n := &NativeContract{
		ID:       id,
		Name:     name,
		Manifest: NativeManifest{Name: name},
		methods:  make(map[string]*NativeMethod),
	}
	n.stub = buildNativeStub(id)
	n.Hash = H160(n.stub)
	return n
}

// buildNativeStub emits the canonical native entry script: push the
// contract id, then System.Contract.CallNative.
func buildNativeStub(id int32) []byte {
	script := make([]byte, 0, 10)
	script = append(script, byte(OpPUSHINT32))
	script = append(script,
		byte(id), byte(id>>8), byte(id>>16), byte(id>>24))
	script = append(script, byte(OpSYSCALL))
	script = append(script, syscallIDBytes(SyscallContractCallNative)...)
	return script
}

// StubScript returns the native's loadable entry script.
func (n *NativeContract) StubScript() []byte { return n.stub }

func (n *NativeContract) register(m *NativeMethod) {
	key := methodKey(m.Name, m.ParamCount)
	if _, exists := n.methods[key]; exists {
		panic(fmt.Sprintf("native %s: duplicate method %s", n.Name, key))
	}
	n.methods[key] = m
}

func methodKey(name string, paramCount int) string {
	return fmt.Sprintf("%s/%d", name, paramCount)
}

// Invoke dispatches method against the native's table, enforcing call flags
// and charging the declared price.
func (n *NativeContract) Invoke(e *ApplicationEngine, method string, args []*StackItem) (*StackItem, error) {
	m, ok := n.methods[methodKey(method, len(args))]
	if !ok {
		return nil, newFault("native %s: no method %q with %d args", n.Name, method, len(args))
	}
	if err := e.checkFlags(m.RequiredFlags); err != nil {
		return nil, err
	}
	if err := e.AddGas(m.Price * e.execFeeFactor); err != nil {
		return nil, err
	}
	return m.Handler(e, args)
}

// NativeRegistry holds every native in its fixed OnPersist order and gives
// the engine hash/id lookup.
type NativeRegistry struct {
	Management *ContractManagement
	StdLib     *StdLib
	CryptoLib  *CryptoLib
	Ledger     *LedgerContract
	Neo        *NeoToken
	Gas        *GasToken
	Policy     *PolicyContract
	Roles      *RoleManagement
	Oracle     *OracleContract

	ordered []*NativeContract
	byHash  map[U160]*NativeContract
	byID    map[int32]*NativeContract
}

// NewNativeRegistry constructs the full native set for the given protocol
// parameters. The OnPersist order is fixed; PostPersist runs the same list
// in reverse.
func NewNativeRegistry(cfg *ProtocolConfig) *NativeRegistry {
	r := &NativeRegistry{
		byHash: make(map[U160]*NativeContract),
		byID:   make(map[int32]*NativeContract),
	}
	r.Management = NewContractManagement()
	r.StdLib = NewStdLib()
	r.CryptoLib = NewCryptoLib()
	r.Ledger = NewLedgerContract()
	r.Neo = NewNeoToken(cfg)
	r.Gas = NewGasToken(cfg)
	r.Policy = NewPolicyContract(cfg)
	r.Roles = NewRoleManagement(cfg)
	r.Oracle = NewOracleContract(cfg)
	r.Neo.bindGas(r.Gas)
	r.Oracle.bindGas(r.Gas)

	for _, n := range []*NativeContract{
		r.Management.NativeContract,
		r.StdLib.NativeContract,
		r.CryptoLib.NativeContract,
		r.Ledger.NativeContract,
		r.Neo.NativeContract,
		r.Gas.NativeContract,
		r.Policy.NativeContract,
		r.Roles.NativeContract,
		r.Oracle.NativeContract,
	} {
		r.ordered = append(r.ordered, n)
		r.byHash[n.Hash] = n
		r.byID[n.ID] = n
	}
	return r
}

// ByHash resolves a native by its script hash.
func (r *NativeRegistry) ByHash(h U160) (*NativeContract, bool) {
	n, ok := r.byHash[h]
	return n, ok
}

// ByID resolves a native by its contract id.
func (r *NativeRegistry) ByID(id int32) (*NativeContract, bool) {
	n, ok := r.byID[id]
	return n, ok
}

// All returns the natives in OnPersist order.
func (r *NativeRegistry) All() []*NativeContract { return r.ordered }

// Initialize runs every native's genesis hook once, in order.
func (r *NativeRegistry) Initialize(e *ApplicationEngine) error {
	for _, n := range r.ordered {
		if n.initialize == nil {
			continue
		}
		if err := n.initialize(e); err != nil {
			return fmt.Errorf("native %s initialize: %w", n.Name, err)
		}
	}
	return nil
}

// OnPersist runs the natives' pre-block hooks in fixed order.
func (r *NativeRegistry) OnPersist(e *ApplicationEngine) error {
	for _, n := range r.ordered {
		if n.onPersist == nil {
			continue
		}
		if err := n.onPersist(e); err != nil {
			return fmt.Errorf("native %s onPersist: %w", n.Name, err)
		}
	}
	return nil
}

// PostPersist runs the post-block hooks in reverse order.
func (r *NativeRegistry) PostPersist(e *ApplicationEngine) error {
	for i := len(r.ordered) - 1; i >= 0; i-- {
		n := r.ordered[i]
		if n.postPersist == nil {
			continue
		}
		if err := n.postPersist(e); err != nil {
			return fmt.Errorf("native %s postPersist: %w", n.Name, err)
		}
	}
	return nil
}

// Storage helpers shared by every native: all native contract state lives
// under the contract-storage namespace keyed by the native's negative id.

func nativeGet(snap *Snapshot, id int32, key []byte) ([]byte, bool) {
	return snap.Get(storageRecordKey(id, key))
}

func nativePut(snap *Snapshot, id int32, key, value []byte) {
	snap.Put(storageRecordKey(id, key), value)
}

func nativeDelete(snap *Snapshot, id int32, key []byte) {
	snap.Delete(storageRecordKey(id, key))
}

func nativeSeek(snap *Snapshot, id int32, keyPrefix []byte) []KVPair {
	return snap.Seek(storageRecordKey(id, keyPrefix), SeekForward)
}

// popU160 coerces a method argument to a script hash.
func popU160(item *StackItem) (U160, error) {
	raw, err := item.Bytes()
	if err != nil {
		return U160{}, err
	}
	return U160FromBytes(raw)
}

// sortCandidates orders (key, votes) pairs by votes descending, then by
// compressed key ascending, the deterministic committee order.
func sortCandidates(cands []candidate) {
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].Votes.Cmp(cands[j].Votes) != 0 {
			return cands[i].Votes.Cmp(cands[j].Votes) > 0
		}
		return compareKeys(cands[i].Key.CompressedBytes(), cands[j].Key.CompressedBytes()) < 0
	})
}
