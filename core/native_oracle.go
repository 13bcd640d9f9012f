// SPDX-License-Identifier: BUSL-1.1
//
// OracleContract: the external-HTTPS request queue. Contracts
// enqueue requests with a gas deposit; responses come back as OracleResponse
// transaction attributes, and PostPersist settles each one: delete the
// request, pay the designated oracle nodes, invoke the callback.
package core

import (
	"bytes"
	"encoding/binary"
	"math/big"

	"github.com/google/uuid"
)

var (
	oraclePrefixRequest = []byte{0x07}
	oracleKeyNextID     = []byte{0x09}
)

const (
	oracleMaxURLLength      = 256
	oracleMaxFilterLength   = 128
	oracleMaxCallbackLength = 32
	oracleMaxUserDataLength = 512
	oracleMinResponseGas    = 10_000_000 // 0.1 GAS deposit floor
)

// OracleRequest is one pending external fetch.
type OracleRequest struct {
	ID               uint64
	CorrelationID    string // uuid, for operator-side log correlation only
	URL              string
	Filter           string
	CallbackContract U160
	CallbackMethod   string
	UserData         []byte
	GasForResponse   int64
	OriginalTxHash   U256
}

func (r *OracleRequest) serialize() []byte {
	var buf bytes.Buffer
	bw := NewBinaryWriter(&buf)
	bw.WriteU64(r.ID)
	bw.WriteVarString(r.CorrelationID)
	bw.WriteVarString(r.URL)
	bw.WriteVarString(r.Filter)
	bw.WriteU160(r.CallbackContract)
	bw.WriteVarString(r.CallbackMethod)
	bw.WriteVarBytes(r.UserData)
	bw.WriteI64(r.GasForResponse)
	bw.WriteU256(r.OriginalTxHash)
	return buf.Bytes()
}

func deserializeOracleRequest(raw []byte) (*OracleRequest, error) {
	br := NewBinaryReader(bytes.NewReader(raw))
	r := &OracleRequest{}
	r.ID = br.ReadU64()
	r.CorrelationID = br.ReadVarString(64)
	r.URL = br.ReadVarString(oracleMaxURLLength)
	r.Filter = br.ReadVarString(oracleMaxFilterLength)
	r.CallbackContract = br.ReadU160()
	r.CallbackMethod = br.ReadVarString(oracleMaxCallbackLength)
	r.UserData = br.ReadVarBytes(oracleMaxUserDataLength)
	r.GasForResponse = br.ReadI64()
	r.OriginalTxHash = br.ReadU256()
	if br.Err() != nil {
		return nil, br.Err()
	}
	return r, nil
}

// OracleContract manages the request queue and response settlement.
type OracleContract struct {
	*NativeContract
	cfg *ProtocolConfig
	gas *GasToken
}

// NewOracleContract builds the oracle native.
func NewOracleContract(cfg *ProtocolConfig) *OracleContract {
	o := &OracleContract{
		NativeContract: newNativeContract(NativeIDOracle, "OracleContract"),
		cfg:            cfg,
	}
	o.registerMethods()
	o.postPersist = o.postPersistHook
	return o
}

func (o *OracleContract) bindGas(g *GasToken) { o.gas = g }

func oracleRequestKey(id uint64) []byte {
	out := make([]byte, 9)
	copy(out, oraclePrefixRequest)
	binary.BigEndian.PutUint64(out[1:], id)
	return out
}

func (o *OracleContract) nextRequestID(snap *Snapshot) uint64 {
	raw, ok := nativeGet(snap, o.ID, oracleKeyNextID)
	next := uint64(0)
	if ok {
		next = binary.LittleEndian.Uint64(raw)
	}
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], next+1)
	nativePut(snap, o.ID, oracleKeyNextID, buf[:])
	return next
}

// Request returns the stored pending request for id.
func (o *OracleContract) Request(snap *Snapshot, id uint64) (*OracleRequest, bool) {
	raw, ok := nativeGet(snap, o.ID, oracleRequestKey(id))
	if !ok {
		return nil, false
	}
	r, err := deserializeOracleRequest(raw)
	if err != nil {
		return nil, false
	}
	return r, true
}

func (o *OracleContract) registerMethods() {
	o.register(&NativeMethod{
		Name: "request", ParamCount: 5, RequiredFlags: CallFlagStates | CallFlagAllowNotify, Price: 0,
		Handler: o.handleRequest,
	})
	o.register(&NativeMethod{
		Name: "getPrice", ParamCount: 0, RequiredFlags: CallFlagReadStates, Price: 1 << 15,
		Handler: func(e *ApplicationEngine, _ []*StackItem) (*StackItem, error) {
			return NewIntItemInt64(oracleMinResponseGas), nil
		},
	})
}

// handleRequest enqueues an external fetch: (url, filter, callbackMethod,
// userData, gasForResponse). The calling script hash is stored as the
// callback contract without checking that it is a deployed contract; the
// deposit is charged against the running execution's gas.
func (o *OracleContract) handleRequest(e *ApplicationEngine, args []*StackItem) (*StackItem, error) {
	urlRaw, err := args[0].Bytes()
	if err != nil || len(urlRaw) == 0 || len(urlRaw) > oracleMaxURLLength {
		return nil, newFault("oracle request: invalid url")
	}
	var filter []byte
	if !args[1].IsNull() {
		filter, err = args[1].Bytes()
		if err != nil || len(filter) > oracleMaxFilterLength {
			return nil, newFault("oracle request: invalid filter")
		}
	}
	cbRaw, err := args[2].Bytes()
	if err != nil || len(cbRaw) == 0 || len(cbRaw) > oracleMaxCallbackLength {
		return nil, newFault("oracle request: invalid callback method")
	}
	userData := []byte{}
	if !args[3].IsNull() {
		userData, err = args[3].Bytes()
		if err != nil || len(userData) > oracleMaxUserDataLength {
			return nil, newFault("oracle request: invalid user data")
		}
	}
	gasForResponse, err := args[4].Int()
	if err != nil {
		return nil, newFault("oracle request: %v", err)
	}
	if gasForResponse.Cmp(big.NewInt(oracleMinResponseGas)) < 0 {
		return nil, newFault("oracle request: response gas below minimum")
	}
	// The deposit is consumed now and paid out to oracle nodes when the
	// response settles.
	if err := e.AddGas(gasForResponse.Int64()); err != nil {
		return nil, err
	}
	var originalHash U256
	if tx, ok := e.Container.(*Transaction); ok {
		originalHash = tx.Hash()
	}
	req := &OracleRequest{
		ID:               o.nextRequestID(e.Snapshot),
		CorrelationID:    uuid.NewString(),
		URL:              string(urlRaw),
		Filter:           string(filter),
		CallbackContract: e.CallingScriptHash(),
		CallbackMethod:   string(cbRaw),
		UserData:         userData,
		GasForResponse:   gasForResponse.Int64(),
		OriginalTxHash:   originalHash,
	}
	nativePut(e.Snapshot, o.ID, oracleRequestKey(req.ID), req.serialize())
	if err := e.notify(o.Hash, "OracleRequest", NewArrayItem([]*StackItem{
		NewIntItemInt64(int64(req.ID)),
		NewByteStringItem(req.CallbackContract.Bytes()),
		NewByteStringItem([]byte(req.URL)),
		NewByteStringItem([]byte(req.Filter)),
	})); err != nil {
		return nil, err
	}
	return NewIntItemInt64(int64(req.ID)), nil
}

// postPersistHook settles every OracleResponse attribute in the persisting
// block: burn the request, split its deposit across the designated oracle
// nodes (integer division, remainder to the last node in index order), and
// invoke the requesting contract's callback.
func (o *OracleContract) postPersistHook(e *ApplicationEngine) error {
	block := e.PersistingBlock
	if block == nil {
		return nil
	}
	var nodes []ECPoint
	if e.natives != nil && e.natives.Roles != nil {
		nodes = e.natives.Roles.DesignatedByRole(e.Snapshot, RoleOracle, block.Header.Index)
	}
	for _, tx := range block.Transactions {
		for _, attr := range tx.Attributes {
			if attr.Type != AttrOracleResponse {
				continue
			}
			req, ok := o.Request(e.Snapshot, attr.OracleID)
			if !ok {
				continue
			}
			nativeDelete(e.Snapshot, o.ID, oracleRequestKey(req.ID))
			if err := o.payNodes(e, nodes, req.GasForResponse); err != nil {
				return err
			}
			o.invokeCallback(e, req, &attr)
		}
	}
	return nil
}

// payNodes splits amount evenly; the division remainder goes to the last
// designated node in index order.
func (o *OracleContract) payNodes(e *ApplicationEngine, nodes []ECPoint, amount int64) error {
	if len(nodes) == 0 || amount <= 0 || o.gas == nil {
		return nil
	}
	share := amount / int64(len(nodes))
	remainder := amount % int64(len(nodes))
	for i, node := range nodes {
		pay := share
		if i == len(nodes)-1 {
			pay += remainder
		}
		if pay <= 0 {
			continue
		}
		if err := o.gas.Mint(e, node.ScriptHash(), big.NewInt(pay)); err != nil {
			return err
		}
	}
	return nil
}

// invokeCallback loads the requesting contract's callback with the response
// payload. A failing callback must not poison block persistence, so faults
// are contained to a sub-engine sharing the snapshot and gas residue.
func (o *OracleContract) invokeCallback(e *ApplicationEngine, req *OracleRequest, attr *Attribute) {
	args := []*StackItem{
		NewByteStringItem([]byte(req.URL)),
		NewByteStringItem(req.UserData),
		NewIntItemInt64(int64(attr.OracleCode)),
		NewByteStringItem(attr.OracleResult),
	}
	sub := NewApplicationEngine(EngineOptions{
		Trigger:       TriggerApplication,
		Snapshot:      e.Snapshot,
		Container:     e.Container,
		GasLimit:      req.GasForResponse,
		Network:       e.Network,
		Height:        e.currentHeight,
		TimestampMS:   e.timestampMS,
		RandomSeed:    e.randomSeed,
		Natives:       e.natives,
		Persisting:    e.PersistingBlock,
		ExecFeeFactor: e.execFeeFactor,
	})
	sub.contractLookup = e.contractLookup
	if sub.contractLookup == nil {
		return
	}
	cs, ok := sub.contractLookup(e.Snapshot, req.CallbackContract)
	if !ok {
		return
	}
	md, ok := cs.Manifest.Method(req.CallbackMethod, len(args))
	if !ok {
		return
	}
	ctx, err := sub.LoadContractScript(cs.NEF.Script, cs.Hash, CallFlagAll, 0)
	if err != nil {
		return
	}
	ctx.InstrPointer = md.Offset
	for i := len(args) - 1; i >= 0; i-- {
		ctx.Push(args[i])
	}
	sub.Run()
	// The callback's notifications belong to the block's execution record.
	e.notifications = append(e.notifications, sub.notifications...)
}
