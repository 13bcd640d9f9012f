// SPDX-License-Identifier: BUSL-1.1
//
// ContractManagement: deploy/update/destroy for user contracts,
// plus the hash->state lookup System.Contract.Call resolves through.
package core

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math/big"
)

var (
	mgmtPrefixContract = []byte{0x08}
	mgmtKeyNextID      = []byte{0x0C}
)

// ManifestMethod is one ABI entry of a deployed contract: the method name
// and the script offset execution starts at.
type ManifestMethod struct {
	Name        string
	Offset      int
	ParamCount  int
	ReturnValue bool
	Safe        bool
}

// Manifest declares a deployed contract's ABI, trust groups and standards
// a contract's declared ABI, trust groups and supported standards.
type Manifest struct {
	Name               string
	Groups             [][]byte // compressed group keys
	SupportedStandards []string
	Methods            []ManifestMethod
}

// GroupKeys returns the manifest's group keys for witness-scope checks.
func (m *Manifest) GroupKeys() [][]byte { return m.Groups }

// Method resolves a callable ABI entry by name and arity.
func (m *Manifest) Method(name string, paramCount int) (*ManifestMethod, bool) {
	for i := range m.Methods {
		md := &m.Methods[i]
		if md.Name == name && md.ParamCount == paramCount {
			return md, true
		}
	}
	return nil, false
}

func (m *Manifest) serialize(bw *BinaryWriter) {
	bw.WriteVarString(m.Name)
	bw.WriteVarInt(uint64(len(m.Groups)))
	for _, g := range m.Groups {
		bw.WriteVarBytes(g)
	}
	bw.WriteVarInt(uint64(len(m.SupportedStandards)))
	for _, s := range m.SupportedStandards {
		bw.WriteVarString(s)
	}
	bw.WriteVarInt(uint64(len(m.Methods)))
	for _, md := range m.Methods {
		bw.WriteVarString(md.Name)
		bw.WriteU32(uint32(md.Offset))
		bw.WriteU16(uint16(md.ParamCount))
		bw.WriteBool(md.ReturnValue)
		bw.WriteBool(md.Safe)
	}
}

func deserializeManifest(br *BinaryReader) (*Manifest, error) {
	m := &Manifest{}
	m.Name = br.ReadVarString(256)
	ReadArray(br, 16, func() { m.Groups = append(m.Groups, br.ReadVarBytes(33)) })
	ReadArray(br, 32, func() { m.SupportedStandards = append(m.SupportedStandards, br.ReadVarString(32)) })
	ReadArray(br, 1024, func() {
		var md ManifestMethod
		md.Name = br.ReadVarString(64)
		md.Offset = int(br.ReadU32())
		md.ParamCount = int(br.ReadU16())
		md.ReturnValue = br.ReadBool()
		md.Safe = br.ReadBool()
		m.Methods = append(m.Methods, md)
	})
	if br.Err() != nil {
		return nil, fmt.Errorf("manifest: %w", br.Err())
	}
	if m.Name == "" {
		return nil, fmt.Errorf("manifest: empty name")
	}
	return m, nil
}

// SerializeManifest renders a manifest to bytes (deploy argument form).
func SerializeManifest(m *Manifest) []byte {
	var buf bytes.Buffer
	m.serialize(NewBinaryWriter(&buf))
	return buf.Bytes()
}

// DeserializeManifest parses a manifest from its byte form.
func DeserializeManifest(raw []byte) (*Manifest, error) {
	return deserializeManifest(NewBinaryReader(bytes.NewReader(raw)))
}

// ContractState is the stored record of a deployed contract.
type ContractState struct {
	ID            int32
	UpdateCounter uint16
	Hash          U160
	NEF           *NEF
	Manifest      *Manifest
}

func (cs *ContractState) serialize() ([]byte, error) {
	nefRaw, err := cs.NEF.Serialize()
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	bw := NewBinaryWriter(&buf)
	bw.WriteU32(uint32(cs.ID))
	bw.WriteU16(cs.UpdateCounter)
	bw.WriteU160(cs.Hash)
	bw.WriteVarBytes(nefRaw)
	cs.Manifest.serialize(bw)
	if bw.Err() != nil {
		return nil, bw.Err()
	}
	return buf.Bytes(), nil
}

func deserializeContractState(raw []byte) (*ContractState, error) {
	br := NewBinaryReader(bytes.NewReader(raw))
	cs := &ContractState{}
	cs.ID = int32(br.ReadU32())
	cs.UpdateCounter = br.ReadU16()
	cs.Hash = br.ReadU160()
	nefRaw := br.ReadVarBytes(MaxScriptLength + 1024)
	if br.Err() != nil {
		return nil, br.Err()
	}
	nef, err := DeserializeNEF(nefRaw)
	if err != nil {
		return nil, err
	}
	cs.NEF = nef
	manifest, err := deserializeManifest(br)
	if err != nil {
		return nil, err
	}
	cs.Manifest = manifest
	return cs, nil
}

// ContractManagement deploys and tracks user contracts.
type ContractManagement struct {
	*NativeContract
}

// NewContractManagement builds the management native.
func NewContractManagement() *ContractManagement {
	m := &ContractManagement{NativeContract: newNativeContract(NativeIDManagement, "ContractManagement")}
	m.registerMethods()
	return m
}

func contractRecordKey(hash U160) []byte {
	return append(append([]byte{}, mgmtPrefixContract...), hash[:]...)
}

// Lookup resolves a deployed contract's state by hash; the engine's
// contract-call path is wired to this.
func (m *ContractManagement) Lookup(snap *Snapshot, hash U160) (*ContractState, bool) {
	raw, ok := nativeGet(snap, m.ID, contractRecordKey(hash))
	if !ok {
		return nil, false
	}
	cs, err := deserializeContractState(raw)
	if err != nil {
		return nil, false
	}
	return cs, true
}

func (m *ContractManagement) nextID(snap *Snapshot) int32 {
	raw, ok := nativeGet(snap, m.ID, mgmtKeyNextID)
	next := int32(1)
	if ok {
		next = int32(bytesToSignedInt(raw).Int64())
	}
	nativePut(snap, m.ID, mgmtKeyNextID, signedIntToBytes(big.NewInt(int64(next+1))))
	return next
}

// ContractHash derives a deployed contract's address from its deployer, NEF
// checksum and manifest name, so redeploying the same code under a
// different name or sender yields a distinct contract.
func ContractHash(sender U160, nefChecksum uint32, name string) U160 {
	buf := make([]byte, 0, 20+4+len(name))
	buf = append(buf, sender[:]...)
	var ck [4]byte
	binary.LittleEndian.PutUint32(ck[:], nefChecksum)
	buf = append(buf, ck[:]...)
	buf = append(buf, []byte(name)...)
	return H160(buf)
}

// deploySender is the tx's first signer, the account that owns the deploy.
func deploySender(e *ApplicationEngine) (U160, error) {
	tx, ok := e.Container.(*Transaction)
	if !ok || len(tx.Signers) == 0 {
		return U160{}, newFault("deploy: no transaction sender")
	}
	return tx.Signers[0].Account, nil
}

func (m *ContractManagement) registerMethods() {
	m.register(&NativeMethod{
		Name: "getContract", ParamCount: 1, RequiredFlags: CallFlagReadStates, Price: 1 << 15,
		Handler: func(e *ApplicationEngine, args []*StackItem) (*StackItem, error) {
			hash, err := popU160(args[0])
			if err != nil {
				return nil, newFault("getContract: %v", err)
			}
			cs, ok := m.Lookup(e.Snapshot, hash)
			if !ok {
				return NewNullItem(), nil
			}
			return contractStateItem(cs), nil
		},
	})
	m.register(&NativeMethod{
		Name: "deploy", ParamCount: 2, RequiredFlags: CallFlagStates | CallFlagAllowNotify, Price: 0,
		Handler: m.handleDeploy,
	})
	m.register(&NativeMethod{
		Name: "update", ParamCount: 2, RequiredFlags: CallFlagStates | CallFlagAllowNotify, Price: 0,
		Handler: m.handleUpdate,
	})
	m.register(&NativeMethod{
		Name: "destroy", ParamCount: 0, RequiredFlags: CallFlagStates | CallFlagAllowNotify, Price: 1 << 15,
		Handler: m.handleDestroy,
	})
}

func contractStateItem(cs *ContractState) *StackItem {
	return NewArrayItem([]*StackItem{
		NewIntItemInt64(int64(cs.ID)),
		NewIntItemInt64(int64(cs.UpdateCounter)),
		NewByteStringItem(cs.Hash.Bytes()),
		NewByteStringItem(cs.NEF.Script),
		NewByteStringItem([]byte(cs.Manifest.Name)),
	})
}

func (m *ContractManagement) handleDeploy(e *ApplicationEngine, args []*StackItem) (*StackItem, error) {
	nefRaw, err := args[0].Bytes()
	if err != nil {
		return nil, newFault("deploy: %v", err)
	}
	manifestRaw, err := args[1].Bytes()
	if err != nil {
		return nil, newFault("deploy: %v", err)
	}
	// Deployment charges per byte of code and manifest on top of the
	// storage writes below.
	if err := e.AddGas(int64(len(nefRaw)+len(manifestRaw)) * e.storagePrice()); err != nil {
		return nil, err
	}
	nef, err := DeserializeNEF(nefRaw)
	if err != nil {
		return nil, newFault("deploy: %v", err)
	}
	manifest, err := DeserializeManifest(manifestRaw)
	if err != nil {
		return nil, newFault("deploy: %v", err)
	}
	sender, err := deploySender(e)
	if err != nil {
		return nil, err
	}
	hash := ContractHash(sender, nef.Checksum(), manifest.Name)
	if _, exists := m.Lookup(e.Snapshot, hash); exists {
		return nil, newFault("deploy: contract %s already exists", hash)
	}
	cs := &ContractState{
		ID:       m.nextID(e.Snapshot),
		Hash:     hash,
		NEF:      nef,
		Manifest: manifest,
	}
	raw, err := cs.serialize()
	if err != nil {
		return nil, newFault("deploy: %v", err)
	}
	nativePut(e.Snapshot, m.ID, contractRecordKey(hash), raw)
	if err := e.notify(m.Hash, "Deploy", NewArrayItem([]*StackItem{
		NewByteStringItem(hash.Bytes()),
	})); err != nil {
		return nil, err
	}
	return contractStateItem(cs), nil
}

func (m *ContractManagement) handleUpdate(e *ApplicationEngine, args []*StackItem) (*StackItem, error) {
	// Only the contract itself may update: the calling context must be the
	// stored contract.
	caller := e.CallingScriptHash()
	cs, ok := m.Lookup(e.Snapshot, caller)
	if !ok {
		return nil, newFault("update: caller %s is not a deployed contract", caller)
	}
	nefRaw, err := args[0].Bytes()
	if err != nil {
		return nil, newFault("update: %v", err)
	}
	manifestRaw, err := args[1].Bytes()
	if err != nil {
		return nil, newFault("update: %v", err)
	}
	if err := e.AddGas(int64(len(nefRaw)+len(manifestRaw)) * e.storagePrice()); err != nil {
		return nil, err
	}
	nef, err := DeserializeNEF(nefRaw)
	if err != nil {
		return nil, newFault("update: %v", err)
	}
	manifest, err := DeserializeManifest(manifestRaw)
	if err != nil {
		return nil, newFault("update: %v", err)
	}
	cs.NEF = nef
	cs.Manifest = manifest
	cs.UpdateCounter++
	raw, err := cs.serialize()
	if err != nil {
		return nil, newFault("update: %v", err)
	}
	nativePut(e.Snapshot, m.ID, contractRecordKey(cs.Hash), raw)
	if err := e.notify(m.Hash, "Update", NewArrayItem([]*StackItem{
		NewByteStringItem(cs.Hash.Bytes()),
	})); err != nil {
		return nil, err
	}
	return nil, nil
}

func (m *ContractManagement) handleDestroy(e *ApplicationEngine, _ []*StackItem) (*StackItem, error) {
	caller := e.CallingScriptHash()
	cs, ok := m.Lookup(e.Snapshot, caller)
	if !ok {
		return nil, newFault("destroy: caller %s is not a deployed contract", caller)
	}
	nativeDelete(e.Snapshot, m.ID, contractRecordKey(cs.Hash))
	// Drop the contract's entire storage namespace with it.
	for _, kv := range e.Snapshot.Seek(storageRecordKey(cs.ID, nil), SeekForward) {
		e.Snapshot.Delete(kv.Key)
	}
	if err := e.notify(m.Hash, "Destroy", NewArrayItem([]*StackItem{
		NewByteStringItem(cs.Hash.Bytes()),
	})); err != nil {
		return nil, err
	}
	return nil, nil
}
