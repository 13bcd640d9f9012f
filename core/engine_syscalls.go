// SPDX-License-Identifier: BUSL-1.1
//
// System-call table. Syscalls are identified by the first four
// bytes of SHA-256 over their dotted name, read little-endian; the table is
// built once at init the same way the opcode jump table is, with duplicate
// registration treated as a programming error.
package core

import (
	"encoding/binary"
	"fmt"
	"math/big"
)

// SyscallHandler runs one host function against the engine. Arguments are
// popped from and results pushed to the current evaluation stack.
type SyscallHandler func(e *ApplicationEngine) error

// SyscallDescriptor is one entry of the system-call table.
type SyscallDescriptor struct {
	ID            uint32
	Name          string
	Price         int64
	RequiredFlags CallFlags
	Handler       SyscallHandler
}

var syscallTable = make(map[uint32]*SyscallDescriptor)

// hashSyscallName derives the 32-bit dispatch id from a syscall's dotted
// name.
func hashSyscallName(name string) uint32 {
	sum := H256([]byte(name))
	return binary.LittleEndian.Uint32(sum[:4])
}

// syscallIDBytes renders id in the little-endian form embedded as the
// SYSCALL opcode's operand.
func syscallIDBytes(id uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, id)
	return b
}

func registerSyscall(name string, price int64, flags CallFlags, handler SyscallHandler) uint32 {
	id := hashSyscallName(name)
	if _, exists := syscallTable[id]; exists {
		panic(fmt.Sprintf("syscall: id collision for %s", name))
	}
	syscallTable[id] = &SyscallDescriptor{ID: id, Name: name, Price: price, RequiredFlags: flags, Handler: handler}
	return id
}

// Syscall ids referenced from outside the dispatch path (verification
// script builders, native stubs).
var (
	SyscallCryptoCheckSig      uint32
	SyscallCryptoCheckMultisig uint32
	SyscallContractCallNative  uint32
)

const (
	priceRuntimeConstant int64 = 1 << 3
	priceRuntimeRead     int64 = 1 << 4
	priceNotify          int64 = 1 << 9
	priceCheckWitness    int64 = 1 << 10
	priceStorageRead     int64 = 1 << 15
	priceStorageWrite    int64 = 1 << 15
	priceContractCall    int64 = 1 << 15
	priceCheckSig        int64 = 1 << 15
	priceCreateAccount   int64 = 1 << 8
)

func init() {
	registerSyscall("System.Runtime.Platform", priceRuntimeConstant, CallFlagNone, func(e *ApplicationEngine) error {
		return e.Push(NewByteStringItem([]byte("NEO")))
	})
	registerSyscall("System.Runtime.GetNetwork", priceRuntimeConstant, CallFlagNone, func(e *ApplicationEngine) error {
		return e.Push(NewIntItemInt64(int64(e.Network)))
	})
	registerSyscall("System.Runtime.GetAddressVersion", priceRuntimeConstant, CallFlagNone, func(e *ApplicationEngine) error {
		return e.Push(NewIntItemInt64(int64(AddressVersion)))
	})
	registerSyscall("System.Runtime.GetTrigger", priceRuntimeConstant, CallFlagNone, func(e *ApplicationEngine) error {
		return e.Push(NewIntItemInt64(int64(e.Trigger)))
	})
	registerSyscall("System.Runtime.GetTime", priceRuntimeRead, CallFlagNone, func(e *ApplicationEngine) error {
		return e.Push(NewIntItemInt64(int64(e.timestampMS)))
	})
	registerSyscall("System.Runtime.GetRandom", priceRuntimeRead, CallFlagNone, func(e *ApplicationEngine) error {
		// Deterministic per (seed, invocation ordinal): every replica
		// computes the same sequence for the same block and script.
		e.invocationSalt++
		var buf [16]byte
		binary.LittleEndian.PutUint64(buf[:8], e.randomSeed)
		binary.LittleEndian.PutUint64(buf[8:], e.invocationSalt)
		h := H256(buf[:])
		return e.Push(NewIntItem(new(big.Int).SetBytes(h[:8])))
	})
	registerSyscall("System.Runtime.GetScriptContainer", priceRuntimeRead, CallFlagNone, func(e *ApplicationEngine) error {
		return e.Push(e.scriptContainerItem())
	})
	registerSyscall("System.Runtime.GetExecutingScriptHash", priceRuntimeConstant, CallFlagNone, func(e *ApplicationEngine) error {
		h := e.CurrentScriptHash()
		return e.Push(NewByteStringItem(h.Bytes()))
	})
	registerSyscall("System.Runtime.GetCallingScriptHash", priceRuntimeConstant, CallFlagNone, func(e *ApplicationEngine) error {
		h := e.CallingScriptHash()
		return e.Push(NewByteStringItem(h.Bytes()))
	})
	registerSyscall("System.Runtime.GetEntryScriptHash", priceRuntimeConstant, CallFlagNone, func(e *ApplicationEngine) error {
		h := e.EntryScriptHash()
		return e.Push(NewByteStringItem(h.Bytes()))
	})
	registerSyscall("System.Runtime.GasLeft", priceRuntimeConstant, CallFlagNone, func(e *ApplicationEngine) error {
		if e.gasLimit < 0 {
			return e.Push(NewIntItemInt64(-1))
		}
		return e.Push(NewIntItemInt64(e.gasLimit - e.gasConsumed))
	})
	registerSyscall("System.Runtime.BurnGas", priceRuntimeConstant, CallFlagNone, func(e *ApplicationEngine) error {
		amt, err := popInt64(e)
		if err != nil {
			return err
		}
		if amt <= 0 {
			return newFault("BurnGas: amount must be positive")
		}
		return e.AddGas(amt)
	})
	registerSyscall("System.Runtime.CheckWitness", priceCheckWitness, CallFlagNone, func(e *ApplicationEngine) error {
		item, err := e.Pop()
		if err != nil {
			return err
		}
		ok, err := e.checkWitnessItem(item)
		if err != nil {
			return err
		}
		return e.Push(NewBoolItem(ok))
	})
	registerSyscall("System.Runtime.Notify", priceNotify, CallFlagAllowNotify, func(e *ApplicationEngine) error {
		nameItem, err := e.Pop()
		if err != nil {
			return err
		}
		state, err := e.Pop()
		if err != nil {
			return err
		}
		name, err := nameItem.Bytes()
		if err != nil {
			return newFault("Notify: event name must be a byte string")
		}
		return e.notify(e.CurrentScriptHash(), string(name), state)
	})
	registerSyscall("System.Runtime.Log", priceNotify, CallFlagNone, func(e *ApplicationEngine) error {
		item, err := e.Pop()
		if err != nil {
			return err
		}
		msg, err := item.Bytes()
		if err != nil {
			return newFault("Log: message must be a byte string")
		}
		if len(msg) > 1024 {
			return newFault("Log: message too long")
		}
		e.logs = append(e.logs, string(msg))
		return nil
	})

	registerSyscall("System.Storage.GetContext", priceRuntimeRead, CallFlagReadStates, func(e *ApplicationEngine) error {
		sc, err := e.currentStorageContext(false)
		if err != nil {
			return err
		}
		return e.Push(NewInteropItem(sc))
	})
	registerSyscall("System.Storage.GetReadOnlyContext", priceRuntimeRead, CallFlagReadStates, func(e *ApplicationEngine) error {
		sc, err := e.currentStorageContext(true)
		if err != nil {
			return err
		}
		return e.Push(NewInteropItem(sc))
	})
	registerSyscall("System.Storage.AsReadOnly", priceRuntimeConstant, CallFlagReadStates, func(e *ApplicationEngine) error {
		sc, err := popStorageContext(e)
		if err != nil {
			return err
		}
		ro := *sc
		ro.ReadOnly = true
		return e.Push(NewInteropItem(&ro))
	})
	registerSyscall("System.Storage.Get", priceStorageRead, CallFlagReadStates, opStorageGet)
	registerSyscall("System.Storage.Put", priceStorageWrite, CallFlagWriteStates, opStoragePut)
	registerSyscall("System.Storage.Delete", priceStorageWrite, CallFlagWriteStates, opStorageDelete)
	registerSyscall("System.Storage.Find", priceStorageRead, CallFlagReadStates, opStorageFind)

	registerSyscall("System.Iterator.Next", priceRuntimeRead, CallFlagNone, func(e *ApplicationEngine) error {
		it, err := popStorageIterator(e)
		if err != nil {
			return err
		}
		return e.Push(NewBoolItem(it.next()))
	})
	registerSyscall("System.Iterator.Value", priceRuntimeRead, CallFlagNone, func(e *ApplicationEngine) error {
		it, err := popStorageIterator(e)
		if err != nil {
			return err
		}
		v, err := it.value()
		if err != nil {
			return err
		}
		return e.Push(v)
	})

	registerSyscall("System.Contract.Call", priceContractCall, CallFlagReadStates|CallFlagAllowCall, opContractCall)
	registerSyscall("System.Contract.GetCallFlags", priceRuntimeConstant, CallFlagNone, func(e *ApplicationEngine) error {
		ctx := e.CurrentContext()
		if ctx == nil {
			return newFault("GetCallFlags outside any context")
		}
		return e.Push(NewIntItemInt64(int64(ctx.CallFlags)))
	})
	SyscallContractCallNative = registerSyscall("System.Contract.CallNative", 0, CallFlagNone, opContractCallNative)
	registerSyscall("System.Contract.CreateStandardAccount", priceCreateAccount, CallFlagNone, func(e *ApplicationEngine) error {
		item, err := e.Pop()
		if err != nil {
			return err
		}
		raw, err := item.Bytes()
		if err != nil {
			return newFault("CreateStandardAccount: %v", err)
		}
		p, err := ParseCompressedECPoint(raw)
		if err != nil {
			return newFault("CreateStandardAccount: %v", err)
		}
		h := p.ScriptHash()
		return e.Push(NewByteStringItem(h.Bytes()))
	})
	registerSyscall("System.Contract.CreateMultisigAccount", priceCreateAccount, CallFlagNone, func(e *ApplicationEngine) error {
		m, err := popInt64(e)
		if err != nil {
			return err
		}
		arr, err := popArray(e)
		if err != nil {
			return err
		}
		points := make([]ECPoint, 0, len(arr))
		for _, it := range arr {
			raw, err := it.Bytes()
			if err != nil {
				return newFault("CreateMultisigAccount: %v", err)
			}
			p, err := ParseCompressedECPoint(raw)
			if err != nil {
				return newFault("CreateMultisigAccount: %v", err)
			}
			points = append(points, p)
		}
		h, err := ScriptHashForMultisig(int(m), points)
		if err != nil {
			return newFault("CreateMultisigAccount: %v", err)
		}
		return e.Push(NewByteStringItem(h.Bytes()))
	})

	SyscallCryptoCheckSig = registerSyscall("System.Crypto.CheckSig", priceCheckSig, CallFlagNone, opCryptoCheckSig)
	SyscallCryptoCheckMultisig = registerSyscall("System.Crypto.CheckMultisig", priceCheckSig, CallFlagNone, opCryptoCheckMultisig)
}

// handleSyscall is the VM's OnSysCall binding: price, flag-check, dispatch.
func (e *ApplicationEngine) handleSyscall(id uint32) error {
	desc, ok := syscallTable[id]
	if !ok {
		return newFault("unknown syscall 0x%08x", id)
	}
	if err := e.checkFlags(desc.RequiredFlags); err != nil {
		return err
	}
	if err := e.AddGas(desc.Price * e.execFeeFactor); err != nil {
		return err
	}
	return desc.Handler(e)
}

// StorageContext scopes Storage.* syscalls to one contract's id namespace.
type StorageContext struct {
	ID       int32
	ReadOnly bool
}

// storageRecordKey builds the full store key for a contract storage entry:
// namespace prefix, big-endian contract id, raw key.
func storageRecordKey(contractID int32, key []byte) []byte {
	sk := StorageKey{ContractID: contractID, Key: key}
	return append([]byte{prefixContractStorage}, sk.Encode()...)
}

func (e *ApplicationEngine) currentStorageContext(readOnly bool) (*StorageContext, error) {
	id, ok := e.contractIDOf(e.CurrentScriptHash())
	if !ok {
		return nil, newFault("GetContext: current script is not a stored contract")
	}
	return &StorageContext{ID: id, ReadOnly: readOnly}, nil
}

// contractIDOf resolves the storage id behind a script hash: native
// contracts first, then deployed contracts via the management lookup.
func (e *ApplicationEngine) contractIDOf(hash U160) (int32, bool) {
	if e.natives != nil {
		if n, ok := e.natives.ByHash(hash); ok {
			return n.ID, true
		}
	}
	if e.contractLookup != nil {
		if cs, ok := e.contractLookup(e.Snapshot, hash); ok {
			return cs.ID, true
		}
	}
	return 0, false
}

func popStorageContext(e *ApplicationEngine) (*StorageContext, error) {
	item, err := e.Pop()
	if err != nil {
		return nil, err
	}
	sc, ok := item.interop.(*StorageContext)
	if !ok {
		return nil, newFault("expected a storage context on the stack")
	}
	return sc, nil
}

func opStorageGet(e *ApplicationEngine) error {
	sc, err := popStorageContext(e)
	if err != nil {
		return err
	}
	keyItem, err := e.Pop()
	if err != nil {
		return err
	}
	key, err := keyItem.Bytes()
	if err != nil {
		return newFault("Storage.Get: %v", err)
	}
	v, ok := e.Snapshot.Get(storageRecordKey(sc.ID, key))
	if !ok {
		return e.Push(NewNullItem())
	}
	return e.Push(NewByteStringItem(v))
}

func opStoragePut(e *ApplicationEngine) error {
	sc, err := popStorageContext(e)
	if err != nil {
		return err
	}
	if sc.ReadOnly {
		return newFault("Storage.Put on a read-only context")
	}
	keyItem, err := e.Pop()
	if err != nil {
		return err
	}
	valItem, err := e.Pop()
	if err != nil {
		return err
	}
	key, err := keyItem.Bytes()
	if err != nil {
		return newFault("Storage.Put: %v", err)
	}
	val, err := valItem.Bytes()
	if err != nil {
		return newFault("Storage.Put: %v", err)
	}
	if len(key) > MaxKeySize-5 { // prefix byte + 4-byte contract id share the limit
		return newFault("Storage.Put: key length %d too large", len(key))
	}
	if len(val) > MaxValueSize {
		return newFault("Storage.Put: value length %d too large", len(val))
	}
	// Storage writes price per byte on top of the flat syscall cost.
	if err := e.AddGas(int64(len(key)+len(val)) * e.storagePrice()); err != nil {
		return err
	}
	e.Snapshot.Put(storageRecordKey(sc.ID, key), val)
	return nil
}

func opStorageDelete(e *ApplicationEngine) error {
	sc, err := popStorageContext(e)
	if err != nil {
		return err
	}
	if sc.ReadOnly {
		return newFault("Storage.Delete on a read-only context")
	}
	keyItem, err := e.Pop()
	if err != nil {
		return err
	}
	key, err := keyItem.Bytes()
	if err != nil {
		return newFault("Storage.Delete: %v", err)
	}
	e.Snapshot.Delete(storageRecordKey(sc.ID, key))
	return nil
}

// storageIterator is the interop handle System.Storage.Find returns; the
// result set is materialized at Find time from the snapshot's merged view,
// so later writes in the same execution do not perturb an open iteration.
type storageIterator struct {
	pairs []KVPair
	trim  int // bytes of namespace prefix to strip from keys
	pos   int
}

func (it *storageIterator) next() bool {
	it.pos++
	return it.pos <= len(it.pairs)
}

func (it *storageIterator) value() (*StackItem, error) {
	if it.pos < 1 || it.pos > len(it.pairs) {
		return nil, newFault("iterator: no current element")
	}
	p := it.pairs[it.pos-1]
	key := p.Key
	if len(key) >= it.trim {
		key = key[it.trim:]
	}
	return NewStructItem([]*StackItem{
		NewByteStringItem(key),
		NewByteStringItem(p.Value),
	}), nil
}

func popStorageIterator(e *ApplicationEngine) (*storageIterator, error) {
	item, err := e.Pop()
	if err != nil {
		return nil, err
	}
	it, ok := item.interop.(*storageIterator)
	if !ok {
		return nil, newFault("expected a storage iterator on the stack")
	}
	return it, nil
}

func opStorageFind(e *ApplicationEngine) error {
	sc, err := popStorageContext(e)
	if err != nil {
		return err
	}
	prefixItem, err := e.Pop()
	if err != nil {
		return err
	}
	prefix, err := prefixItem.Bytes()
	if err != nil {
		return newFault("Storage.Find: %v", err)
	}
	full := storageRecordKey(sc.ID, prefix)
	pairs := e.Snapshot.Seek(full, SeekForward)
	it := &storageIterator{pairs: pairs, trim: 5} // strip prefix byte + contract id
	return e.Push(NewInteropItem(it))
}

func opContractCall(e *ApplicationEngine) error {
	hashItem, err := e.Pop()
	if err != nil {
		return err
	}
	methodItem, err := e.Pop()
	if err != nil {
		return err
	}
	flagsItem, err := e.Pop()
	if err != nil {
		return err
	}
	args, err := popArray(e)
	if err != nil {
		return err
	}
	raw, err := hashItem.Bytes()
	if err != nil {
		return newFault("Contract.Call: %v", err)
	}
	target, err := U160FromBytes(raw)
	if err != nil {
		return newFault("Contract.Call: %v", err)
	}
	method, err := methodItem.Bytes()
	if err != nil {
		return newFault("Contract.Call: %v", err)
	}
	flagsInt, err := flagsItem.Int()
	if err != nil {
		return newFault("Contract.Call: %v", err)
	}
	requested := CallFlags(flagsInt.Int64())
	if requested&^CallFlagAll != 0 {
		return newFault("Contract.Call: invalid call flags %08b", requested)
	}
	return e.callContract(target, string(method), requested, args)
}

// callContract dispatches a sub-invocation: native contracts through their
// stub script, deployed contracts at their manifest method offset. The
// callee's permitted flags are the caller's mask intersected with the
// requested mask.
func (e *ApplicationEngine) callContract(target U160, method string, requested CallFlags, args []*StackItem) error {
	caller := e.CurrentContext()
	if caller == nil {
		return newFault("Contract.Call outside any context")
	}
	granted := caller.CallFlags & requested

	if e.natives != nil {
		if n, ok := e.natives.ByHash(target); ok {
			ctx, err := e.LoadContractScript(n.StubScript(), n.Hash, granted, 1)
			if err != nil {
				return err
			}
			ctx.Push(NewArrayItem(args))
			ctx.Push(NewByteStringItem([]byte(method)))
			return nil
		}
	}
	if e.contractLookup == nil {
		return newFault("Contract.Call: unknown contract %s", target)
	}
	cs, ok := e.contractLookup(e.Snapshot, target)
	if !ok {
		return newFault("Contract.Call: unknown contract %s", target)
	}
	md, ok := cs.Manifest.Method(method, len(args))
	if !ok {
		return newFault("Contract.Call: %s has no method %q/%d", target, method, len(args))
	}
	rv := 1
	if !md.ReturnValue {
		rv = 0
	}
	ctx, err := e.LoadContractScript(cs.NEF.Script, cs.Hash, granted, rv)
	if err != nil {
		return err
	}
	ctx.InstrPointer = md.Offset
	for i := len(args) - 1; i >= 0; i-- {
		ctx.Push(args[i])
	}
	return nil
}

// opContractCallNative executes a native method from inside a native's stub
// script: Contract.Call left the argument array and the method selector on
// the stack, and the stub pushed its contract id on top of them.
func opContractCallNative(e *ApplicationEngine) error {
	if e.natives == nil {
		return newFault("CallNative: no native registry wired")
	}
	idItem, err := e.Pop()
	if err != nil {
		return err
	}
	idInt, err := idItem.Int()
	if err != nil {
		return newFault("CallNative: %v", err)
	}
	native, ok := e.natives.ByID(int32(idInt.Int64()))
	if !ok {
		return newFault("CallNative: unknown native id %d", idInt.Int64())
	}
	methodItem, err := e.Pop()
	if err != nil {
		return err
	}
	methodName, err := methodItem.Bytes()
	if err != nil {
		return newFault("CallNative: %v", err)
	}
	args, err := popArray(e)
	if err != nil {
		return err
	}
	result, err := native.Invoke(e, string(methodName), args)
	if err != nil {
		return err
	}
	if result == nil {
		result = NewNullItem()
	}
	return e.Push(result)
}

func opCryptoCheckSig(e *ApplicationEngine) error {
	pubItem, err := e.Pop()
	if err != nil {
		return err
	}
	sigItem, err := e.Pop()
	if err != nil {
		return err
	}
	pubRaw, err := pubItem.Bytes()
	if err != nil {
		return newFault("CheckSig: %v", err)
	}
	sig, err := sigItem.Bytes()
	if err != nil {
		return newFault("CheckSig: %v", err)
	}
	pub, perr := ParseCompressedECPoint(pubRaw)
	if perr != nil {
		return e.Push(NewBoolItem(false)) // malformed key verifies false, never faults
	}
	return e.Push(NewBoolItem(CheckSig(pub, e.signData(), sig)))
}

func opCryptoCheckMultisig(e *ApplicationEngine) error {
	nItem, err := e.Pop()
	if err != nil {
		return err
	}
	n, err := nItem.Int()
	if err != nil {
		return newFault("CheckMultisig: %v", err)
	}
	pubs := make([]ECPoint, 0, n.Int64())
	for i := int64(0); i < n.Int64(); i++ {
		it, err := e.Pop()
		if err != nil {
			return err
		}
		raw, err := it.Bytes()
		if err != nil {
			return newFault("CheckMultisig: %v", err)
		}
		p, perr := ParseCompressedECPoint(raw)
		if perr != nil {
			return e.Push(NewBoolItem(false))
		}
		pubs = append(pubs, p)
	}
	mItem, err := e.Pop()
	if err != nil {
		return err
	}
	m, err := mItem.Int()
	if err != nil {
		return newFault("CheckMultisig: %v", err)
	}
	sigs := make([][]byte, 0, m.Int64())
	for i := int64(0); i < m.Int64(); i++ {
		it, err := e.Pop()
		if err != nil {
			return err
		}
		raw, err := it.Bytes()
		if err != nil {
			return newFault("CheckMultisig: %v", err)
		}
		sigs = append(sigs, raw)
	}
	msg := e.signData()
	// Each signature must match a distinct key; keys are consumed in order
	// so the check is linear, not quadratic.
	si := 0
	for pi := 0; pi < len(pubs) && si < len(sigs); pi++ {
		if CheckSig(pubs[pi], msg, sigs[si]) {
			si++
		}
	}
	return e.Push(NewBoolItem(si == len(sigs)))
}

// signData is the message signatures over the current container verify
// against: the network magic followed by the container hash.
func (e *ApplicationEngine) signData() []byte {
	var h U256
	switch c := e.Container.(type) {
	case *Transaction:
		h = c.Hash()
	case *Block:
		h = c.Hash()
	case *BlockHeader:
		h = c.Hash()
	}
	return SignData(e.Network, h)
}

// SignData renders the canonical signing payload for any hashed container:
// uint32 network magic (little-endian) followed by the 32-byte hash.
func SignData(network uint32, hash U256) []byte {
	out := make([]byte, 4+32)
	binary.LittleEndian.PutUint32(out[:4], network)
	copy(out[4:], hash.Bytes())
	return out
}

// scriptContainerItem renders the engine's container for
// System.Runtime.GetScriptContainer: transactions surface their key fields
// as an array, anything else surfaces null.
func (e *ApplicationEngine) scriptContainerItem() *StackItem {
	tx, ok := e.Container.(*Transaction)
	if !ok {
		return NewNullItem()
	}
	h := tx.Hash()
	return NewArrayItem([]*StackItem{
		NewByteStringItem(h.Bytes()),
		NewIntItemInt64(int64(tx.Version)),
		NewIntItemInt64(int64(tx.Nonce)),
		NewIntItemInt64(tx.SystemFee),
		NewIntItemInt64(tx.NetworkFee),
		NewIntItemInt64(int64(tx.ValidUntilBlock)),
		NewByteStringItem(tx.Script),
	})
}

// storagePrice returns the per-byte storage write price, read from the
// policy contract's stored value when available.
func (e *ApplicationEngine) storagePrice() int64 {
	if e.natives != nil && e.Snapshot != nil {
		if p := e.natives.Policy; p != nil {
			return p.StoragePrice(e.Snapshot)
		}
	}
	return DefaultStoragePrice
}

func popInt64(e *ApplicationEngine) (int64, error) {
	item, err := e.Pop()
	if err != nil {
		return 0, err
	}
	v, err := item.Int()
	if err != nil {
		return 0, newFault("%v", err)
	}
	return v.Int64(), nil
}

func popArray(e *ApplicationEngine) ([]*StackItem, error) {
	item, err := e.Pop()
	if err != nil {
		return nil, err
	}
	if item.IsNull() {
		return nil, nil
	}
	arr, err := item.Array()
	if err != nil {
		return nil, newFault("%v", err)
	}
	return arr, nil
}
