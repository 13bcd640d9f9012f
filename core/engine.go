// SPDX-License-Identifier: BUSL-1.1
//
// ApplicationEngine: the metered VM. Wraps the bare interpreter
// in vm.go with per-instruction gas charging, the syscall table
// (engine_syscalls.go), a storage snapshot shared with native contracts, a
// notification buffer and the call-graph bookkeeping witness-scope checks
// need. Cost is committed before a handler runs, never after.
package core

import (
	"fmt"
	"math/big"
)

// Trigger selects which execution mode an ApplicationEngine runs under,
// which in turn bounds its syscall set and gas ceiling.
type Trigger byte

const (
	TriggerSystem       Trigger = 0x01
	TriggerVerification Trigger = 0x20
	TriggerApplication  Trigger = 0x40
	TriggerOnPersist    Trigger = 0x01 << 2 // distinct bit so logs can tell the block phases apart
	TriggerPostPersist  Trigger = 0x01 << 3
)

func (t Trigger) String() string {
	switch t {
	case TriggerSystem:
		return "System"
	case TriggerVerification:
		return "Verification"
	case TriggerApplication:
		return "Application"
	case TriggerOnPersist:
		return "OnPersist"
	case TriggerPostPersist:
		return "PostPersist"
	default:
		return "Unknown"
	}
}

// VerificationGasLimit is the fixed gas ceiling of a Verification-trigger
// run; witness checks never spend a transaction's own system fee.
const VerificationGasLimit int64 = 30_000_000

// ExecFeeFactor scales every opcode's base cost; PolicyContract owns the
// live value, this is the protocol default.
const DefaultExecFeeFactor int64 = 30

// Notification is one System.Runtime.Notify emission, buffered until the
// engine halts and then surfaced in the transaction's execution log.
type Notification struct {
	Contract  U160
	EventName string
	State     *StackItem
}

// ApplicationEngine executes one script container (transaction, block
// system script, or witness) against a storage snapshot.
type ApplicationEngine struct {
	*VM

	Trigger  Trigger
	Snapshot *Snapshot
	natives  *NativeRegistry

	gasConsumed   int64
	gasLimit      int64
	execFeeFactor int64

	// Container is what the script belongs to: *Transaction for
	// Application/Verification, *Block for OnPersist/PostPersist, nil for
	// genesis (System).
	Container any
	// PersistingBlock is the block being applied, set for every trigger
	// that runs inside the block-persistence pipeline.
	PersistingBlock *Block

	Network        uint32
	currentHeight  uint32
	timestampMS    uint64
	randomSeed     uint64
	invocationSalt uint64 // mixed into GetRandom so repeated calls differ deterministically

	notifications []Notification
	logs          []string

	// callingHashes[i] is the script hash that loaded invocation frame i,
	// the call graph CheckWitness scope checks walk.
	callingHashes []U160

	// contractLookup resolves a deployed contract's state by hash, wired by
	// the blockchain so System.Contract.Call can reach ContractManagement
	// state without the engine depending on the native directly.
	contractLookup func(snap *Snapshot, hash U160) (*ContractState, bool)
}

// EngineOptions carries the environment an engine needs beyond its script.
type EngineOptions struct {
	Trigger       Trigger
	Snapshot      *Snapshot
	Container     any
	GasLimit      int64
	Network       uint32
	Height        uint32
	TimestampMS   uint64
	RandomSeed    uint64
	Natives       *NativeRegistry
	Persisting    *Block
	ExecFeeFactor int64
}

// NewApplicationEngine builds an engine; no script is loaded yet.
func NewApplicationEngine(opts EngineOptions) *ApplicationEngine {
	e := &ApplicationEngine{
		VM:            NewVM(),
		Trigger:       opts.Trigger,
		Snapshot:      opts.Snapshot,
		Container:     opts.Container,
		gasLimit:      opts.GasLimit,
		Network:       opts.Network,
		currentHeight: opts.Height,
		timestampMS:   opts.TimestampMS,
		randomSeed:    opts.RandomSeed,
		natives:       opts.Natives,
		PersistingBlock: opts.Persisting,
		execFeeFactor: opts.ExecFeeFactor,
	}
	if e.execFeeFactor <= 0 {
		e.execFeeFactor = DefaultExecFeeFactor
	}
	e.VM.OnSysCall = func(_ *VM, id uint32) error { return e.handleSyscall(id) }
	e.VM.OnContextUnload = func(_ *VM, _ *ExecutionContext) {
		if len(e.callingHashes) > 0 {
			e.callingHashes = e.callingHashes[:len(e.callingHashes)-1]
		}
	}
	return e
}

// GasConsumed returns the gas charged so far.
func (e *ApplicationEngine) GasConsumed() int64 { return e.gasConsumed }

// GasLimit returns the ceiling this run may consume up to.
func (e *ApplicationEngine) GasLimit() int64 { return e.gasLimit }

// Notifications returns the buffered Notify emissions in call order.
func (e *ApplicationEngine) Notifications() []Notification { return e.notifications }

// Logs returns the Runtime.Log lines emitted so far.
func (e *ApplicationEngine) Logs() []string { return e.logs }

// AddGas charges amount against the limit, faulting on exhaustion. Exposed
// to syscall handlers and natives so variable-priced work (storage writes,
// crypto, item construction) meters itself.
func (e *ApplicationEngine) AddGas(amount int64) error {
	if amount < 0 {
		return fmt.Errorf("engine: negative gas charge")
	}
	e.gasConsumed += amount
	if e.gasLimit >= 0 && e.gasConsumed > e.gasLimit {
		return newFault("out of gas: consumed %d exceeds limit %d", e.gasConsumed, e.gasLimit)
	}
	return nil
}

// LoadContractScript pushes script as a new invocation frame tagged with its
// contract hash and permitted call flags.
func (e *ApplicationEngine) LoadContractScript(script []byte, hash U160, flags CallFlags, rvCount int) (*ExecutionContext, error) {
	if len(script) == 0 || len(script) > MaxScriptLength {
		return nil, fmt.Errorf("engine: script length %d out of bounds", len(script))
	}
	var caller U160
	if cur := e.CurrentContext(); cur != nil {
		caller = cur.Hash
	}
	ctx, err := e.VM.LoadScript(script, flags, rvCount, 0)
	if err != nil {
		return nil, err
	}
	ctx.Hash = hash
	e.callingHashes = append(e.callingHashes, caller)
	return ctx, nil
}

// EntryScriptHash is the hash of the outermost loaded script, the anchor
// for CalledByEntry witness scopes.
func (e *ApplicationEngine) EntryScriptHash() U160 {
	if len(e.invocation) == 0 {
		return U160{}
	}
	return e.invocation[0].Hash
}

// CallingScriptHash is the hash of the frame that invoked the current one.
func (e *ApplicationEngine) CallingScriptHash() U160 {
	if n := len(e.callingHashes); n > 0 {
		return e.callingHashes[n-1]
	}
	return U160{}
}

// CurrentScriptHash is the hash owning the currently executing frame.
func (e *ApplicationEngine) CurrentScriptHash() U160 {
	if ctx := e.CurrentContext(); ctx != nil {
		return ctx.Hash
	}
	return U160{}
}

// Run executes the loaded script(s) to completion, pre-charging each
// instruction's cost before dispatch.
func (e *ApplicationEngine) Run() VMState {
	if e.State() == VMStateHalt || e.State() == VMStateFault {
		return e.State()
	}
	e.state = VMStateNone
	for e.state == VMStateNone {
		if err := e.chargeNextInstruction(); err != nil {
			e.fault = err
			e.state = VMStateFault
			break
		}
		if err := e.Step(); err != nil {
			e.fault = err
			e.state = VMStateFault
		}
	}
	return e.state
}

// chargeNextInstruction prices the instruction the IP points at without
// executing it: base cost scaled by the execution fee factor, plus a
// per-byte surcharge for the variable-length push family.
func (e *ApplicationEngine) chargeNextInstruction() error {
	ctx := e.CurrentContext()
	if ctx == nil || ctx.atEnd() {
		return nil // implicit RET carries no cost
	}
	op := Opcode(ctx.Script[ctx.InstrPointer])
	cost := GasCost(op) * e.execFeeFactor
	if extra, err := e.operandSurcharge(ctx, op); err != nil {
		return err
	} else {
		cost += extra * e.execFeeFactor
	}
	return e.AddGas(cost)
}

// operandSurcharge computes the size-proportional portion of an opcode's
// price by decoding its length prefix in place.
func (e *ApplicationEngine) operandSurcharge(ctx *ExecutionContext, op Opcode) (int64, error) {
	var prefixLen int
	switch op {
	case OpPUSHDATA1:
		prefixLen = 1
	case OpPUSHDATA2:
		prefixLen = 2
	case OpPUSHDATA4:
		prefixLen = 4
	default:
		return 0, nil
	}
	start := ctx.InstrPointer + 1
	if start+prefixLen > len(ctx.Script) {
		return 0, newFault("truncated PUSHDATA length prefix")
	}
	length := int64(0)
	for i := prefixLen - 1; i >= 0; i-- {
		length = length<<8 | int64(ctx.Script[start+i])
	}
	if length > MaxItemSize {
		return 0, newFault("PUSHDATA length %d exceeds MaxItemSize", length)
	}
	return length, nil
}

// checkFlags gates host interaction by the current context's permitted
// call-flag mask.
func (e *ApplicationEngine) checkFlags(required CallFlags) error {
	ctx := e.CurrentContext()
	if ctx == nil {
		return newFault("syscall outside any context")
	}
	if !ctx.CallFlags.Has(required) {
		return newFault("syscall requires flags %08b, context grants %08b", required, ctx.CallFlags)
	}
	return nil
}

// notify appends to the notification buffer; Verification runs may not
// notify.
func (e *ApplicationEngine) notify(contract U160, event string, state *StackItem) error {
	if e.Trigger == TriggerVerification {
		return newFault("Notify is not available under Verification")
	}
	if len(event) > 32 {
		return newFault("notification event name too long")
	}
	e.notifications = append(e.notifications, Notification{Contract: contract, EventName: event, State: state})
	return nil
}

// PopResultInt pops the engine's result item as an integer; convenience for
// natives and tests reading a HALTed engine.
func (e *ApplicationEngine) PopResultInt() (*big.Int, error) {
	item := e.Result()
	if item == nil {
		return nil, fmt.Errorf("engine: no result item")
	}
	return item.Int()
}

// SetContractLookup wires the deployed-contract resolver used by
// System.Contract.Call; the blockchain sets this once at engine creation.
func (e *ApplicationEngine) SetContractLookup(fn func(snap *Snapshot, hash U160) (*ContractState, bool)) {
	e.contractLookup = fn
}
