// SPDX-License-Identifier: BUSL-1.1
//
// The VM type drives the fetch-dispatch loop over an invocation stack of
// ExecutionContexts, dispatching through the byte-opcode jump table of
// vm_jumptable.go.
package core

import "fmt"

// VM executes one or more loaded scripts against a shared evaluation
// environment (invocation stack + reference counter). ApplicationEngine
// embeds a VM and adds gas metering, syscalls and a storage snapshot.
type VM struct {
	invocation  []*ExecutionContext
	resultItem  *StackItem
	resultDepth int
	state       VMState
	fault       error

	refs *RefCounter

	// OnSysCall is invoked by the SYSCALL handler; nil means SYSCALL always
	// faults (a bare VM with no host bindings).
	OnSysCall func(vm *VM, id uint32) error
	// OnContextUnload is invoked (if non-nil) whenever a context is popped,
	// letting ApplicationEngine tear down call-flag scoping.
	OnContextUnload func(vm *VM, ctx *ExecutionContext)
}

// NewVM returns an idle VM ready to load a script.
func NewVM() *VM {
	return &VM{refs: NewRefCounter(), state: VMStateNone}
}

// RefCounter exposes the VM's reference counter, e.g. for invariant checks
// in tests.
func (vm *VM) RefCounter() *RefCounter { return vm.refs }

// State returns the VM's current run state.
func (vm *VM) State() VMState { return vm.state }

// FaultException returns the error that caused a FAULT transition, if any.
func (vm *VM) FaultException() error { return vm.fault }

// CurrentContext returns the top of the invocation stack, or nil if empty.
func (vm *VM) CurrentContext() *ExecutionContext {
	if len(vm.invocation) == 0 {
		return nil
	}
	return vm.invocation[len(vm.invocation)-1]
}

// InvocationDepth returns the number of loaded contexts.
func (vm *VM) InvocationDepth() int { return len(vm.invocation) }

// LoadScript pushes a fresh context for script onto the invocation stack.
// rvCount records how many items the callee must leave for its caller on
// RET; initialPosition seeds the instruction pointer (used by CALLA's
// pointer-to-offset jumps).
func (vm *VM) LoadScript(script []byte, flags CallFlags, rvCount int, initialPosition int) (*ExecutionContext, error) {
	if len(vm.invocation) >= MaxInvocationStack {
		return nil, newFault("invocation stack overflow")
	}
	ctx := NewExecutionContext(script, flags, vm.refs)
	ctx.InstrPointer = initialPosition
	ctx.rvCount = rvCount
	vm.invocation = append(vm.invocation, ctx)
	return ctx, nil
}

// Push places item on the current context's evaluation stack.
func (vm *VM) Push(item *StackItem) error {
	ctx := vm.CurrentContext()
	if ctx == nil {
		return newFault("push: no active context")
	}
	if vm.refs.TotalItems() >= MaxStackSize {
		return newFault("reference count exceeds MaxStackSize")
	}
	ctx.Push(item)
	return nil
}

// Pop removes and returns the top item of the current context.
func (vm *VM) Pop() (*StackItem, error) {
	ctx := vm.CurrentContext()
	if ctx == nil {
		return nil, newFault("pop: no active context")
	}
	return ctx.Pop()
}

// Peek returns the item n positions from the top of the current context.
func (vm *VM) Peek(n int) (*StackItem, error) {
	ctx := vm.CurrentContext()
	if ctx == nil {
		return nil, newFault("peek: no active context")
	}
	return ctx.Peek(n)
}

// popContext removes and returns the top invocation frame, notifying
// OnContextUnload before the frame's items lose their root references.
func (vm *VM) popContext() *ExecutionContext {
	n := len(vm.invocation) - 1
	ctx := vm.invocation[n]
	vm.invocation = vm.invocation[:n]
	if vm.OnContextUnload != nil {
		vm.OnContextUnload(vm, ctx)
	}
	return ctx
}

// Execute runs the VM until it reaches HALT, FAULT or a BREAK suspend
// point, returning the final state. Callers that need per-instruction gas
// charging (ApplicationEngine) drive Step in their own loop instead.
func (vm *VM) Execute() VMState {
	if vm.state == VMStateHalt || vm.state == VMStateFault {
		return vm.state
	}
	vm.state = VMStateNone
	for vm.state == VMStateNone {
		if err := vm.Step(); err != nil {
			vm.fault = err
			vm.state = VMStateFault
		}
	}
	return vm.state
}

// StepInto executes exactly one instruction, descending into calls; the
// debugger-facing single-step entry point.
func (vm *VM) StepInto() error {
	if vm.state == VMStateHalt || vm.state == VMStateFault {
		return fmt.Errorf("vm: cannot step in state %s", vm.state)
	}
	vm.state = VMStateNone
	if err := vm.Step(); err != nil {
		vm.fault = err
		vm.state = VMStateFault
		return err
	}
	return nil
}

// StepOver executes until control returns to the current invocation depth,
// treating a CALL/SYSCALL sub-invocation as a single step.
func (vm *VM) StepOver() error {
	depth := vm.InvocationDepth()
	if err := vm.StepInto(); err != nil {
		return err
	}
	for vm.state == VMStateNone && vm.InvocationDepth() > depth {
		if err := vm.StepInto(); err != nil {
			return err
		}
	}
	return nil
}

// StepOut executes until the current context returns to its caller.
func (vm *VM) StepOut() error {
	depth := vm.InvocationDepth()
	for vm.state == VMStateNone && vm.InvocationDepth() >= depth {
		if err := vm.StepInto(); err != nil {
			return err
		}
	}
	return nil
}

// Step executes the single instruction at the current context's
// instruction pointer and advances it past the instruction, or runs RET
// unwinding when a context runs off its own end.
func (vm *VM) Step() error {
	ctx := vm.CurrentContext()
	if ctx == nil {
		return newFault("step: no active context")
	}
	if ctx.atEnd() {
		return vm.doReturn()
	}
	opByte, err := ctx.readByte()
	if err != nil {
		return err
	}
	op := Opcode(opByte)
	instr, err := decodeOperand(ctx, op)
	if err != nil {
		return err
	}
	h := jumpTable[op]
	if h == nil {
		return newFault("unimplemented opcode 0x%02X (%s)", opByte, op)
	}
	if err := h(vm, ctx, instr); err != nil {
		return err
	}
	if vm.refs.TotalItems() > MaxStackSize {
		return newFault("stack size %d exceeds MaxStackSize", vm.refs.TotalItems())
	}
	return nil
}

// doReturn pops the current context. If the invocation stack becomes empty
// the VM halts; otherwise rvCount items are transferred onto the caller's
// stack, top-first so their relative order is preserved.
func (vm *VM) doReturn() error {
	ctx := vm.popContext()
	if len(vm.invocation) == 0 {
		vm.resultDepth = ctx.Depth()
		if ctx.rvCount > 0 && ctx.Depth() > 0 {
			item, err := ctx.Pop()
			if err != nil {
				return err
			}
			vm.resultItem = item
		}
		vm.state = VMStateHalt
		return nil
	}
	caller := vm.CurrentContext()
	n := ctx.rvCount
	if n < 0 {
		n = ctx.Depth()
	}
	if ctx.Depth() < n {
		return newFault("return: expected %d return values, found %d", n, ctx.Depth())
	}
	items := make([]*StackItem, n)
	for i := n - 1; i >= 0; i-- {
		it, err := ctx.Pop()
		if err != nil {
			return err
		}
		items[i] = it
	}
	for _, it := range items {
		caller.Push(it)
	}
	return nil
}

// Result returns the single item left by the outermost context's RET, the
// host-visible return value of Application-trigger execution.
func (vm *VM) Result() *StackItem { return vm.resultItem }

// ResultDepth returns how many items the outermost context held when it
// returned; witness verification requires exactly one.
func (vm *VM) ResultDepth() int { return vm.resultDepth }

// Instruction is a decoded opcode plus its operand bytes (if any). Jump
// targets are not resolved here: each jump handler decodes its offset from
// Operand and adds it to instrStart.
type Instruction struct {
	Op        Opcode
	Operand   []byte
	JumpDelta int // not set by decodeOperand; jump handlers read the offset from Operand
	instrStart int
}

func decodeOperand(ctx *ExecutionContext, op Opcode) (Instruction, error) {
	instr := Instruction{Op: op, instrStart: ctx.InstrPointer - 1}
	n, kind, err := operandSpec(op)
	if err != nil {
		return instr, err
	}
	switch kind {
	case operandNone:
		return instr, nil
	case operandFixed:
		b, err := ctx.readBytes(n)
		if err != nil {
			return instr, err
		}
		instr.Operand = b
		return instr, nil
	case operandVar1, operandVar2, operandVar4:
		lenBytes := map[byte]int{operandVar1: 1, operandVar2: 2, operandVar4: 4}[kind]
		lb, err := ctx.readBytes(lenBytes)
		if err != nil {
			return instr, err
		}
		length := 0
		for i := len(lb) - 1; i >= 0; i-- {
			length = length<<8 | int(lb[i])
		}
		if length < 0 || length > MaxItemSize {
			return instr, newFault("operand length %d exceeds MaxItemSize", length)
		}
		b, err := ctx.readBytes(length)
		if err != nil {
			return instr, err
		}
		instr.Operand = b
		return instr, nil
	default:
		return instr, fmt.Errorf("vm: unreachable operand kind")
	}
}

const (
	operandNone byte = iota
	operandFixed
	operandVar1
	operandVar2
	operandVar4
)
