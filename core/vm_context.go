// SPDX-License-Identifier: BUSL-1.1
package core

import "fmt"

// ExecutionContext is one frame of the invocation stack: a loaded script,
// its instruction pointer, evaluation stack, local/static/argument slots
// and any open TRY blocks.
type ExecutionContext struct {
	Script       []byte
	InstrPointer int
	CallFlags    CallFlags
	Hash         U160 // script hash of the contract this frame belongs to
	rvCount      int  // return-value arity this frame must leave on RET; -1 means "all"

	evalStack   []*StackItem
	tryStack    []*tryEntry
	finallyStack []*tryEntry

	staticSlots []*StackItem
	localSlots  []*StackItem
	argSlots    []*StackItem

	refs *RefCounter
}

// NewExecutionContext loads script into a fresh frame.
func NewExecutionContext(script []byte, flags CallFlags, refs *RefCounter) *ExecutionContext {
	return &ExecutionContext{Script: script, CallFlags: flags, refs: refs}
}

func (c *ExecutionContext) atEnd() bool { return c.InstrPointer >= len(c.Script) }

func (c *ExecutionContext) readByte() (byte, error) {
	if c.InstrPointer >= len(c.Script) {
		return 0, fmt.Errorf("context: instruction pointer out of range")
	}
	b := c.Script[c.InstrPointer]
	c.InstrPointer++
	return b, nil
}

func (c *ExecutionContext) readBytes(n int) ([]byte, error) {
	if n < 0 || c.InstrPointer+n > len(c.Script) {
		return nil, fmt.Errorf("context: operand read out of range")
	}
	b := c.Script[c.InstrPointer : c.InstrPointer+n]
	c.InstrPointer += n
	return b, nil
}

// Push adds item to the top of this frame's evaluation stack, registering
// it with the reference counter.
func (c *ExecutionContext) Push(item *StackItem) {
	c.evalStack = append(c.evalStack, item)
	c.refs.addStackItem()
	c.refs.AddReference(item)
}

// Pop removes and returns the top evaluation-stack item.
func (c *ExecutionContext) Pop() (*StackItem, error) {
	if len(c.evalStack) == 0 {
		return nil, newFault("stack underflow")
	}
	n := len(c.evalStack) - 1
	item := c.evalStack[n]
	c.evalStack = c.evalStack[:n]
	c.refs.removeStackItem()
	c.refs.RemoveReference(item)
	return item, nil
}

// Peek returns the item n positions from the top without removing it
// (n=0 is the top element).
func (c *ExecutionContext) Peek(n int) (*StackItem, error) {
	idx := len(c.evalStack) - 1 - n
	if idx < 0 || idx >= len(c.evalStack) {
		return nil, newFault("stack index %d out of range", n)
	}
	return c.evalStack[idx], nil
}

// Depth returns the number of items on this frame's evaluation stack.
func (c *ExecutionContext) Depth() int { return len(c.evalStack) }

func (c *ExecutionContext) initSlots(staticCount, localCount, argCount int) {
	c.staticSlots = make([]*StackItem, staticCount)
	c.localSlots = make([]*StackItem, localCount)
	c.argSlots = make([]*StackItem, argCount)
	for i := range c.staticSlots {
		c.staticSlots[i] = NewNullItem()
	}
	for i := range c.localSlots {
		c.localSlots[i] = NewNullItem()
	}
}

func (c *ExecutionContext) slot(kind byte, idx int) (*[]*StackItem, error) {
	switch kind {
	case 's':
		if idx < 0 || idx >= len(c.staticSlots) {
			return nil, newFault("static slot %d out of range", idx)
		}
		return &c.staticSlots, nil
	case 'l':
		if idx < 0 || idx >= len(c.localSlots) {
			return nil, newFault("local slot %d out of range", idx)
		}
		return &c.localSlots, nil
	case 'a':
		if idx < 0 || idx >= len(c.argSlots) {
			return nil, newFault("arg slot %d out of range", idx)
		}
		return &c.argSlots, nil
	default:
		return nil, newFault("unknown slot kind")
	}
}
