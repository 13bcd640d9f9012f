// SPDX-License-Identifier: BUSL-1.1
package core

import "testing"

func TestEventBusFanOut(t *testing.T) {
	bus := NewEventBus(nil)
	sub := bus.Subscribe(8)
	tx := &Transaction{
		Version:         0,
		ValidUntilBlock: 1,
		Signers:         []Signer{{Account: U160{1}}},
		Script:          []byte{byte(OpPUSH1)},
		Witnesses:       []Witness{{}},
	}
	bus.TransactionAdded(tx)
	bus.TransactionRemoved(tx, RemovalExpired)
	block := &Block{Header: BlockHeader{Index: 3}}
	bus.BlockCommitting(block, nil)
	bus.BlockCommitted(block)

	want := []NodeEventKind{EventTransactionAdded, EventTransactionRemoved, EventBlockCommitting, EventBlockCommitted}
	for i, kind := range want {
		ev := <-sub
		if ev.Kind != kind {
			t.Fatalf("event %d is %s, want %s", i, ev.Kind, kind)
		}
	}
}

func TestEventBusNeverBlocksOnSlowSubscriber(t *testing.T) {
	bus := NewEventBus(nil)
	_ = bus.Subscribe(1) // never drained
	for i := 0; i < 100; i++ {
		bus.BlockCommitted(&Block{Header: BlockHeader{Index: uint32(i)}})
	}
	// Reaching here without deadlock is the assertion.
}

func TestMetricsRegistryRegisters(t *testing.T) {
	m := NewMetrics()
	m.BlocksCommitted.Inc()
	m.MempoolEvicted.WithLabelValues(RemovalLowPriority.String()).Inc()
	families, err := m.Registry.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if len(families) == 0 {
		t.Fatalf("no metric families registered")
	}
}
