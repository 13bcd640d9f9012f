// SPDX-License-Identifier: BUSL-1.1
package core

import (
	"testing"
)

// loopbackBus records outbound consensus traffic for manual relay.
type loopbackBus struct {
	sent       [][]byte
	txRequests [][]U256
}

func (b *loopbackBus) BroadcastConsensus(raw []byte) error {
	cp := make([]byte, len(raw))
	copy(cp, raw)
	b.sent = append(b.sent, cp)
	return nil
}

func (b *loopbackBus) RequestTransactions(hashes []U256) error {
	b.txRequests = append(b.txRequests, hashes)
	return nil
}

// consensusCluster is N validators, each with an isolated chain over the
// same deterministic genesis.
type consensusCluster struct {
	cfg      *ProtocolConfig
	services []*ConsensusService
	chains   []*Blockchain
	mempools []*Mempool
	buses    []*loopbackBus
}

func newConsensusCluster(t *testing.T, n int) *consensusCluster {
	t.Helper()
	cfg, keys := testProtocolConfigT(t, n)
	c := &consensusCluster{cfg: cfg}
	for i := 0; i < n; i++ {
		natives := NewNativeRegistry(cfg)
		chain, err := NewBlockchain(NewMemoryStore(), cfg, natives, nil, nil)
		if err != nil {
			t.Fatalf("chain %d: %v", i, err)
		}
		mempool := NewMempool(cfg.MempoolCapacity, nil, chain)
		bus := &loopbackBus{}
		svc, err := NewConsensusService(ConsensusConfig{
			Validators: cfg.StandbyValidators(),
			MyIndex:    i,
			PrivateKey: keys[i],
			Network:    cfg.Network,
			MsPerBlock: cfg.MsPerBlock,
		}, chain, mempool, bus, nil)
		if err != nil {
			t.Fatalf("service %d: %v", i, err)
		}
		c.chains = append(c.chains, chain)
		c.mempools = append(c.mempools, mempool)
		c.buses = append(c.buses, bus)
		c.services = append(c.services, svc)
	}
	return c
}

// relay drains every bus and delivers to every service until traffic
// stops. active limits delivery to a subset of validator indices (nil
// means everyone).
func (c *consensusCluster) relay(t *testing.T, nowMS uint64, active map[int]bool) {
	t.Helper()
	for rounds := 0; rounds < 64; rounds++ {
		progressed := false
		for from, bus := range c.buses {
			pending := bus.sent
			bus.sent = nil
			for _, raw := range pending {
				progressed = true
				for to, svc := range c.services {
					if to == from {
						continue
					}
					if active != nil && !active[to] {
						continue
					}
					_ = svc.OnPayload(raw, nowMS)
				}
			}
		}
		if !progressed {
			return
		}
	}
	t.Fatalf("relay did not quiesce")
}

func TestConsensusHappyPath(t *testing.T) {
	c := newConsensusCluster(t, 4)
	_, keys := testProtocolConfigT(t, 4)
	now := uint64(genesisTimestampMS + 10_000)
	for _, svc := range c.services {
		svc.Start(now)
	}
	primary := int(c.services[0].PrimaryIndex(0))

	// Two committee-signed transactions known only to the primary.
	tx1 := committeeSignedTx(t, c.cfg, keys, c.cfg.Network, 1, 100)
	tx2 := committeeSignedTx(t, c.cfg, keys, c.cfg.Network, 2, 100)
	for _, tx := range []*Transaction{tx1, tx2} {
		if err := c.mempools[primary].TryAdd(tx, 0, int64(now)); err != nil {
			t.Fatalf("primary mempool admit: %v", err)
		}
	}

	deadline := c.services[primary].TimerDeadline()
	c.services[primary].OnTimer(deadline)
	if c.services[primary].Phase() != PhaseRequestSent {
		t.Fatalf("primary phase %s after proposing", c.services[primary].Phase())
	}
	c.relay(t, deadline, nil)

	// Backups missing the proposal's transactions must have asked for them.
	requested := false
	for i, bus := range c.buses {
		if i != primary && len(bus.txRequests) > 0 {
			requested = true
		}
	}
	if !requested {
		t.Fatalf("no backup requested the missing transactions")
	}
	for i, svc := range c.services {
		if i == primary {
			continue
		}
		svc.OnTransaction(tx1, deadline)
		svc.OnTransaction(tx2, deadline)
	}
	c.relay(t, deadline, nil)

	var committedHash U256
	for i, chain := range c.chains {
		if chain.CurrentIndex() != 1 {
			t.Fatalf("validator %d height %d, want 1", i, chain.CurrentIndex())
		}
		if i == 0 {
			committedHash = chain.CurrentHash()
		} else if chain.CurrentHash() != committedHash {
			t.Fatalf("validator %d committed a different block", i)
		}
	}
	block, err := c.chains[0].GetBlockByIndex(1)
	if err != nil || len(block.Transactions) != 2 {
		t.Fatalf("committed block carries %d txs, want 2 (%v)", len(block.Transactions), err)
	}
	// Every service rolled over to the next round.
	for i, svc := range c.services {
		if svc.BlockIndex() != 2 {
			t.Fatalf("validator %d stuck at round %d", i, svc.BlockIndex())
		}
		if svc.ViewNumber() != 0 {
			t.Fatalf("validator %d did not reset its view", i)
		}
	}
}

func TestConsensusViewChangeOnSilentPrimary(t *testing.T) {
	c := newConsensusCluster(t, 4)
	now := uint64(genesisTimestampMS + 10_000)
	for _, svc := range c.services {
		svc.Start(now)
	}
	silent := int(c.services[0].PrimaryIndex(0))
	backups := map[int]bool{}
	for i := range c.services {
		if i != silent {
			backups[i] = true
		}
	}

	// The primary never proposes; every backup times out and votes for
	// view 1.
	for i := range c.services {
		if i == silent {
			continue
		}
		c.services[i].OnTimer(c.services[i].TimerDeadline())
	}
	c.relay(t, now+c.cfg.MsPerBlock, backups)
	for i := range c.services {
		if i == silent {
			continue
		}
		if got := c.services[i].ViewNumber(); got != 1 {
			t.Fatalf("backup %d at view %d, want 1", i, got)
		}
	}

	// The view-1 primary now proposes and the three live validators can
	// finish the round without the silent one.
	newPrimary := int(c.services[(silent+1)%4].PrimaryIndex(1))
	if newPrimary == silent {
		t.Fatalf("fixture error: new primary is the silent validator")
	}
	svc := c.services[newPrimary]
	svc.OnTimer(svc.TimerDeadline())
	if svc.Phase() != PhaseRequestSent {
		t.Fatalf("view-1 primary phase %s", svc.Phase())
	}
	c.relay(t, now+2*c.cfg.MsPerBlock, backups)
	for i := range c.services {
		if i == silent {
			continue
		}
		if c.chains[i].CurrentIndex() != 1 {
			t.Fatalf("validator %d height %d after view change, want 1", i, c.chains[i].CurrentIndex())
		}
	}
}

func TestConsensusRecoveryCompletesStalledRound(t *testing.T) {
	c := newConsensusCluster(t, 4)
	now := uint64(genesisTimestampMS + 10_000)
	for _, svc := range c.services {
		svc.Start(now)
	}
	primary := int(c.services[0].PrimaryIndex(0))
	reached := (primary + 1) % 4
	laggard := (primary + 2) % 4

	// Only one backup hears the proposal: two preparations, no quorum,
	// the round stalls.
	partial := map[int]bool{primary: true, reached: true}
	c.services[primary].OnTimer(c.services[primary].TimerDeadline())
	c.relay(t, now, partial)
	for i, chain := range c.chains {
		if chain.CurrentIndex() != 0 {
			t.Fatalf("validator %d committed without a quorum", i)
		}
	}
	if c.services[laggard].Phase() != PhaseInitial {
		t.Fatalf("laggard unexpectedly progressed to %s", c.services[laggard].Phase())
	}

	// A recovery round-trip replays the collected evidence to everyone;
	// the fresh responses push the round over the quorum.
	c.services[laggard].RequestRecovery(now)
	c.relay(t, now, nil)
	for i, chain := range c.chains {
		if got := chain.CurrentIndex(); got != 1 {
			t.Fatalf("validator %d height %d after recovery, want 1", i, got)
		}
	}
}

func TestDBFTSafetySingleBlockPerIndex(t *testing.T) {
	c := newConsensusCluster(t, 4)
	_, keys := testProtocolConfigT(t, 4)
	now := uint64(genesisTimestampMS + 10_000)
	for _, svc := range c.services {
		svc.Start(now)
	}
	primary := int(c.services[0].PrimaryIndex(0))
	tx := committeeSignedTx(t, c.cfg, keys, c.cfg.Network, 9, 100)
	if err := c.mempools[primary].TryAdd(tx, 0, int64(now)); err != nil {
		t.Fatalf("admit: %v", err)
	}
	c.services[primary].OnTimer(c.services[primary].TimerDeadline())
	c.relay(t, now, nil)
	for i, svc := range c.services {
		svc.OnTransaction(tx, now)
		_ = i
	}
	c.relay(t, now, nil)

	// Every chain holds exactly one block at index 1 and they agree.
	want := c.chains[0].CurrentHash()
	for i, chain := range c.chains {
		if chain.CurrentIndex() != 1 {
			t.Fatalf("validator %d height %d", i, chain.CurrentIndex())
		}
		if chain.CurrentHash() != want {
			t.Fatalf("divergent block at index 1")
		}
	}
}
