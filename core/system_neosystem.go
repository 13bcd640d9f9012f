// SPDX-License-Identifier: BUSL-1.1
//
// NeoSystem: composition root and actor supervision. One NodeContext value owns the logger, metrics registry
// and event bus and is threaded through every component; the actors are
// goroutine event loops over the PeerBus subscription channels and the
// consensus timer. Stop halts the consensus timer first, then cancels the
// transaction and block actors together, with no order between those two,
// and closes the store last.
package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// NodeContext bundles the process-wide handles; constructed once at
// startup, no hidden globals.
type NodeContext struct {
	Config  *ProtocolConfig
	Logger  *logrus.Logger
	Metrics *Metrics
	Events  *EventBus
}

// NewNodeContext builds the context with a fresh metrics registry and bus.
func NewNodeContext(cfg *ProtocolConfig, logger *logrus.Logger) *NodeContext {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	metrics := NewMetrics()
	return &NodeContext{
		Config:  cfg,
		Logger:  logger,
		Metrics: metrics,
		Events:  NewEventBus(metrics),
	}
}

// NeoSystem owns the node's subsystems and their lifecycles.
type NeoSystem struct {
	Ctx       *NodeContext
	Store     Store
	Natives   *NativeRegistry
	Chain     *Blockchain
	Mempool   *Mempool
	Consensus *ConsensusService

	bus    PeerBus
	cancel context.CancelFunc
	wg     sync.WaitGroup

	consensusStop chan struct{}
}

// NewNeoSystem wires storage, natives, blockchain and mempool together.
// Consensus and networking attach afterwards via StartNetwork /
// StartConsensus so a query-only node can skip both.
func NewNeoSystem(ctx *NodeContext, store Store) (*NeoSystem, error) {
	natives := NewNativeRegistry(ctx.Config)
	chain, err := NewBlockchain(store, ctx.Config, natives, ctx.Events, ctx.Logger)
	if err != nil {
		return nil, err
	}
	mempool := NewMempool(ctx.Config.MempoolCapacity, ctx.Events, chain)
	return &NeoSystem{
		Ctx:     ctx,
		Store:   store,
		Natives: natives,
		Chain:   chain,
		Mempool: mempool,
	}, nil
}

// peerBusBroadcaster adapts the PeerBus to the consensus outbound seam.
type peerBusBroadcaster struct{ bus PeerBus }

func (p peerBusBroadcaster) BroadcastConsensus(raw []byte) error {
	return p.bus.Publish(PayloadConsensus, raw)
}

func (p peerBusBroadcaster) RequestTransactions(hashes []U256) error {
	return p.bus.RequestTransactions(hashes)
}

// StartNetwork attaches a PeerBus and spawns the inbound actor loops.
func (s *NeoSystem) StartNetwork(bus PeerBus) error {
	if s.bus != nil {
		return fmt.Errorf("neosystem: network already started")
	}
	s.bus = bus
	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	txCh, err := bus.Subscribe(PayloadTransaction)
	if err != nil {
		return err
	}
	blockCh, err := bus.Subscribe(PayloadBlock)
	if err != nil {
		return err
	}
	consensusCh, err := bus.Subscribe(PayloadConsensus)
	if err != nil {
		return err
	}

	s.wg.Add(3)
	go s.transactionActor(runCtx, txCh)
	go s.blockActor(runCtx, blockCh)
	go s.consensusActor(runCtx, consensusCh)
	return nil
}

// transactionActor admits gossiped transactions into the mempool and feeds
// any the consensus round was waiting on.
func (s *NeoSystem) transactionActor(ctx context.Context, ch <-chan InboundMessage) {
	defer s.wg.Done()
	log := s.Ctx.Logger.WithField("component", "tx-actor")
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if len(msg.Data) > 0 && msg.Data[0] == 0xFF {
				continue // a peer's missing-tx request, not a tx body
			}
			tx, err := DeserializeTransaction(msg.Data)
			if err != nil {
				log.WithError(err).WithField("peer", msg.From).Debug("malformed transaction dropped")
				continue
			}
			now := time.Now().UnixMilli()
			if err := s.Mempool.TryAdd(tx, s.Chain.CurrentIndex(), now); err != nil {
				log.WithError(err).Debug("transaction rejected")
			}
			if s.Consensus != nil {
				s.Consensus.OnTransaction(tx, uint64(now))
			}
		}
	}
}

// blockActor imports gossiped blocks, keeping the mempool and consensus
// round in step with each commit.
func (s *NeoSystem) blockActor(ctx context.Context, ch <-chan InboundMessage) {
	defer s.wg.Done()
	log := s.Ctx.Logger.WithField("component", "block-actor")
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			block, err := deserializeBlock(msg.Data)
			if err != nil {
				log.WithError(err).WithField("peer", msg.From).Debug("malformed block dropped")
				continue
			}
			if err := s.Chain.ApplyBlock(block); err != nil {
				log.WithError(err).Debug("gossiped block rejected")
				continue
			}
			s.onBlockApplied(block)
		}
	}
}

// onBlockApplied performs the post-commit bookkeeping: mempool cull and
// consensus round reset.
func (s *NeoSystem) onBlockApplied(block *Block) {
	included := make(map[U256]bool, len(block.Transactions))
	for _, tx := range block.Transactions {
		included[tx.Hash()] = true
	}
	s.Mempool.OnBlockPersisted(included, block.Header.Index)
	if s.Consensus != nil {
		s.Consensus.OnBlockCommitted(uint64(time.Now().UnixMilli()))
	}
}

// consensusActor feeds inbound consensus envelopes to the state machine.
func (s *NeoSystem) consensusActor(ctx context.Context, ch <-chan InboundMessage) {
	defer s.wg.Done()
	log := s.Ctx.Logger.WithField("component", "consensus-actor")
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if s.Consensus == nil {
				continue
			}
			if err := s.Consensus.OnPayload(msg.Data, uint64(time.Now().UnixMilli())); err != nil {
				log.WithError(err).Debug("consensus payload dropped")
			}
		}
	}
}

// StartConsensus attaches a validator identity and starts the round timer.
func (s *NeoSystem) StartConsensus(cc ConsensusConfig) error {
	if s.bus == nil {
		return fmt.Errorf("neosystem: start the network before consensus")
	}
	if s.Consensus != nil {
		return fmt.Errorf("neosystem: consensus already started")
	}
	svc, err := NewConsensusService(cc, s.Chain, s.Mempool, peerBusBroadcaster{bus: s.bus}, s.Ctx.Logger)
	if err != nil {
		return err
	}
	s.Consensus = svc
	svc.OnViewChanged = func(byte) { s.Ctx.Metrics.ViewChanges.Inc() }
	svc.Start(uint64(time.Now().UnixMilli()))

	s.consensusStop = make(chan struct{})
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-s.consensusStop:
				return
			case now := <-ticker.C:
				ms := uint64(now.UnixMilli())
				if ms >= svc.TimerDeadline() {
					svc.OnTimer(ms)
				}
			}
		}
	}()
	return nil
}

// Stop halts the consensus timer, then cancels the transaction and block
// actors with one shared cancel (neither stops before the other), closes the
// peer bus, waits for every actor to return and closes the store.
func (s *NeoSystem) Stop() error {
	if s.consensusStop != nil {
		close(s.consensusStop)
		s.consensusStop = nil
	}
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if s.bus != nil {
		if err := s.bus.Close(); err != nil {
			s.Ctx.Logger.WithError(err).Warn("peer bus close")
		}
		s.bus = nil
	}
	s.wg.Wait()
	if err := s.Store.Close(); err != nil {
		return fmt.Errorf("neosystem: storage close: %w", err)
	}
	s.Ctx.Logger.Info("node stopped")
	return nil
}
