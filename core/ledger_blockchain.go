// SPDX-License-Identifier: BUSL-1.1
//
// Blockchain: the block-persistence driver. Load-or-bootstrap on open,
// then serve queries and applies behind one mutex, each apply running the
// fixed pipeline OnPersist -> per-tx execution -> PostPersist -> commit
// against one storage snapshot.
package core

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math/big"
	"sync"

	"github.com/sirupsen/logrus"
)

// genesisTimestampMS anchors every chain built from this protocol lineage.
const genesisTimestampMS uint64 = 1_468_595_301_000

// ExecutionLog is the per-transaction execution record persisted alongside
// the transaction.
type ExecutionLog struct {
	TxHash        U256
	Trigger       Trigger
	State         VMState
	GasConsumed   int64
	FaultMessage  string
	Notifications []Notification
	ResultItem    *StackItem
}

func (l *ExecutionLog) serialize() []byte {
	var buf bytes.Buffer
	bw := NewBinaryWriter(&buf)
	bw.WriteU8(byte(l.Trigger))
	bw.WriteU8(byte(l.State))
	bw.WriteI64(l.GasConsumed)
	bw.WriteVarString(l.FaultMessage)
	bw.WriteVarInt(uint64(len(l.Notifications)))
	for _, n := range l.Notifications {
		bw.WriteU160(n.Contract)
		bw.WriteVarString(n.EventName)
		state, err := SerializeStackItem(n.State)
		if err != nil {
			state = nil // unserializable notification state is logged empty
		}
		bw.WriteVarBytes(state)
	}
	var result []byte
	if l.ResultItem != nil {
		if raw, err := SerializeStackItem(l.ResultItem); err == nil {
			result = raw
		}
	}
	bw.WriteVarBytes(result)
	return buf.Bytes()
}

// BlockchainEvents receives the commit-phase notifications required.
type BlockchainEvents interface {
	BlockCommitting(block *Block, logs []*ExecutionLog)
	BlockCommitted(block *Block)
}

type noopBlockchainEvents struct{}

func (noopBlockchainEvents) BlockCommitting(*Block, []*ExecutionLog) {}
func (noopBlockchainEvents) BlockCommitted(*Block)                   {}

// Blockchain applies blocks atomically and in order and serves chain
// queries. Only one block applies at a time.
type Blockchain struct {
	mu      sync.Mutex
	store   Store
	cfg     *ProtocolConfig
	natives *NativeRegistry
	events  BlockchainEvents
	log     *logrus.Entry

	currentIndex uint32
	currentHash  U256
	genesisHash  U256
}

// NewBlockchain opens (or bootstraps) a chain over store. A store with no
// persisted height gets the genesis block created and applied.
func NewBlockchain(store Store, cfg *ProtocolConfig, natives *NativeRegistry, events BlockchainEvents, logger *logrus.Logger) (*Blockchain, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if events == nil {
		events = noopBlockchainEvents{}
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	bc := &Blockchain{
		store:   store,
		cfg:     cfg,
		natives: natives,
		events:  events,
		log:     logger.WithField("component", "blockchain"),
	}
	snap, err := store.Snapshot()
	if err != nil {
		return nil, fmt.Errorf("blockchain: open snapshot: %w", err)
	}
	if idx, ok := snapshotCurrentIndex(snap); ok {
		hash, ok := snapshotCurrentHash(snap)
		if !ok {
			return nil, fmt.Errorf("blockchain: height %d persisted without a tip hash", idx)
		}
		bc.currentIndex = idx
		bc.currentHash = hash
		if g, ok := snapshotBlockByIndex(snap, 0); ok {
			bc.genesisHash = g.Hash()
		}
		bc.log.WithFields(logrus.Fields{"height": idx, "hash": hash.String()}).Info("chain opened")
		return bc, nil
	}
	if err := bc.bootstrapGenesis(); err != nil {
		return nil, err
	}
	return bc, nil
}

// GenesisBlock assembles the deterministic index-0 block for cfg.
func GenesisBlock(cfg *ProtocolConfig) (*Block, error) {
	nextConsensus, err := cfg.NextConsensusAddress(cfg.StandbyValidators())
	if err != nil {
		return nil, err
	}
	b := &Block{
		Header: BlockHeader{
			Version:       0,
			PrevHash:      U256Zero,
			MerkleRoot:    U256Zero,
			TimestampMS:   genesisTimestampMS,
			Nonce:         uint64(cfg.Network),
			Index:         0,
			PrimaryIndex:  0,
			NextConsensus: nextConsensus,
			Witness: Witness{
				InvocationScript:   []byte{},
				VerificationScript: []byte{byte(OpPUSH1)},
			},
		},
	}
	return b, nil
}

// bootstrapGenesis runs native initialization under the System trigger and
// persists block 0.
func (bc *Blockchain) bootstrapGenesis() error {
	genesis, err := GenesisBlock(bc.cfg)
	if err != nil {
		return err
	}
	snap, err := bc.store.Snapshot()
	if err != nil {
		return err
	}
	engine := bc.newEngine(TriggerSystem, snap, nil, genesis, -1)
	if err := bc.natives.Initialize(engine); err != nil {
		return fmt.Errorf("blockchain: genesis initialization: %w", err)
	}
	if err := bc.persistBlockRecords(snap, genesis, nil); err != nil {
		return err
	}
	if err := bc.store.Commit(snap); err != nil {
		return fmt.Errorf("blockchain: genesis commit: %w", err)
	}
	bc.currentIndex = 0
	bc.currentHash = genesis.Hash()
	bc.genesisHash = bc.currentHash
	bc.log.WithField("hash", bc.currentHash.String()).Info("genesis block created")
	return nil
}

// CurrentIndex returns the persisted chain height.
func (bc *Blockchain) CurrentIndex() uint32 {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	return bc.currentIndex
}

// CurrentHash returns the persisted tip hash.
func (bc *Blockchain) CurrentHash() U256 {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	return bc.currentHash
}

// GetBlock loads a block by hash from committed state.
func (bc *Blockchain) GetBlock(hash U256) (*Block, error) {
	snap, err := bc.store.Snapshot()
	if err != nil {
		return nil, err
	}
	b, ok := snapshotBlock(snap, hash)
	if !ok {
		return nil, fmt.Errorf("blockchain: block %s not found", hash)
	}
	return b, nil
}

// GetBlockByIndex loads a block by height from committed state.
func (bc *Blockchain) GetBlockByIndex(index uint32) (*Block, error) {
	snap, err := bc.store.Snapshot()
	if err != nil {
		return nil, err
	}
	b, ok := snapshotBlockByIndex(snap, index)
	if !ok {
		return nil, fmt.Errorf("blockchain: no block at height %d", index)
	}
	return b, nil
}

// GetTransaction loads a committed transaction and its inclusion height.
func (bc *Blockchain) GetTransaction(hash U256) (*Transaction, uint32, error) {
	snap, err := bc.store.Snapshot()
	if err != nil {
		return nil, 0, err
	}
	tx, height, ok := snapshotTxState(snap, hash)
	if !ok {
		return nil, 0, fmt.Errorf("blockchain: transaction %s not found", hash)
	}
	return tx, height, nil
}

// ContainsTransaction reports whether hash is already committed.
func (bc *Blockchain) ContainsTransaction(hash U256) bool {
	snap, err := bc.store.Snapshot()
	if err != nil {
		return false
	}
	return snap.Contains(txStateKey(hash))
}

// newEngine builds an ApplicationEngine bound to this chain's natives,
// contract lookup and the persisting block's environment.
func (bc *Blockchain) newEngine(trigger Trigger, snap *Snapshot, container any, persisting *Block, gasLimit int64) *ApplicationEngine {
	var (
		height    uint32
		timestamp uint64
		seed      uint64
	)
	if persisting != nil {
		height = persisting.Header.Index
		timestamp = persisting.Header.TimestampMS
		seed = persisting.Header.Nonce
	}
	execFee := DefaultExecFeeFactor
	if bc.natives != nil && bc.natives.Policy != nil {
		execFee = bc.natives.Policy.ExecFeeFactor(snap)
	}
	e := NewApplicationEngine(EngineOptions{
		Trigger:       trigger,
		Snapshot:      snap,
		Container:     container,
		GasLimit:      gasLimit,
		Network:       bc.cfg.Network,
		Height:        height,
		TimestampMS:   timestamp,
		RandomSeed:    seed,
		Natives:       bc.natives,
		Persisting:    persisting,
		ExecFeeFactor: execFee,
	})
	if bc.natives != nil && bc.natives.Management != nil {
		e.SetContractLookup(bc.natives.Management.Lookup)
	}
	return e
}

// ApplyBlock validates block against the current tip and runs the full
// persistence pipeline: OnPersist, per-tx execution, PostPersist, commit.
func (bc *Blockchain) ApplyBlock(block *Block) error {
	bc.mu.Lock()
	defer bc.mu.Unlock()

	// 1. Structural validation against the current tip.
	if block.Header.Index != bc.currentIndex+1 {
		return fmt.Errorf("blockchain: block index %d does not extend height %d", block.Header.Index, bc.currentIndex)
	}
	if block.Header.PrevHash != bc.currentHash {
		return fmt.Errorf("blockchain: block prev_hash %s does not match tip %s", block.Header.PrevHash, bc.currentHash)
	}
	if err := block.Validate(); err != nil {
		return err
	}
	snap, err := bc.store.Snapshot()
	if err != nil {
		return fmt.Errorf("blockchain: snapshot: %w", err)
	}
	prev, ok := snapshotBlock(snap, bc.currentHash)
	if !ok {
		return fmt.Errorf("blockchain: tip block %s missing from store", bc.currentHash)
	}
	if block.Header.TimestampMS <= prev.Header.TimestampMS {
		return fmt.Errorf("blockchain: block timestamp %d not after previous %d", block.Header.TimestampMS, prev.Header.TimestampMS)
	}
	for _, tx := range block.Transactions {
		if snap.Contains(txStateKey(tx.Hash())) {
			return fmt.Errorf("blockchain: tx %s already committed", tx.Hash())
		}
		for _, c := range tx.ConflictHashes() {
			if snap.Contains(txStateKey(c)) {
				return fmt.Errorf("blockchain: tx %s conflicts with committed tx %s", tx.Hash(), c)
			}
		}
	}

	// 2. Header witness against the consensus address the previous block
	// committed to.
	if err := bc.verifyHeaderWitness(snap, block, prev.Header.NextConsensus); err != nil {
		return fmt.Errorf("blockchain: header witness: %w", err)
	}

	// 4. OnPersist.
	onPersist := bc.newEngine(TriggerOnPersist, snap, block, block, -1)
	if err := bc.natives.OnPersist(onPersist); err != nil {
		return fmt.Errorf("blockchain: OnPersist: %w", err)
	}

	// 5. Per-transaction execution with nested rollback.
	logs := make([]*ExecutionLog, 0, len(block.Transactions))
	for _, tx := range block.Transactions {
		if err := bc.burnFees(snap, block, tx); err != nil {
			return err
		}
		checkpoint := snap.Checkpoint()
		engine := bc.newEngine(TriggerApplication, snap, tx, block, tx.SystemFee)
		if _, err := engine.LoadContractScript(tx.Script, H160(tx.Script), CallFlagAll, 1); err != nil {
			return fmt.Errorf("blockchain: load tx %s: %w", tx.Hash(), err)
		}
		state := engine.Run()
		entry := &ExecutionLog{
			TxHash:        tx.Hash(),
			Trigger:       TriggerApplication,
			State:         state,
			GasConsumed:   engine.GasConsumed(),
			Notifications: engine.Notifications(),
			ResultItem:    engine.Result(),
		}
		if state == VMStateFault {
			snap.RollbackTo(checkpoint)
			if engine.FaultException() != nil {
				entry.FaultMessage = engine.FaultException().Error()
			}
			entry.Notifications = nil
			bc.log.WithFields(logrus.Fields{"tx": tx.Hash().String(), "reason": entry.FaultMessage}).Debug("transaction faulted")
		}
		logs = append(logs, entry)
	}

	// 6. PostPersist.
	postPersist := bc.newEngine(TriggerPostPersist, snap, block, block, -1)
	if err := bc.natives.PostPersist(postPersist); err != nil {
		return fmt.Errorf("blockchain: PostPersist: %w", err)
	}

	// 7. Persist records and commit atomically.
	if err := bc.persistBlockRecords(snap, block, logs); err != nil {
		return err
	}
	bc.events.BlockCommitting(block, logs)
	if err := bc.store.Commit(snap); err != nil {
		// A failed commit leaves the previous committed state intact; the
		// node must not advance.
		return fmt.Errorf("blockchain: commit height %d: %w", block.Header.Index, err)
	}
	bc.currentIndex = block.Header.Index
	bc.currentHash = block.Hash()
	bc.events.BlockCommitted(block)
	bc.log.WithFields(logrus.Fields{
		"height": bc.currentIndex,
		"txs":    len(block.Transactions),
		"hash":   bc.currentHash.String(),
	}).Info("block committed")
	return nil
}

// burnFees settles a transaction's system and network fees from its sender
// before execution; both are charged whether or not the script halts.
func (bc *Blockchain) burnFees(snap *Snapshot, block *Block, tx *Transaction) error {
	total := big.NewInt(tx.SystemFee + tx.NetworkFee)
	if total.Sign() == 0 {
		return nil
	}
	sender := tx.Signers[0].Account
	engine := bc.newEngine(TriggerOnPersist, snap, block, block, -1)
	if err := bc.natives.Gas.Burn(engine, sender, total); err != nil {
		return fmt.Errorf("blockchain: fee burn for %s: %w", tx.Hash(), err)
	}
	return nil
}

// verifyHeaderWitness checks the header's witness against the expected
// consensus multisig address by executing it under the Verification trigger.
func (bc *Blockchain) verifyHeaderWitness(snap *Snapshot, block *Block, expected U160) error {
	return bc.VerifyWitness(snap, &block.Header, block.Header.Witness, expected, VerificationGasLimit)
}

// VerifyWitness runs a witness pair: the invocation script executes first,
// its stack transfers to the verification script, and success requires a
// HALT with exactly one truthy item.
func (bc *Blockchain) VerifyWitness(snap *Snapshot, container any, w Witness, expected U160, gasLimit int64) error {
	if w.ScriptHash() != expected {
		return fmt.Errorf("witness script hash %s does not match %s", w.ScriptHash(), expected)
	}
	engine := bc.newEngine(TriggerVerification, snap, container, nil, gasLimit)
	if _, err := engine.LoadContractScript(w.VerificationScript, expected, CallFlagReadOnly, 1); err != nil {
		return err
	}
	if len(w.InvocationScript) > 0 {
		if err := checkInvocationScript(w.InvocationScript); err != nil {
			return err
		}
		if _, err := engine.LoadContractScript(w.InvocationScript, expected, CallFlagNone, -1); err != nil {
			return err
		}
	}
	if state := engine.Run(); state != VMStateHalt {
		return fmt.Errorf("witness execution ended in %s: %v", state, engine.FaultException())
	}
	if engine.ResultDepth() != 1 {
		return fmt.Errorf("witness left %d items on the stack", engine.ResultDepth())
	}
	result := engine.Result()
	if result == nil || !result.Bool() {
		return fmt.Errorf("witness verification returned false")
	}
	return nil
}

// checkInvocationScript restricts invocation scripts to pure pushes, so a
// witness cannot smuggle computation ahead of its verification script.
func checkInvocationScript(script []byte) error {
	for i := 0; i < len(script); {
		op := Opcode(script[i])
		if op > OpPUSH16 {
			return fmt.Errorf("invocation script contains non-push opcode %s", op)
		}
		n, kind, err := operandSpec(op)
		if err != nil {
			return err
		}
		i++
		switch kind {
		case operandNone:
		case operandFixed:
			i += n
		case operandVar1, operandVar2, operandVar4:
			prefixLen := map[byte]int{operandVar1: 1, operandVar2: 2, operandVar4: 4}[kind]
			if i+prefixLen > len(script) {
				return fmt.Errorf("invocation script truncated")
			}
			length := 0
			for j := prefixLen - 1; j >= 0; j-- {
				length = length<<8 | int(script[i+j])
			}
			i += prefixLen + length
		}
		if i > len(script) {
			return fmt.Errorf("invocation script truncated")
		}
	}
	return nil
}

// persistBlockRecords writes the block, header, index mapping, per-tx state
// records and the new tip markers into snap.
func (bc *Blockchain) persistBlockRecords(snap *Snapshot, block *Block, logs []*ExecutionLog) error {
	record, err := serializeBlockRecord(block)
	if err != nil {
		return err
	}
	hash := block.Hash()
	snap.Put(blockHashKey(hash), record)
	headerRaw, err := block.Header.Serialize()
	if err != nil {
		return err
	}
	snap.Put(headerHashKey(hash), headerRaw)
	snap.Put(blockIndexKey(block.Header.Index), hash.Bytes())

	logByHash := make(map[U256]*ExecutionLog, len(logs))
	for _, l := range logs {
		logByHash[l.TxHash] = l
	}
	for _, tx := range block.Transactions {
		txRaw, err := tx.Serialize()
		if err != nil {
			return err
		}
		var buf bytes.Buffer
		bw := NewBinaryWriter(&buf)
		bw.WriteU32(block.Header.Index)
		bw.WriteU32(uint32(len(txRaw)))
		bw.WriteBytes(txRaw)
		if l, ok := logByHash[tx.Hash()]; ok {
			bw.WriteBytes(l.serialize())
		}
		if bw.Err() != nil {
			return bw.Err()
		}
		snap.Put(txStateKey(tx.Hash()), buf.Bytes())
	}

	var idxBuf [4]byte
	binary.LittleEndian.PutUint32(idxBuf[:], block.Header.Index)
	snap.Put([]byte{prefixCurrentIndex}, idxBuf[:])
	snap.Put([]byte{prefixCurrentHash}, hash.Bytes())
	return nil
}

// VerifyStateful is the mempool's stateful admission check: ledger duplication, expiry window, policy, sender balance, witnesses.
func (bc *Blockchain) VerifyStateful(tx *Transaction, currentHeight uint32) error {
	snap, err := bc.store.Snapshot()
	if err != nil {
		return err
	}
	if snap.Contains(txStateKey(tx.Hash())) {
		return fmt.Errorf("tx %s already committed", tx.Hash())
	}
	if tx.ValidUntilBlock <= currentHeight {
		return fmt.Errorf("tx %s expired at %d, height %d", tx.Hash(), tx.ValidUntilBlock, currentHeight)
	}
	if tx.ValidUntilBlock > currentHeight+bc.cfg.MaxValidUntilBlockIncrement {
		return fmt.Errorf("tx %s valid_until_block too far ahead", tx.Hash())
	}
	for _, c := range tx.ConflictHashes() {
		if snap.Contains(txStateKey(c)) {
			return fmt.Errorf("tx %s conflicts with committed tx %s", tx.Hash(), c)
		}
	}
	policy := bc.natives.Policy
	for _, s := range tx.Signers {
		if policy.IsBlocked(snap, s.Account) {
			return fmt.Errorf("tx %s signer %s is blocked", tx.Hash(), s.Account)
		}
	}
	size, err := tx.Size()
	if err != nil {
		return err
	}
	if minFee := policy.FeePerByte(snap) * int64(size); tx.NetworkFee < minFee {
		return fmt.Errorf("tx %s network fee %d below policy minimum %d", tx.Hash(), tx.NetworkFee, minFee)
	}
	if tx.HasHighPriority() {
		committee, err := bc.cfg.CommitteeAddress()
		if err != nil {
			return err
		}
		found := false
		for _, s := range tx.Signers {
			if s.Account == committee {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("tx %s carries HighPriority without a committee signer", tx.Hash())
		}
	}
	sender := tx.Signers[0].Account
	balance := bc.natives.Gas.BalanceOf(snap, sender)
	if balance.Cmp(big.NewInt(tx.SystemFee+tx.NetworkFee)) < 0 {
		return fmt.Errorf("tx %s sender cannot cover fees", tx.Hash())
	}
	for i, s := range tx.Signers {
		if err := bc.VerifyWitness(snap, tx, tx.Witnesses[i], s.Account, VerificationGasLimit); err != nil {
			return fmt.Errorf("tx %s witness %d: %w", tx.Hash(), i, err)
		}
	}
	return nil
}
