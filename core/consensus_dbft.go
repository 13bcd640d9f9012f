// SPDX-License-Identifier: BUSL-1.1
//
// dBFT state machine. Single-threaded by contract: the owning
// actor feeds it OnPayload/OnTimer/OnTransaction in arrival order and reads
// TimerDeadline back. Time is always passed in, never read from a wall
// clock, so every transition is replayable.
package core

import (
	"bytes"
	"crypto/ecdsa"
	"encoding/binary"
	"fmt"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
)

// ConsensusPhase is the node's position in the current round.
type ConsensusPhase byte

const (
	PhaseInitial ConsensusPhase = iota
	PhaseRequestSent
	PhaseRequestReceived
	PhaseCommitSent
	PhaseViewChanging
	PhaseCommitted
)

func (p ConsensusPhase) String() string {
	switch p {
	case PhaseInitial:
		return "Initial"
	case PhaseRequestSent:
		return "RequestSent"
	case PhaseRequestReceived:
		return "RequestReceived"
	case PhaseCommitSent:
		return "CommitSent"
	case PhaseViewChanging:
		return "ViewChanging"
	case PhaseCommitted:
		return "Committed"
	default:
		return "Unknown"
	}
}

// ConsensusChain is the blockchain surface consensus drives.
type ConsensusChain interface {
	CurrentIndex() uint32
	CurrentHash() U256
	GetBlockByIndex(index uint32) (*Block, error)
	ApplyBlock(block *Block) error
}

// ConsensusBroadcaster carries outbound consensus traffic; the PeerBus
// adapter implements it in production, tests wire services directly.
type ConsensusBroadcaster interface {
	BroadcastConsensus(payload []byte) error
	RequestTransactions(hashes []U256) error
}

// ConsensusConfig fixes one validator's identity and round parameters.
type ConsensusConfig struct {
	Validators []ECPoint
	MyIndex    int // -1 for an observer with no signing key
	PrivateKey *ecdsa.PrivateKey
	Network    uint32
	MsPerBlock uint64

	MaxBlockTx        int
	MaxBlockSizeBytes int
	MaxBlockSystemFee int64
}

// ConsensusService is the per-validator dBFT state machine.
type ConsensusService struct {
	mu      sync.Mutex
	cfg     ConsensusConfig
	chain   ConsensusChain
	mempool *Mempool
	bus     ConsensusBroadcaster
	log     *logrus.Entry

	blockIndex uint32
	viewNumber byte
	phase      ConsensusPhase

	prepareRequest    *PrepareRequest
	preparationHash   U256
	preparations      map[uint8]*ConsensusPayload
	commits           map[uint8][]byte
	expectedView      map[uint8]byte
	changeViewRaw     map[uint8][]byte
	preparationRaw    map[uint8][]byte
	prepareRequestRaw []byte

	txs        map[U256]*Transaction
	missingTxs map[U256]bool
	candidate  *Block

	timerDeadline uint64
	futureView    map[byte][][]byte // payloads for views not yet reached

	// OnViewChanged, when set, observes every advance to a non-zero view;
	// the node wires this to its metrics.
	OnViewChanged func(view byte)
}

// NewConsensusService builds a service for one validator (or observer).
func NewConsensusService(cfg ConsensusConfig, chain ConsensusChain, mempool *Mempool, bus ConsensusBroadcaster, logger *logrus.Logger) (*ConsensusService, error) {
	n := len(cfg.Validators)
	if n == 0 {
		return nil, fmt.Errorf("consensus: empty validator set")
	}
	if cfg.MyIndex >= n {
		return nil, fmt.Errorf("consensus: my index %d out of range for %d validators", cfg.MyIndex, n)
	}
	if cfg.MaxBlockTx <= 0 {
		cfg.MaxBlockTx = int(DefaultMaxTxPerBlock)
	}
	if cfg.MaxBlockSizeBytes <= 0 {
		cfg.MaxBlockSizeBytes = int(DefaultMaxBlockSizeBytes)
	}
	if cfg.MaxBlockSystemFee <= 0 {
		cfg.MaxBlockSystemFee = DefaultMaxBlockSystemFee
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &ConsensusService{
		cfg:     cfg,
		chain:   chain,
		mempool: mempool,
		bus:     bus,
		log:     logger.WithField("component", "consensus"),
	}, nil
}

// N, F and M are the classic dBFT quorum parameters.
func (s *ConsensusService) N() int { return len(s.cfg.Validators) }
func (s *ConsensusService) F() int { return (s.N() - 1) / 3 }
func (s *ConsensusService) M() int { return s.N() - s.F() }

// PrimaryIndex computes the proposer for (blockIndex, view): validator
// (block_index - view_number) mod N.
func (s *ConsensusService) PrimaryIndex(view byte) uint8 {
	n := int64(s.N())
	idx := (int64(s.blockIndex) - int64(view)) % n
	if idx < 0 {
		idx += n
	}
	return uint8(idx)
}

// IsPrimary reports whether this node proposes in the current view.
func (s *ConsensusService) IsPrimary() bool {
	return s.cfg.MyIndex >= 0 && uint8(s.cfg.MyIndex) == s.PrimaryIndex(s.viewNumber)
}

// Phase returns the current round phase.
func (s *ConsensusService) Phase() ConsensusPhase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// BlockIndex returns the height this round is deciding.
func (s *ConsensusService) BlockIndex() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.blockIndex
}

// ViewNumber returns the current view.
func (s *ConsensusService) ViewNumber() byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewNumber
}

// TimerDeadline returns the absolute ms timestamp the owning actor should
// fire OnTimer at.
func (s *ConsensusService) TimerDeadline() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timerDeadline
}

// Start initializes the round for the next block.
func (s *ConsensusService) Start(nowMS uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blockIndex = s.chain.CurrentIndex() + 1
	s.initializeView(0, nowMS)
}

// initializeView resets per-view state; callers hold the lock. The view
// timer doubles with each change.
func (s *ConsensusService) initializeView(view byte, nowMS uint64) {
	if view > 0 && s.OnViewChanged != nil {
		s.OnViewChanged(view)
	}
	s.viewNumber = view
	s.phase = PhaseInitial
	s.prepareRequest = nil
	s.prepareRequestRaw = nil
	s.preparationHash = U256{}
	s.preparations = make(map[uint8]*ConsensusPayload)
	s.preparationRaw = make(map[uint8][]byte)
	s.commits = make(map[uint8][]byte)
	s.expectedView = make(map[uint8]byte)
	s.changeViewRaw = make(map[uint8][]byte)
	s.txs = make(map[U256]*Transaction)
	s.missingTxs = make(map[U256]bool)
	s.candidate = nil
	s.timerDeadline = nowMS + s.cfg.MsPerBlock<<view
	if s.futureView == nil {
		s.futureView = make(map[byte][][]byte)
	}
	if buffered, ok := s.futureView[view]; ok {
		delete(s.futureView, view)
		for _, raw := range buffered {
			inner, err := DeserializeConsensusPayload(raw)
			if err != nil {
				continue
			}
			_ = s.onPayloadLocked(inner, raw, nowMS, true)
		}
	}
}

// OnBlockCommitted handles an externally applied block (gossip import):
// tear down the in-flight round and restart at the new height.
func (s *ConsensusService) OnBlockCommitted(nowMS uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.chain.CurrentIndex() + 1
	if next <= s.blockIndex && s.phase != PhaseCommitted {
		return
	}
	s.blockIndex = next
	s.futureView = make(map[byte][][]byte)
	s.initializeView(0, nowMS)
}

// OnTimer fires when the view timer elapses: the primary proposes, a
// backup asks for a view change.
func (s *ConsensusService) OnTimer(nowMS uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if nowMS < s.timerDeadline {
		return
	}
	switch {
	case s.phase == PhaseCommitSent:
		// Never abandon a commit: re-broadcast evidence so stragglers can
		// finish the round.
		s.broadcastRecoveryLocked()
		s.timerDeadline = nowMS + s.cfg.MsPerBlock<<s.viewNumber
	case s.IsPrimary() && s.phase == PhaseInitial:
		s.sendPrepareRequestLocked(nowMS)
	default:
		s.requestChangeViewLocked(CVTimeout, nowMS)
	}
}

// OnTransaction feeds a transaction a PrepareRequest was missing.
func (s *ConsensusService) OnTransaction(tx *Transaction, nowMS uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := tx.Hash()
	if !s.missingTxs[h] {
		return
	}
	delete(s.missingTxs, h)
	s.txs[h] = tx
	if len(s.missingTxs) == 0 && s.prepareRequest != nil {
		s.respondToPrepareLocked(nowMS)
	}
}

// OnPayload verifies and dispatches one inbound envelope.
func (s *ConsensusService) OnPayload(raw []byte, nowMS uint64) error {
	payload, err := DeserializeConsensusPayload(raw)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.onPayloadLocked(payload, raw, nowMS, true)
}

func (s *ConsensusService) onPayloadLocked(payload *ConsensusPayload, raw []byte, nowMS uint64, allowRecovery bool) error {
	if payload.Network != s.cfg.Network {
		return fmt.Errorf("consensus: payload for network 0x%08x", payload.Network)
	}
	if int(payload.ValidatorIndex) >= s.N() {
		return fmt.Errorf("consensus: validator index %d out of range", payload.ValidatorIndex)
	}
	if s.cfg.MyIndex >= 0 && int(payload.ValidatorIndex) == s.cfg.MyIndex {
		return nil // own broadcast echoed back
	}
	if !payload.VerifySignature(s.cfg.Validators[payload.ValidatorIndex]) {
		return fmt.Errorf("consensus: bad signature from validator %d", payload.ValidatorIndex)
	}
	if payload.BlockIndex != s.blockIndex {
		return nil // stale or far-future height; recovery handles catch-up
	}
	if payload.ViewNumber != s.viewNumber {
		switch {
		case payload.Type == MsgChangeView && payload.ViewNumber >= s.viewNumber:
			// Change-view votes for later views still count.
		case payload.ViewNumber > s.viewNumber:
			s.futureView[payload.ViewNumber] = append(s.futureView[payload.ViewNumber], raw)
			return nil
		default:
			return nil
		}
	}
	switch payload.Type {
	case MsgPrepareRequest:
		return s.onPrepareRequestLocked(payload, raw, nowMS)
	case MsgPrepareResponse:
		return s.onPrepareResponseLocked(payload, raw, nowMS)
	case MsgCommit:
		return s.onCommitLocked(payload, nowMS)
	case MsgChangeView:
		return s.onChangeViewLocked(payload, raw, nowMS)
	case MsgRecoveryRequest:
		s.broadcastRecoveryLocked()
		return nil
	case MsgRecoveryMessage:
		if !allowRecovery {
			return nil
		}
		return s.onRecoveryMessageLocked(payload, nowMS)
	default:
		return fmt.Errorf("consensus: unknown message type 0x%02x", byte(payload.Type))
	}
}

// sendPrepareRequestLocked drains the mempool into a proposal and
// broadcasts it.
func (s *ConsensusService) sendPrepareRequestLocked(nowMS uint64) {
	txs, err := s.mempool.SelectForBlock(s.cfg.MaxBlockSizeBytes-1024, s.cfg.MaxBlockTx, s.cfg.MaxBlockSystemFee)
	if err != nil {
		s.log.WithError(err).Error("block candidate selection failed")
		return
	}
	prevTimestamp := s.prevTimestamp()
	timestamp := nowMS
	if timestamp <= prevTimestamp {
		timestamp = prevTimestamp + 1
	}
	req := &PrepareRequest{
		Timestamp: timestamp,
		Nonce:     s.deriveNonce(),
		TxHashes:  make([]U256, len(txs)),
	}
	for i, tx := range txs {
		h := tx.Hash()
		req.TxHashes[i] = h
		s.txs[h] = tx
	}
	payload, raw, err := s.signedPayload(MsgPrepareRequest, req.Serialize())
	if err != nil {
		s.log.WithError(err).Error("prepare request signing failed")
		return
	}
	s.prepareRequest = req
	s.prepareRequestRaw = raw
	s.preparationHash = payload.Hash()
	s.preparations[payload.ValidatorIndex] = payload
	s.preparationRaw[payload.ValidatorIndex] = raw
	s.phase = PhaseRequestSent
	s.timerDeadline = nowMS + s.cfg.MsPerBlock<<s.viewNumber
	s.broadcast(raw)
	s.log.WithFields(logrus.Fields{"height": s.blockIndex, "view": s.viewNumber, "txs": len(txs)}).Info("prepare request sent")
	s.checkPreparationsLocked(nowMS)
}

// prevTimestamp reads the current tip's timestamp for monotonicity checks.
func (s *ConsensusService) prevTimestamp() uint64 {
	prev, err := s.chain.GetBlockByIndex(s.blockIndex - 1)
	if err != nil {
		return 0
	}
	return prev.Header.TimestampMS
}

// deriveNonce gives every (tip, height) pair a stable proposal nonce, so a
// re-proposal after recovery is byte-identical.
func (s *ConsensusService) deriveNonce() uint64 {
	var buf bytes.Buffer
	bw := NewBinaryWriter(&buf)
	bw.WriteU256(s.chain.CurrentHash())
	bw.WriteU32(s.blockIndex)
	h := H256(buf.Bytes())
	return binary.LittleEndian.Uint64(h[:8])
}

func (s *ConsensusService) onPrepareRequestLocked(payload *ConsensusPayload, raw []byte, nowMS uint64) error {
	if payload.ValidatorIndex != s.PrimaryIndex(s.viewNumber) {
		return fmt.Errorf("consensus: prepare request from non-primary %d", payload.ValidatorIndex)
	}
	if s.prepareRequest != nil || s.phase == PhaseCommitSent {
		return nil
	}
	req, err := DeserializePrepareRequest(payload.Data)
	if err != nil {
		s.requestChangeViewLocked(CVTxInvalid, nowMS)
		return err
	}
	if req.Timestamp <= s.prevTimestamp() {
		s.requestChangeViewLocked(CVBlockRejectedByPolicy, nowMS)
		return fmt.Errorf("consensus: proposal timestamp not after previous block")
	}
	if len(req.TxHashes) > s.cfg.MaxBlockTx {
		s.requestChangeViewLocked(CVBlockRejectedByPolicy, nowMS)
		return fmt.Errorf("consensus: proposal exceeds tx budget")
	}
	s.prepareRequest = req
	s.prepareRequestRaw = raw
	s.preparationHash = payload.Hash()
	s.preparations[payload.ValidatorIndex] = payload
	s.preparationRaw[payload.ValidatorIndex] = raw

	// Drop any responses that arrived ahead of the request and reference a
	// different proposal.
	for idx, p := range s.preparations {
		if p.Type != MsgPrepareResponse {
			continue
		}
		resp, err := DeserializePrepareResponse(p.Data)
		if err != nil || resp.PreparationHash != s.preparationHash {
			delete(s.preparations, idx)
			delete(s.preparationRaw, idx)
		}
	}

	s.missingTxs = make(map[U256]bool)
	for _, h := range req.TxHashes {
		if _, ok := s.txs[h]; ok {
			continue
		}
		if entry, ok := s.mempool.Get(h); ok {
			s.txs[h] = entry.Tx
			continue
		}
		s.missingTxs[h] = true
	}
	if len(s.missingTxs) > 0 {
		hashes := make([]U256, 0, len(s.missingTxs))
		for h := range s.missingTxs {
			hashes = append(hashes, h)
		}
		if err := s.bus.RequestTransactions(hashes); err != nil {
			s.log.WithError(err).Warn("missing-tx request failed")
		}
		return nil
	}
	s.respondToPrepareLocked(nowMS)
	return nil
}

// respondToPrepareLocked validates the assembled candidate and answers
// with a PrepareResponse.
func (s *ConsensusService) respondToPrepareLocked(nowMS uint64) {
	candidate, err := s.makeCandidateLocked()
	if err != nil {
		s.log.WithError(err).Warn("rejecting proposal")
		s.requestChangeViewLocked(CVBlockRejectedByPolicy, nowMS)
		return
	}
	s.candidate = candidate
	if s.cfg.MyIndex >= 0 && s.phase != PhaseRequestSent {
		resp := &PrepareResponse{PreparationHash: s.preparationHash}
		payload, raw, err := s.signedPayload(MsgPrepareResponse, resp.Serialize())
		if err != nil {
			s.log.WithError(err).Error("prepare response signing failed")
			return
		}
		s.preparations[payload.ValidatorIndex] = payload
		s.preparationRaw[payload.ValidatorIndex] = raw
		s.phase = PhaseRequestReceived
		s.broadcast(raw)
	}
	s.checkPreparationsLocked(nowMS)
}

// makeCandidateLocked assembles and structurally validates the proposed
// block.
func (s *ConsensusService) makeCandidateLocked() (*Block, error) {
	req := s.prepareRequest
	txs := make([]*Transaction, len(req.TxHashes))
	hashes := make([]U256, len(req.TxHashes))
	var totalFee int64
	for i, h := range req.TxHashes {
		tx, ok := s.txs[h]
		if !ok {
			return nil, fmt.Errorf("consensus: tx %s still missing", h)
		}
		txs[i] = tx
		hashes[i] = h
		totalFee += tx.SystemFee
	}
	if totalFee > s.cfg.MaxBlockSystemFee {
		return nil, fmt.Errorf("consensus: proposal system fees exceed budget")
	}
	merkle := U256Zero
	if len(hashes) > 0 {
		root, err := MerkleRoot(hashes)
		if err != nil {
			return nil, err
		}
		merkle = root
	}
	nextConsensus, err := consensusAddress(s.cfg.Validators)
	if err != nil {
		return nil, err
	}
	block := &Block{
		Header: BlockHeader{
			Version:       0,
			PrevHash:      s.chain.CurrentHash(),
			MerkleRoot:    merkle,
			TimestampMS:   req.Timestamp,
			Nonce:         req.Nonce,
			Index:         s.blockIndex,
			PrimaryIndex:  s.PrimaryIndex(s.viewNumber),
			NextConsensus: nextConsensus,
		},
		Transactions: txs,
	}
	if err := block.Validate(); err != nil {
		return nil, err
	}
	size, err := block.Size()
	if err != nil {
		return nil, err
	}
	if size > s.cfg.MaxBlockSizeBytes {
		return nil, fmt.Errorf("consensus: proposal size %d exceeds budget", size)
	}
	return block, nil
}

// checkPreparationsLocked sends Commit once M preparations (request +
// responses) are in.
func (s *ConsensusService) checkPreparationsLocked(nowMS uint64) {
	if s.prepareRequest == nil || s.candidate == nil && !s.IsPrimary() {
		return
	}
	if s.candidate == nil {
		cand, err := s.makeCandidateLocked()
		if err != nil {
			return
		}
		s.candidate = cand
	}
	if len(s.preparations) < s.M() || s.phase == PhaseCommitSent || s.phase == PhaseCommitted {
		return
	}
	if s.cfg.MyIndex < 0 {
		return
	}
	headerHash := s.candidate.Hash()
	sig, err := SignMessage(s.cfg.PrivateKey, SignData(s.cfg.Network, headerHash))
	if err != nil {
		s.log.WithError(err).Error("commit signing failed")
		return
	}
	commit := &Commit{Signature: sig}
	payload, raw, err := s.signedPayload(MsgCommit, commit.Serialize())
	if err != nil {
		s.log.WithError(err).Error("commit payload signing failed")
		return
	}
	s.commits[payload.ValidatorIndex] = sig
	s.phase = PhaseCommitSent
	s.broadcast(raw)
	s.log.WithFields(logrus.Fields{"height": s.blockIndex, "view": s.viewNumber}).Info("commit sent")
	s.checkCommitsLocked(nowMS)
}

func (s *ConsensusService) onPrepareResponseLocked(payload *ConsensusPayload, raw []byte, nowMS uint64) error {
	resp, err := DeserializePrepareResponse(payload.Data)
	if err != nil {
		return err
	}
	if s.prepareRequest != nil && resp.PreparationHash != s.preparationHash {
		return fmt.Errorf("consensus: response for unknown proposal from %d", payload.ValidatorIndex)
	}
	if _, dup := s.preparations[payload.ValidatorIndex]; dup {
		return nil
	}
	s.preparations[payload.ValidatorIndex] = payload
	s.preparationRaw[payload.ValidatorIndex] = raw
	s.checkPreparationsLocked(nowMS)
	return nil
}

func (s *ConsensusService) onCommitLocked(payload *ConsensusPayload, nowMS uint64) error {
	commit, err := DeserializeCommit(payload.Data)
	if err != nil {
		return err
	}
	if _, dup := s.commits[payload.ValidatorIndex]; dup {
		return nil
	}
	s.commits[payload.ValidatorIndex] = commit.Signature
	s.checkCommitsLocked(nowMS)
	return nil
}

// checkCommitsLocked assembles and applies the block once M valid header
// signatures are collected.
func (s *ConsensusService) checkCommitsLocked(nowMS uint64) {
	if s.candidate == nil || s.phase == PhaseCommitted {
		return
	}
	headerHash := s.candidate.Hash()
	signData := SignData(s.cfg.Network, headerHash)
	valid := make(map[uint8][]byte)
	for idx, sig := range s.commits {
		if CheckSig(s.cfg.Validators[idx], signData, sig) {
			valid[idx] = sig
		}
	}
	if len(valid) < s.M() {
		return
	}
	witness, err := s.assembleWitnessLocked(valid)
	if err != nil {
		s.log.WithError(err).Error("witness assembly failed")
		return
	}
	s.candidate.Header.Witness = witness
	s.phase = PhaseCommitted
	block := s.candidate
	if err := s.chain.ApplyBlock(block); err != nil {
		s.log.WithError(err).Error("assembled block rejected by chain")
		return
	}
	s.log.WithFields(logrus.Fields{"height": block.Header.Index, "view": s.viewNumber}).Info("block committed by consensus")
	s.blockIndex = s.chain.CurrentIndex() + 1
	s.futureView = make(map[byte][][]byte)
	s.initializeView(0, nowMS)
}

// assembleWitnessLocked builds the M-of-N multisig witness: signatures in
// the invocation script ordered to match the verification script's sorted
// key order.
func (s *ConsensusService) assembleWitnessLocked(valid map[uint8][]byte) (Witness, error) {
	verification, err := multisigVerificationScript(s.M(), s.cfg.Validators)
	if err != nil {
		return Witness{}, err
	}
	order := make([]int, s.N())
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		return bytes.Compare(
			s.cfg.Validators[order[a]].CompressedBytes(),
			s.cfg.Validators[order[b]].CompressedBytes()) < 0
	})
	var invocation []byte
	count := 0
	for _, vi := range order {
		sig, ok := valid[uint8(vi)]
		if !ok {
			continue
		}
		invocation = append(invocation, byte(OpPUSHDATA1), byte(len(sig)))
		invocation = append(invocation, sig...)
		count++
		if count == s.M() {
			break
		}
	}
	if count < s.M() {
		return Witness{}, fmt.Errorf("consensus: only %d of %d required signatures", count, s.M())
	}
	return Witness{InvocationScript: invocation, VerificationScript: verification}, nil
}

// requestChangeViewLocked broadcasts a ChangeView vote and enters the
// ViewChanging phase.
func (s *ConsensusService) requestChangeViewLocked(reason ChangeViewReason, nowMS uint64) {
	if s.cfg.MyIndex < 0 || s.phase == PhaseCommitSent || s.phase == PhaseCommitted {
		return
	}
	newView := s.viewNumber + 1
	cv := &ChangeView{NewViewNumber: newView, Timestamp: nowMS, Reason: reason}
	payload, raw, err := s.signedPayload(MsgChangeView, cv.Serialize())
	if err != nil {
		s.log.WithError(err).Error("change view signing failed")
		return
	}
	s.phase = PhaseViewChanging
	s.expectedView[payload.ValidatorIndex] = newView
	s.changeViewRaw[payload.ValidatorIndex] = raw
	s.timerDeadline = nowMS + s.cfg.MsPerBlock<<newView
	s.broadcast(raw)
	s.log.WithFields(logrus.Fields{
		"height": s.blockIndex, "view": s.viewNumber, "new_view": newView, "reason": reason.String(),
	}).Info("change view requested")
	s.checkExpectedViewLocked(nowMS)
}

func (s *ConsensusService) onChangeViewLocked(payload *ConsensusPayload, raw []byte, nowMS uint64) error {
	cv, err := DeserializeChangeView(payload.Data)
	if err != nil {
		return err
	}
	if cv.NewViewNumber <= s.viewNumber {
		return nil
	}
	if prev, ok := s.expectedView[payload.ValidatorIndex]; ok && prev >= cv.NewViewNumber {
		return nil
	}
	s.expectedView[payload.ValidatorIndex] = cv.NewViewNumber
	s.changeViewRaw[payload.ValidatorIndex] = raw
	s.checkExpectedViewLocked(nowMS)
	return nil
}

// checkExpectedViewLocked advances once M validators expect a view beyond
// the current one.
func (s *ConsensusService) checkExpectedViewLocked(nowMS uint64) {
	if s.phase == PhaseCommitSent || s.phase == PhaseCommitted {
		return
	}
	target := s.viewNumber + 1
	count := 0
	for _, v := range s.expectedView {
		if v >= target {
			count++
		}
	}
	if count < s.M() {
		return
	}
	s.log.WithFields(logrus.Fields{"height": s.blockIndex, "view": target}).Info("view changed")
	s.initializeView(target, nowMS)
}

// broadcastRecoveryLocked bundles collected evidence for laggards.
func (s *ConsensusService) broadcastRecoveryLocked() {
	if s.cfg.MyIndex < 0 {
		return
	}
	rm := &RecoveryMessage{PrepareRequestPayload: s.prepareRequestRaw}
	for idx, raw := range s.preparationRaw {
		if s.preparations[idx] != nil && s.preparations[idx].Type == MsgPrepareResponse {
			rm.Preparations = append(rm.Preparations, raw)
		}
	}
	for idx, sig := range s.commits {
		if s.cfg.MyIndex >= 0 && int(idx) == s.cfg.MyIndex {
			commit := &Commit{Signature: sig}
			_, raw, err := s.signedPayload(MsgCommit, commit.Serialize())
			if err == nil {
				rm.Commits = append(rm.Commits, raw)
			}
		}
	}
	for _, raw := range s.changeViewRaw {
		rm.ChangeViews = append(rm.ChangeViews, raw)
	}
	_, raw, err := s.signedPayload(MsgRecoveryMessage, rm.Serialize())
	if err != nil {
		s.log.WithError(err).Error("recovery message signing failed")
		return
	}
	s.broadcast(raw)
}

// onRecoveryMessageLocked replays the bundled envelopes through the normal
// dispatch path.
func (s *ConsensusService) onRecoveryMessageLocked(payload *ConsensusPayload, nowMS uint64) error {
	rm, err := DeserializeRecoveryMessage(payload.Data)
	if err != nil {
		return err
	}
	replay := func(raw []byte) {
		if len(raw) == 0 {
			return
		}
		inner, err := DeserializeConsensusPayload(raw)
		if err != nil {
			return
		}
		_ = s.onPayloadLocked(inner, raw, nowMS, false)
	}
	replay(rm.PrepareRequestPayload)
	for _, raw := range rm.Preparations {
		replay(raw)
	}
	for _, raw := range rm.Commits {
		replay(raw)
	}
	for _, raw := range rm.ChangeViews {
		replay(raw)
	}
	return nil
}

// RequestRecovery broadcasts a RecoveryRequest; a rejoining or lagging
// validator calls this instead of waiting out the timer.
func (s *ConsensusService) RequestRecovery(nowMS uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rr := &RecoveryRequest{Timestamp: nowMS}
	_, raw, err := s.signedPayload(MsgRecoveryRequest, rr.Serialize())
	if err != nil {
		s.log.WithError(err).Error("recovery request signing failed")
		return
	}
	s.broadcast(raw)
}

// signedPayload wraps body in a signed envelope from this validator.
func (s *ConsensusService) signedPayload(t ConsensusMessageType, body []byte) (*ConsensusPayload, []byte, error) {
	if s.cfg.MyIndex < 0 || s.cfg.PrivateKey == nil {
		return nil, nil, fmt.Errorf("consensus: observer cannot sign")
	}
	p := &ConsensusPayload{
		Network:        s.cfg.Network,
		BlockIndex:     s.blockIndex,
		ValidatorIndex: uint8(s.cfg.MyIndex),
		ViewNumber:     s.viewNumber,
		Type:           t,
		Data:           body,
	}
	if err := p.Sign(s.cfg.PrivateKey); err != nil {
		return nil, nil, err
	}
	raw, err := p.Serialize()
	if err != nil {
		return nil, nil, err
	}
	return p, raw, nil
}

func (s *ConsensusService) broadcast(raw []byte) {
	if err := s.bus.BroadcastConsensus(raw); err != nil {
		s.log.WithError(err).Warn("consensus broadcast failed")
	}
}

// consensusAddress is the M-of-N multisig account over the validator set,
// the value block headers commit to as next_consensus.
func consensusAddress(validators []ECPoint) (U160, error) {
	m := len(validators) - (len(validators)-1)/3
	return ScriptHashForMultisig(m, validators)
}
