// SPDX-License-Identifier: BUSL-1.1
//
// NeoToken: the governance token. Balances carry vote state and
// a last-update height so GAS accrues lazily on every balance change, the
// way the reference protocol distributes generation without a per-block
// sweep over all holders. Committee election is vote-weighted over the
// registered-candidate set; with too few voted candidates the standby
// committee is used as a whole.
package core

import (
	"bytes"
	"fmt"
	"math/big"
)

var (
	neoKeyCommittee   = []byte{0x0E}
	neoKeyGasPerBlock = []byte{0x29}
	neoPrefixCandidate = []byte{0x21}
)

// NeoAccountState is the per-account record: balance, the height the
// balance last changed (GAS accrual floor), and the candidate voted for.
type NeoAccountState struct {
	Balance       *big.Int
	BalanceHeight uint32
	VoteTo        []byte // compressed key, empty when not voting
}

func (s *NeoAccountState) serialize() []byte {
	var buf bytes.Buffer
	bw := NewBinaryWriter(&buf)
	bw.WriteVarBytes(signedIntToBytes(s.Balance))
	bw.WriteU32(s.BalanceHeight)
	bw.WriteVarBytes(s.VoteTo)
	return buf.Bytes()
}

func deserializeNeoAccount(raw []byte) *NeoAccountState {
	br := NewBinaryReader(bytes.NewReader(raw))
	s := &NeoAccountState{}
	s.Balance = bytesToSignedInt(br.ReadVarBytes(33))
	s.BalanceHeight = br.ReadU32()
	s.VoteTo = br.ReadVarBytes(33)
	if br.Err() != nil {
		return &NeoAccountState{Balance: new(big.Int)}
	}
	return s
}

// NeoToken is the governance native: NEP-17 balances plus candidate
// registration, voting and committee/validator selection.
type NeoToken struct {
	*NativeContract
	token *tokenState
	cfg   *ProtocolConfig
	gas   *GasToken // bound by the registry after construction
}

// NewNeoToken builds the NEO native for cfg's committee parameters.
func NewNeoToken(cfg *ProtocolConfig) *NeoToken {
	n := &NeoToken{
		NativeContract: newNativeContract(NativeIDNeoToken, "NeoToken"),
		cfg:            cfg,
	}
	n.token = &tokenState{
		contractID: NativeIDNeoToken,
		symbol:     "NEO",
		decimals:   2,
		decodeBalance: func(raw []byte) *big.Int {
			return deserializeNeoAccount(raw).Balance
		},
		updateBalance: func(prev []byte, v *big.Int) []byte {
			st := &NeoAccountState{Balance: new(big.Int)}
			if prev != nil {
				st = deserializeNeoAccount(prev)
			}
			st.Balance = v
			if v.Sign() == 0 && len(st.VoteTo) == 0 {
				return nil
			}
			return st.serialize()
		},
	}
	registerTokenMethods(n.NativeContract, n.token, n.handleTransfer)
	n.registerGovernanceMethods()
	n.initialize = n.initializeContract
	n.onPersist = n.onPersistHook
	n.postPersist = n.postPersistHook
	return n
}

func (n *NeoToken) bindGas(g *GasToken) { n.gas = g }

// TotalSupplyUnits is NEO's full supply in token fractions.
func (n *NeoToken) TotalSupplyUnits() *big.Int {
	supply := big.NewInt(100_000_000)
	for i := 0; i < n.token.decimals; i++ {
		supply.Mul(supply, big.NewInt(10))
	}
	return supply
}

func (n *NeoToken) initializeContract(e *ApplicationEngine) error {
	committee, err := n.cfg.CommitteeAddress()
	if err != nil {
		return err
	}
	n.storeCommittee(e.Snapshot, n.cfg.StandbyCommittee)
	nativePut(e.Snapshot, n.ID, neoKeyGasPerBlock, signedIntToBytes(big.NewInt(n.cfg.GasPerBlock)))
	return n.token.mint(e, n.Hash, committee, n.TotalSupplyUnits(), n.accrueGasHook)
}

// handleTransfer is the NEP-17 transfer entry: (from, to, amount, data).
func (n *NeoToken) handleTransfer(e *ApplicationEngine, args []*StackItem) (*StackItem, error) {
	from, err := popU160(args[0])
	if err != nil {
		return nil, newFault("transfer: %v", err)
	}
	to, err := popU160(args[1])
	if err != nil {
		return nil, newFault("transfer: %v", err)
	}
	amount, err := args[2].Int()
	if err != nil {
		return nil, newFault("transfer: %v", err)
	}
	ok, err := n.token.transfer(e, n.Hash, from, to, amount, n.accrueGasHook)
	if err != nil {
		return nil, err
	}
	if ok {
		// A balance move shifts voting weight between candidates.
		if err := n.moveVoteWeight(e.Snapshot, from, to, amount); err != nil {
			return nil, err
		}
	}
	return NewBoolItem(ok), nil
}

// accrueGasHook mints the GAS an account has earned since its balance last
// changed, then advances the accrual floor.
func (n *NeoToken) accrueGasHook(e *ApplicationEngine, account U160) error {
	raw, ok := nativeGet(e.Snapshot, n.ID, accountKey(account))
	if !ok {
		return nil
	}
	st := deserializeNeoAccount(raw)
	earned := n.calculateBonus(e.Snapshot, st.Balance, st.BalanceHeight, e.currentHeight)
	st.BalanceHeight = e.currentHeight
	nativePut(e.Snapshot, n.ID, accountKey(account), st.serialize())
	if earned.Sign() > 0 && n.gas != nil {
		return n.gas.Mint(e, account, earned)
	}
	return nil
}

// calculateBonus is the generation formula: balance x gasPerBlock x blocks
// elapsed, pro-rated over total supply, in integer arithmetic.
func (n *NeoToken) calculateBonus(snap *Snapshot, balance *big.Int, start, end uint32) *big.Int {
	if balance.Sign() <= 0 || end <= start {
		return new(big.Int)
	}
	blocks := new(big.Int).SetUint64(uint64(end - start))
	out := new(big.Int).Mul(balance, n.gasPerBlock(snap))
	out.Mul(out, blocks)
	return out.Div(out, n.TotalSupplyUnits())
}

func (n *NeoToken) gasPerBlock(snap *Snapshot) *big.Int {
	raw, ok := nativeGet(snap, n.ID, neoKeyGasPerBlock)
	if !ok {
		return big.NewInt(n.cfg.GasPerBlock)
	}
	return bytesToSignedInt(raw)
}

// candidate is one registered validator candidate with its vote tally.
type candidate struct {
	Key   ECPoint
	Votes *big.Int
}

func candidateKey(pub []byte) []byte {
	return append(append([]byte{}, neoPrefixCandidate...), pub...)
}

func (n *NeoToken) candidates(snap *Snapshot) []candidate {
	var out []candidate
	for _, kv := range nativeSeek(snap, n.ID, neoPrefixCandidate) {
		rawKey := kv.Key[len(kv.Key)-33:]
		p, err := ParseCompressedECPoint(rawKey)
		if err != nil {
			continue
		}
		out = append(out, candidate{Key: p, Votes: bytesToSignedInt(kv.Value)})
	}
	return out
}

func (n *NeoToken) adjustCandidateVotes(snap *Snapshot, pub []byte, delta *big.Int) {
	raw, ok := nativeGet(snap, n.ID, candidateKey(pub))
	if !ok {
		return // unregistered candidates accumulate nothing
	}
	votes := bytesToSignedInt(raw)
	votes.Add(votes, delta)
	nativePut(snap, n.ID, candidateKey(pub), signedIntToBytes(votes))
}

// moveVoteWeight rebalances candidate tallies after amount moved from one
// account to the other.
func (n *NeoToken) moveVoteWeight(snap *Snapshot, from, to U160, amount *big.Int) error {
	if amount.Sign() == 0 || from == to {
		return nil
	}
	if raw, ok := nativeGet(snap, n.ID, accountKey(from)); ok {
		st := deserializeNeoAccount(raw)
		if len(st.VoteTo) > 0 {
			n.adjustCandidateVotes(snap, st.VoteTo, new(big.Int).Neg(amount))
		}
	}
	if raw, ok := nativeGet(snap, n.ID, accountKey(to)); ok {
		st := deserializeNeoAccount(raw)
		if len(st.VoteTo) > 0 {
			n.adjustCandidateVotes(snap, st.VoteTo, amount)
		}
	}
	return nil
}

func (n *NeoToken) registerGovernanceMethods() {
	n.register(&NativeMethod{
		Name: "unclaimedGas", ParamCount: 2, RequiredFlags: CallFlagReadStates, Price: 1 << 17,
		Handler: func(e *ApplicationEngine, args []*StackItem) (*StackItem, error) {
			account, err := popU160(args[0])
			if err != nil {
				return nil, newFault("unclaimedGas: %v", err)
			}
			endInt, err := args[1].Int()
			if err != nil {
				return nil, newFault("unclaimedGas: %v", err)
			}
			raw, ok := nativeGet(e.Snapshot, n.ID, accountKey(account))
			if !ok {
				return NewIntItemInt64(0), nil
			}
			st := deserializeNeoAccount(raw)
			return NewIntItem(n.calculateBonus(e.Snapshot, st.Balance, st.BalanceHeight, uint32(endInt.Uint64()))), nil
		},
	})
	n.register(&NativeMethod{
		Name: "registerCandidate", ParamCount: 1, RequiredFlags: CallFlagStates, Price: 1 << 20,
		Handler: func(e *ApplicationEngine, args []*StackItem) (*StackItem, error) {
			pub, err := args[0].Bytes()
			if err != nil {
				return nil, newFault("registerCandidate: %v", err)
			}
			p, err := ParseCompressedECPoint(pub)
			if err != nil {
				return nil, newFault("registerCandidate: %v", err)
			}
			ok, err := e.CheckWitness(p.ScriptHash())
			if err != nil {
				return nil, err
			}
			if !ok {
				return NewBoolItem(false), nil
			}
			if _, exists := nativeGet(e.Snapshot, n.ID, candidateKey(pub)); !exists {
				nativePut(e.Snapshot, n.ID, candidateKey(pub), signedIntToBytes(new(big.Int)))
			}
			return NewBoolItem(true), nil
		},
	})
	n.register(&NativeMethod{
		Name: "unregisterCandidate", ParamCount: 1, RequiredFlags: CallFlagStates, Price: 1 << 17,
		Handler: func(e *ApplicationEngine, args []*StackItem) (*StackItem, error) {
			pub, err := args[0].Bytes()
			if err != nil {
				return nil, newFault("unregisterCandidate: %v", err)
			}
			p, err := ParseCompressedECPoint(pub)
			if err != nil {
				return nil, newFault("unregisterCandidate: %v", err)
			}
			ok, err := e.CheckWitness(p.ScriptHash())
			if err != nil {
				return nil, err
			}
			if !ok {
				return NewBoolItem(false), nil
			}
			nativeDelete(e.Snapshot, n.ID, candidateKey(pub))
			return NewBoolItem(true), nil
		},
	})
	n.register(&NativeMethod{
		Name: "vote", ParamCount: 2, RequiredFlags: CallFlagStates, Price: 1 << 20,
		Handler: n.handleVote,
	})
	n.register(&NativeMethod{
		Name: "getCandidates", ParamCount: 0, RequiredFlags: CallFlagReadStates, Price: 1 << 17,
		Handler: func(e *ApplicationEngine, _ []*StackItem) (*StackItem, error) {
			cands := n.candidates(e.Snapshot)
			sortCandidates(cands)
			items := make([]*StackItem, len(cands))
			for i, c := range cands {
				items[i] = NewStructItem([]*StackItem{
					NewByteStringItem(c.Key.CompressedBytes()),
					NewIntItem(c.Votes),
				})
			}
			return NewArrayItem(items), nil
		},
	})
	n.register(&NativeMethod{
		Name: "getCommittee", ParamCount: 0, RequiredFlags: CallFlagReadStates, Price: 1 << 17,
		Handler: func(e *ApplicationEngine, _ []*StackItem) (*StackItem, error) {
			return pointListItem(n.Committee(e.Snapshot)), nil
		},
	})
	n.register(&NativeMethod{
		Name: "getNextBlockValidators", ParamCount: 0, RequiredFlags: CallFlagReadStates, Price: 1 << 17,
		Handler: func(e *ApplicationEngine, _ []*StackItem) (*StackItem, error) {
			return pointListItem(n.NextBlockValidators(e.Snapshot)), nil
		},
	})
	n.register(&NativeMethod{
		Name: "getGasPerBlock", ParamCount: 0, RequiredFlags: CallFlagReadStates, Price: 1 << 15,
		Handler: func(e *ApplicationEngine, _ []*StackItem) (*StackItem, error) {
			return NewIntItem(n.gasPerBlock(e.Snapshot)), nil
		},
	})
	n.register(&NativeMethod{
		Name: "setGasPerBlock", ParamCount: 1, RequiredFlags: CallFlagStates, Price: 1 << 15,
		Handler: func(e *ApplicationEngine, args []*StackItem) (*StackItem, error) {
			v, err := args[0].Int()
			if err != nil {
				return nil, newFault("setGasPerBlock: %v", err)
			}
			if v.Sign() < 0 || v.Cmp(big.NewInt(10*gasFactor)) > 0 {
				return nil, newFault("setGasPerBlock: value out of range")
			}
			if err := n.checkCommittee(e); err != nil {
				return nil, err
			}
			nativePut(e.Snapshot, n.ID, neoKeyGasPerBlock, signedIntToBytes(v))
			return nil, nil
		},
	})
}

func (n *NeoToken) handleVote(e *ApplicationEngine, args []*StackItem) (*StackItem, error) {
	account, err := popU160(args[0])
	if err != nil {
		return nil, newFault("vote: %v", err)
	}
	var voteTo []byte
	if !args[1].IsNull() {
		voteTo, err = args[1].Bytes()
		if err != nil {
			return nil, newFault("vote: %v", err)
		}
		if _, registered := nativeGet(e.Snapshot, n.ID, candidateKey(voteTo)); !registered {
			return NewBoolItem(false), nil
		}
	}
	ok, err := e.CheckWitness(account)
	if err != nil {
		return nil, err
	}
	if !ok {
		return NewBoolItem(false), nil
	}
	raw, exists := nativeGet(e.Snapshot, n.ID, accountKey(account))
	if !exists {
		return NewBoolItem(false), nil
	}
	st := deserializeNeoAccount(raw)
	if len(st.VoteTo) > 0 {
		n.adjustCandidateVotes(e.Snapshot, st.VoteTo, new(big.Int).Neg(st.Balance))
	}
	if len(voteTo) > 0 {
		n.adjustCandidateVotes(e.Snapshot, voteTo, st.Balance)
	}
	st.VoteTo = voteTo
	nativePut(e.Snapshot, n.ID, accountKey(account), st.serialize())
	if err := e.notify(n.Hash, "Vote", NewArrayItem([]*StackItem{
		NewByteStringItem(account.Bytes()),
		voteItem(voteTo),
	})); err != nil {
		return nil, err
	}
	return NewBoolItem(true), nil
}

func voteItem(voteTo []byte) *StackItem {
	if len(voteTo) == 0 {
		return NewNullItem()
	}
	return NewByteStringItem(voteTo)
}

// checkCommittee faults unless the committee multisig witnessed the
// container.
func (n *NeoToken) checkCommittee(e *ApplicationEngine) error {
	addr, err := n.cfg.CommitteeAddress()
	if err != nil {
		return err
	}
	ok, err := e.CheckWitness(addr)
	if err != nil {
		return err
	}
	if !ok {
		return newFault("committee witness required")
	}
	return nil
}

// Committee returns the stored elected committee, falling back to standby.
func (n *NeoToken) Committee(snap *Snapshot) []ECPoint {
	raw, ok := nativeGet(snap, n.ID, neoKeyCommittee)
	if !ok {
		return n.cfg.StandbyCommittee
	}
	pts, err := deserializePointList(raw)
	if err != nil || len(pts) == 0 {
		return n.cfg.StandbyCommittee
	}
	return pts
}

// NextBlockValidators is the validator subset of the committee.
func (n *NeoToken) NextBlockValidators(snap *Snapshot) []ECPoint {
	committee := n.Committee(snap)
	if len(committee) < n.cfg.ValidatorsCount {
		return n.cfg.StandbyValidators()
	}
	out := make([]ECPoint, n.cfg.ValidatorsCount)
	copy(out, committee[:n.cfg.ValidatorsCount])
	return out
}

func (n *NeoToken) storeCommittee(snap *Snapshot, pts []ECPoint) {
	nativePut(snap, n.ID, neoKeyCommittee, serializePointList(pts))
}

// computeCommittee re-elects the committee from the candidate tallies.
// When fewer candidates than committee seats hold votes it returns the
// standby committee unchanged; candidates and standby members are not mixed.
func (n *NeoToken) computeCommittee(snap *Snapshot) []ECPoint {
	cands := n.candidates(snap)
	voted := cands[:0]
	for _, c := range cands {
		if c.Votes.Sign() > 0 {
			voted = append(voted, c)
		}
	}
	size := n.cfg.CommitteeSize()
	if len(voted) < size {
		return n.cfg.StandbyCommittee
	}
	sortCandidates(voted)
	out := make([]ECPoint, size)
	for i := 0; i < size; i++ {
		out[i] = voted[i].Key
	}
	return out
}

// onPersistHook refreshes the committee at every committee-length boundary.
func (n *NeoToken) onPersistHook(e *ApplicationEngine) error {
	if e.PersistingBlock == nil {
		return nil
	}
	size := uint32(n.cfg.CommitteeSize())
	if e.PersistingBlock.Header.Index%size != 0 {
		return nil
	}
	n.storeCommittee(e.Snapshot, n.computeCommittee(e.Snapshot))
	return nil
}

// postPersistHook pays the per-block committee reward: 10% of the block's
// generation, to committee members round-robin by block index.
func (n *NeoToken) postPersistHook(e *ApplicationEngine) error {
	if e.PersistingBlock == nil || n.gas == nil {
		return nil
	}
	committee := n.Committee(e.Snapshot)
	if len(committee) == 0 {
		return nil
	}
	member := committee[int(e.PersistingBlock.Header.Index)%len(committee)]
	reward := new(big.Int).Div(n.gasPerBlock(e.Snapshot), big.NewInt(10))
	if reward.Sign() <= 0 {
		return nil
	}
	return n.gas.Mint(e, member.ScriptHash(), reward)
}

func serializePointList(pts []ECPoint) []byte {
	var buf bytes.Buffer
	bw := NewBinaryWriter(&buf)
	bw.WriteVarInt(uint64(len(pts)))
	for _, p := range pts {
		bw.WriteVarBytes(p.CompressedBytes())
	}
	return buf.Bytes()
}

func deserializePointList(raw []byte) ([]ECPoint, error) {
	br := NewBinaryReader(bytes.NewReader(raw))
	var out []ECPoint
	var parseErr error
	ReadArray(br, 1024, func() {
		p, err := ParseCompressedECPoint(br.ReadVarBytes(33))
		if err != nil {
			parseErr = err
			return
		}
		out = append(out, p)
	})
	if parseErr != nil {
		return nil, parseErr
	}
	if br.Err() != nil {
		return nil, fmt.Errorf("point list: %w", br.Err())
	}
	return out, nil
}

func pointListItem(pts []ECPoint) *StackItem {
	items := make([]*StackItem, len(pts))
	for i, p := range pts {
		items[i] = NewByteStringItem(p.CompressedBytes())
	}
	return NewArrayItem(items)
}
