// SPDX-License-Identifier: BUSL-1.1
//
// Block/transaction/witness data model: fixed-field structs with a
// hand-written binary Serialize/Deserialize pair per type over the
// BinaryWriter/BinaryReader helpers.
package core

import (
	"bytes"
	"fmt"
)

// Ledger-wide size and count limits.
const (
	MaxTransactionSize          = 2 * 1024 * 1024
	MaxAttributes                = 16
	MaxTransactionsPerBlock      = 65536
	MaxBlockSize                 = 2 * 1024 * 1024
	MaxValidUntilBlockIncrement  = 5760
	MaxTraceableBlocks           = 2_102_400
)

// WitnessScope bounds which contracts may consume a signer's authorization.
type WitnessScope byte

const (
	ScopeNone            WitnessScope = 0x00
	ScopeCalledByEntry    WitnessScope = 0x01
	ScopeCustomContracts  WitnessScope = 0x10
	ScopeCustomGroups     WitnessScope = 0x20
	ScopeGlobal           WitnessScope = 0x80
)

// Signer binds an account to the scope of contracts it authorizes.
type Signer struct {
	Account          U160
	Scopes           WitnessScope
	AllowedContracts []U160
	AllowedGroups    []BLSPublicKeyBytes // raw compressed group public keys
	Rules            []WitnessRule
}

// WitnessRule is a manifest-driven condition gating CustomGroups/boolean
// composition; left uninterpreted beyond storage at this layer. The scope
// check itself lives at the engine layer, see engine_witness.go.
type WitnessRule struct {
	Action    byte // 0 = Deny, 1 = Allow
	Condition []byte
}

// BLSPublicKeyBytes is a placeholder alias kept distinct from []byte so
// Signer.AllowedGroups reads as "group public keys", not arbitrary bytes.
type BLSPublicKeyBytes = []byte

// AttributeType tags the variant carried by a Transaction's attribute list.
type AttributeType byte

const (
	AttrHighPriority    AttributeType = 0x01
	AttrOracleResponse  AttributeType = 0x11
	AttrNotValidBefore  AttributeType = 0x20
	AttrConflicts       AttributeType = 0x21
	AttrNotaryAssisted  AttributeType = 0x22
)

// OracleResponseCode mirrors the reference protocol's oracle result codes.
type OracleResponseCode byte

const (
	OracleSuccess          OracleResponseCode = 0x00
	OracleProtocolError    OracleResponseCode = 0x10
	OracleConsensusUnreachable OracleResponseCode = 0x12
	OracleNotFound         OracleResponseCode = 0x14
	OracleTimeout          OracleResponseCode = 0x16
	OracleForbidden        OracleResponseCode = 0x18
	OracleResponseTooLarge OracleResponseCode = 0x1a
	OracleInsufficientFunds OracleResponseCode = 0x1c
	OracleContentTypeNotSupported OracleResponseCode = 0x1f
	OracleError            OracleResponseCode = 0xff
)

// Attribute is a tagged transaction attribute.
type Attribute struct {
	Type AttributeType

	// OracleResponse fields.
	OracleID     uint64
	OracleCode   OracleResponseCode
	OracleResult []byte

	// NotValidBefore field.
	Height uint32

	// Conflicts field.
	ConflictHash U256

	// NotaryAssisted field.
	NKeys uint8
}

func (a *Attribute) serialize(bw *BinaryWriter) {
	bw.WriteU8(byte(a.Type))
	switch a.Type {
	case AttrHighPriority:
	case AttrOracleResponse:
		bw.WriteU64(a.OracleID)
		bw.WriteU8(byte(a.OracleCode))
		bw.WriteVarBytes(a.OracleResult)
	case AttrNotValidBefore:
		bw.WriteU32(a.Height)
	case AttrConflicts:
		bw.WriteU256(a.ConflictHash)
	case AttrNotaryAssisted:
		bw.WriteU8(a.NKeys)
	}
}

func deserializeAttribute(br *BinaryReader) (Attribute, error) {
	var a Attribute
	a.Type = AttributeType(br.ReadU8())
	switch a.Type {
	case AttrHighPriority:
	case AttrOracleResponse:
		a.OracleID = br.ReadU64()
		a.OracleCode = OracleResponseCode(br.ReadU8())
		a.OracleResult = br.ReadVarBytes(MaxItemSize)
	case AttrNotValidBefore:
		a.Height = br.ReadU32()
	case AttrConflicts:
		a.ConflictHash = br.ReadU256()
	case AttrNotaryAssisted:
		a.NKeys = br.ReadU8()
	default:
		return a, fmt.Errorf("attribute: unknown type 0x%02x", byte(a.Type))
	}
	return a, br.Err()
}

// Witness is the (invocation_script, verification_script) pair that proves a
// signer's authorization.
type Witness struct {
	InvocationScript   []byte
	VerificationScript []byte
}

// ScriptHash is H160(verification_script), the account a witness proves
// authorization for.
func (w Witness) ScriptHash() U160 { return H160(w.VerificationScript) }

func (w *Witness) serialize(bw *BinaryWriter) {
	bw.WriteVarBytes(w.InvocationScript)
	bw.WriteVarBytes(w.VerificationScript)
}

func deserializeWitness(br *BinaryReader) (Witness, error) {
	var w Witness
	w.InvocationScript = br.ReadVarBytes(65536)
	w.VerificationScript = br.ReadVarBytes(65536)
	return w, br.Err()
}

func (s *Signer) serialize(bw *BinaryWriter) {
	bw.WriteU160(s.Account)
	bw.WriteU8(byte(s.Scopes))
	if s.Scopes&ScopeCustomContracts != 0 {
		bw.WriteVarInt(uint64(len(s.AllowedContracts)))
		for _, c := range s.AllowedContracts {
			bw.WriteU160(c)
		}
	}
	if s.Scopes&ScopeCustomGroups != 0 {
		bw.WriteVarInt(uint64(len(s.AllowedGroups)))
		for _, g := range s.AllowedGroups {
			bw.WriteVarBytes(g)
		}
	}
	if s.Scopes&ScopeCustomGroups != 0 { // rules ride alongside the custom-groups scope
		bw.WriteVarInt(uint64(len(s.Rules)))
		for _, r := range s.Rules {
			bw.WriteU8(r.Action)
			bw.WriteVarBytes(r.Condition)
		}
	}
}

func deserializeSigner(br *BinaryReader) (Signer, error) {
	var s Signer
	s.Account = br.ReadU160()
	s.Scopes = WitnessScope(br.ReadU8())
	if s.Scopes&ScopeCustomContracts != 0 {
		ReadArray(br, 16, func() { s.AllowedContracts = append(s.AllowedContracts, br.ReadU160()) })
	}
	if s.Scopes&ScopeCustomGroups != 0 {
		ReadArray(br, 16, func() { s.AllowedGroups = append(s.AllowedGroups, br.ReadVarBytes(128)) })
		ReadArray(br, 16, func() {
			var r WitnessRule
			r.Action = br.ReadU8()
			r.Condition = br.ReadVarBytes(65536)
			s.Rules = append(s.Rules, r)
		})
	}
	return s, br.Err()
}

// Transaction is a signed, gas-metered script invocation.
type Transaction struct {
	Version         uint8
	Nonce           uint32
	SystemFee       int64
	NetworkFee      int64
	ValidUntilBlock uint32
	Signers         []Signer
	Attributes      []Attribute
	Script          []byte
	Witnesses       []Witness
}

// Validate checks the structural invariants required
// independent of chain state.
func (tx *Transaction) Validate() error {
	if tx.SystemFee < 0 {
		return fmt.Errorf("tx: negative system_fee")
	}
	if tx.NetworkFee < 0 {
		return fmt.Errorf("tx: negative network_fee")
	}
	if len(tx.Script) == 0 || len(tx.Script) > MaxScriptLength {
		return fmt.Errorf("tx: script length %d out of bounds", len(tx.Script))
	}
	if len(tx.Signers) == 0 {
		return fmt.Errorf("tx: no signers")
	}
	seen := make(map[U160]bool, len(tx.Signers))
	for _, s := range tx.Signers {
		if seen[s.Account] {
			return fmt.Errorf("tx: duplicate signer %s", s.Account)
		}
		seen[s.Account] = true
	}
	if len(tx.Witnesses) != len(tx.Signers) {
		return fmt.Errorf("tx: %d witnesses for %d signers", len(tx.Witnesses), len(tx.Signers))
	}
	if len(tx.Attributes) > MaxAttributes {
		return fmt.Errorf("tx: %d attributes exceeds MaxAttributes", len(tx.Attributes))
	}
	size, err := tx.Size()
	if err != nil {
		return err
	}
	if size > MaxTransactionSize {
		return fmt.Errorf("tx: serialized size %d exceeds MaxTransactionSize", size)
	}
	return nil
}

// serializeUnsigned writes every field except Witnesses, the payload that
// Hash is computed over.
func (tx *Transaction) serializeUnsigned(bw *BinaryWriter) {
	bw.WriteU8(tx.Version)
	bw.WriteU32(tx.Nonce)
	bw.WriteI64(tx.SystemFee)
	bw.WriteI64(tx.NetworkFee)
	bw.WriteU32(tx.ValidUntilBlock)
	bw.WriteVarInt(uint64(len(tx.Signers)))
	for i := range tx.Signers {
		tx.Signers[i].serialize(bw)
	}
	bw.WriteVarInt(uint64(len(tx.Attributes)))
	for i := range tx.Attributes {
		tx.Attributes[i].serialize(bw)
	}
	bw.WriteVarBytes(tx.Script)
}

// Hash returns H256 of the unsigned encoding; unaffected by witness mutation.
func (tx *Transaction) Hash() U256 {
	var buf bytes.Buffer
	tx.serializeUnsigned(NewBinaryWriter(&buf))
	return H256(buf.Bytes())
}

// Serialize encodes the full transaction, including witnesses.
func (tx *Transaction) Serialize() ([]byte, error) {
	var buf bytes.Buffer
	bw := NewBinaryWriter(&buf)
	tx.serializeUnsigned(bw)
	bw.WriteVarInt(uint64(len(tx.Witnesses)))
	for i := range tx.Witnesses {
		tx.Witnesses[i].serialize(bw)
	}
	if bw.Err() != nil {
		return nil, bw.Err()
	}
	return buf.Bytes(), nil
}

// Size returns the serialized byte length, used for fee-per-byte and the
// MaxTransactionSize check.
func (tx *Transaction) Size() (int, error) {
	b, err := tx.Serialize()
	if err != nil {
		return 0, err
	}
	return len(b), nil
}

// DeserializeTransaction decodes a full transaction.
func DeserializeTransaction(data []byte) (*Transaction, error) {
	br := NewBinaryReader(bytes.NewReader(data))
	tx := &Transaction{}
	tx.Version = br.ReadU8()
	tx.Nonce = br.ReadU32()
	tx.SystemFee = br.ReadI64()
	tx.NetworkFee = br.ReadI64()
	tx.ValidUntilBlock = br.ReadU32()
	ReadArray(br, 16, func() {
		s, err := deserializeSigner(br)
		if err != nil {
			return
		}
		tx.Signers = append(tx.Signers, s)
	})
	ReadArray(br, MaxAttributes, func() {
		a, err := deserializeAttribute(br)
		if err != nil {
			return
		}
		tx.Attributes = append(tx.Attributes, a)
	})
	tx.Script = br.ReadVarBytes(MaxScriptLength)
	ReadArray(br, 16, func() {
		w, err := deserializeWitness(br)
		if err != nil {
			return
		}
		tx.Witnesses = append(tx.Witnesses, w)
	})
	if br.Err() != nil {
		return nil, br.Err()
	}
	if err := tx.Validate(); err != nil {
		return nil, err
	}
	return tx, nil
}

// FeePerByte is the mempool priority key: (system_fee + network_fee) /
// serialized_size(tx).
func (tx *Transaction) FeePerByte() (int64, error) {
	size, err := tx.Size()
	if err != nil {
		return 0, err
	}
	if size == 0 {
		return 0, fmt.Errorf("tx: zero size")
	}
	return (tx.SystemFee + tx.NetworkFee) / int64(size), nil
}

// ConflictHashes returns the hashes named by tx's Conflicts attributes.
func (tx *Transaction) ConflictHashes() []U256 {
	var out []U256
	for _, a := range tx.Attributes {
		if a.Type == AttrConflicts {
			out = append(out, a.ConflictHash)
		}
	}
	return out
}

// HasHighPriority reports whether the tx carries the HighPriority attribute.
func (tx *Transaction) HasHighPriority() bool {
	for _, a := range tx.Attributes {
		if a.Type == AttrHighPriority {
			return true
		}
	}
	return false
}

// BlockHeader is the fixed-size, witness-sealed header of a Block.
type BlockHeader struct {
	Version        uint32
	PrevHash       U256
	MerkleRoot     U256
	TimestampMS    uint64
	Nonce          uint64
	Index          uint32
	PrimaryIndex   uint8
	NextConsensus  U160
	Witness        Witness
}

func (h *BlockHeader) serializeUnsigned(bw *BinaryWriter) {
	bw.WriteU32(h.Version)
	bw.WriteU256(h.PrevHash)
	bw.WriteU256(h.MerkleRoot)
	bw.WriteU64(h.TimestampMS)
	bw.WriteU64(h.Nonce)
	bw.WriteU32(h.Index)
	bw.WriteU8(h.PrimaryIndex)
	bw.WriteU160(h.NextConsensus)
}

// Hash is H256 of every field except the witness.
func (h *BlockHeader) Hash() U256 {
	var buf bytes.Buffer
	h.serializeUnsigned(NewBinaryWriter(&buf))
	return H256(buf.Bytes())
}

// Serialize encodes the full header including its witness.
func (h *BlockHeader) Serialize() ([]byte, error) {
	var buf bytes.Buffer
	bw := NewBinaryWriter(&buf)
	h.serializeUnsigned(bw)
	bw.WriteVarInt(1) // a header always carries exactly one witness
	h.Witness.serialize(bw)
	if bw.Err() != nil {
		return nil, bw.Err()
	}
	return buf.Bytes(), nil
}

// DeserializeBlockHeader decodes a header including its trailing witness.
func DeserializeBlockHeader(data []byte) (*BlockHeader, error) {
	br := NewBinaryReader(bytes.NewReader(data))
	h := &BlockHeader{}
	h.Version = br.ReadU32()
	h.PrevHash = br.ReadU256()
	h.MerkleRoot = br.ReadU256()
	h.TimestampMS = br.ReadU64()
	h.Nonce = br.ReadU64()
	h.Index = br.ReadU32()
	h.PrimaryIndex = br.ReadU8()
	h.NextConsensus = br.ReadU160()
	n := br.ReadVarInt()
	if n != 1 {
		return nil, fmt.Errorf("header: expected exactly one witness, got %d", n)
	}
	w, err := deserializeWitness(br)
	if err != nil {
		return nil, err
	}
	h.Witness = w
	if br.Err() != nil {
		return nil, br.Err()
	}
	return h, nil
}

// Block pairs a header with its ordered transaction list.
type Block struct {
	Header       BlockHeader
	Transactions []*Transaction
}

// Validate checks every structural invariant required
// independent of chain state (that check belongs to the blockchain applier,
// ledger_blockchain.go).
func (b *Block) Validate() error {
	if len(b.Transactions) > MaxTransactionsPerBlock {
		return fmt.Errorf("block: %d transactions exceeds MaxTransactionsPerBlock", len(b.Transactions))
	}
	seen := make(map[U256]bool, len(b.Transactions))
	hashes := make([]U256, len(b.Transactions))
	for i, tx := range b.Transactions {
		h := tx.Hash()
		if seen[h] {
			return fmt.Errorf("block: duplicate transaction %s", h)
		}
		seen[h] = true
		hashes[i] = h
		if tx.ValidUntilBlock < b.Header.Index || tx.ValidUntilBlock > b.Header.Index+MaxValidUntilBlockIncrement {
			return fmt.Errorf("block: tx %s valid_until_block out of window", h)
		}
		for _, c := range tx.ConflictHashes() {
			if seen[c] {
				return fmt.Errorf("block: tx %s conflicts with co-included tx %s", h, c)
			}
		}
	}
	want := U256Zero
	if len(hashes) > 0 {
		root, err := MerkleRoot(hashes)
		if err != nil {
			return err
		}
		want = root
	}
	if b.Header.MerkleRoot != want {
		return fmt.Errorf("block: merkle root mismatch")
	}
	size, err := b.Size()
	if err != nil {
		return err
	}
	if size > MaxBlockSize {
		return fmt.Errorf("block: serialized size %d exceeds MaxBlockSize", size)
	}
	return nil
}

// Serialize encodes the header then every transaction in order, each with
// its witnesses.
func (b *Block) Serialize() ([]byte, error) {
	hb, err := b.Header.Serialize()
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.Write(hb)
	bw := NewBinaryWriter(&buf)
	bw.WriteVarInt(uint64(len(b.Transactions)))
	if bw.Err() != nil {
		return nil, bw.Err()
	}
	for _, tx := range b.Transactions {
		txb, err := tx.Serialize()
		if err != nil {
			return nil, err
		}
		buf.Write(txb)
	}
	return buf.Bytes(), nil
}

// Size returns the serialized byte length used for the MaxBlockSize check.
func (b *Block) Size() (int, error) {
	raw, err := b.Serialize()
	if err != nil {
		return 0, err
	}
	return len(raw), nil
}

// Hash is the block header's hash.
func (b *Block) Hash() U256 { return b.Header.Hash() }

// IsGenesis reports whether b is the chain's first block.
func (b *Block) IsGenesis() bool {
	return b.Header.Index == 0 && b.Header.PrevHash == U256Zero
}

// StorageKey addresses a single entry in a contract's storage namespace
// encoded as contract_id (big-endian i32) followed by the raw key.
type StorageKey struct {
	ContractID int32
	Key        []byte
}

// Encode renders the big-endian-contract-id-prefixed wire key used both as
// the in-VM StorageContext key and the backing Store's literal key, after
// prepending the namespace prefix storage records live under.
func (k StorageKey) Encode() []byte {
	out := make([]byte, 4+len(k.Key))
	out[0] = byte(k.ContractID >> 24)
	out[1] = byte(k.ContractID >> 16)
	out[2] = byte(k.ContractID >> 8)
	out[3] = byte(k.ContractID)
	copy(out[4:], k.Key)
	return out
}

// StorageItem is the value half of a storage entry; kept as a distinct type
// (rather than a bare []byte) so natives can attach Go-level meaning (e.g.
// "this value is a BigInteger balance") without the storage layer caring.
type StorageItem struct {
	Value []byte
}

// MempoolEntry is one admitted transaction plus its ordering key.
type MempoolEntry struct {
	Tx            *Transaction
	InsertionTime int64 // unix milliseconds, supplied by the caller (no Date.now/time.Now in core)
	FeePerByte    int64
}
