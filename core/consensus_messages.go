// SPDX-License-Identifier: BUSL-1.1
//
// dBFT message vocabulary. Every message travels inside a
// signed ConsensusPayload envelope; the recovery message bundles raw signed
// envelopes so a catching-up validator replays them through the same
// verification path as live traffic.
package core

import (
	"bytes"
	"crypto/ecdsa"
	"fmt"
)

// ConsensusMessageType tags the payload body.
type ConsensusMessageType byte

const (
	MsgChangeView      ConsensusMessageType = 0x00
	MsgPrepareRequest  ConsensusMessageType = 0x20
	MsgPrepareResponse ConsensusMessageType = 0x21
	MsgCommit          ConsensusMessageType = 0x30
	MsgRecoveryRequest ConsensusMessageType = 0x40
	MsgRecoveryMessage ConsensusMessageType = 0x41
)

func (t ConsensusMessageType) String() string {
	switch t {
	case MsgChangeView:
		return "ChangeView"
	case MsgPrepareRequest:
		return "PrepareRequest"
	case MsgPrepareResponse:
		return "PrepareResponse"
	case MsgCommit:
		return "Commit"
	case MsgRecoveryRequest:
		return "RecoveryRequest"
	case MsgRecoveryMessage:
		return "RecoveryMessage"
	default:
		return fmt.Sprintf("Unknown(0x%02x)", byte(t))
	}
}

// ChangeViewReason diagnoses why a validator wants a new view; reasons
// drive diagnostics and recovery, not correctness.
type ChangeViewReason byte

const (
	CVTimeout               ChangeViewReason = 0x00
	CVChangeAgreement       ChangeViewReason = 0x01
	CVTxNotFound            ChangeViewReason = 0x02
	CVTxRejectedByPolicy    ChangeViewReason = 0x03
	CVTxInvalid             ChangeViewReason = 0x04
	CVBlockRejectedByPolicy ChangeViewReason = 0x05
	CVTxAlreadyExists       ChangeViewReason = 0x06
)

func (r ChangeViewReason) String() string {
	switch r {
	case CVTimeout:
		return "Timeout"
	case CVChangeAgreement:
		return "ChangeAgreement"
	case CVTxNotFound:
		return "TxNotFound"
	case CVTxRejectedByPolicy:
		return "TxRejectedByPolicy"
	case CVTxInvalid:
		return "TxInvalid"
	case CVBlockRejectedByPolicy:
		return "BlockRejectedByPolicy"
	case CVTxAlreadyExists:
		return "TxAlreadyExists"
	default:
		return "Unknown"
	}
}

// ConsensusPayload is the signed envelope every dBFT message rides in.
type ConsensusPayload struct {
	Network        uint32
	BlockIndex     uint32
	ValidatorIndex uint8
	ViewNumber     byte
	Type           ConsensusMessageType
	Data           []byte
	Signature      []byte
}

func (p *ConsensusPayload) serializeUnsigned(bw *BinaryWriter) {
	bw.WriteU32(p.Network)
	bw.WriteU32(p.BlockIndex)
	bw.WriteU8(p.ValidatorIndex)
	bw.WriteU8(p.ViewNumber)
	bw.WriteU8(byte(p.Type))
	bw.WriteVarBytes(p.Data)
}

// Hash identifies the payload; PrepareResponse references the
// PrepareRequest by this hash.
func (p *ConsensusPayload) Hash() U256 {
	var buf bytes.Buffer
	p.serializeUnsigned(NewBinaryWriter(&buf))
	return H256(buf.Bytes())
}

// Sign attaches the sender's signature over the payload hash.
func (p *ConsensusPayload) Sign(priv *ecdsa.PrivateKey) error {
	sig, err := SignMessage(priv, SignData(p.Network, p.Hash()))
	if err != nil {
		return err
	}
	p.Signature = sig
	return nil
}

// VerifySignature checks the envelope against the sender's validator key.
func (p *ConsensusPayload) VerifySignature(pub ECPoint) bool {
	return CheckSig(pub, SignData(p.Network, p.Hash()), p.Signature)
}

// Serialize renders the signed envelope for the wire.
func (p *ConsensusPayload) Serialize() ([]byte, error) {
	var buf bytes.Buffer
	bw := NewBinaryWriter(&buf)
	p.serializeUnsigned(bw)
	bw.WriteVarBytes(p.Signature)
	if bw.Err() != nil {
		return nil, bw.Err()
	}
	return buf.Bytes(), nil
}

// DeserializeConsensusPayload parses a signed envelope.
func DeserializeConsensusPayload(raw []byte) (*ConsensusPayload, error) {
	br := NewBinaryReader(bytes.NewReader(raw))
	p := &ConsensusPayload{}
	p.Network = br.ReadU32()
	p.BlockIndex = br.ReadU32()
	p.ValidatorIndex = br.ReadU8()
	p.ViewNumber = br.ReadU8()
	p.Type = ConsensusMessageType(br.ReadU8())
	p.Data = br.ReadVarBytes(MaxBlockSize)
	p.Signature = br.ReadVarBytes(64)
	if br.Err() != nil {
		return nil, fmt.Errorf("consensus payload: %w", br.Err())
	}
	return p, nil
}

// PrepareRequest is the primary's block proposal.
type PrepareRequest struct {
	Timestamp uint64
	Nonce     uint64
	TxHashes  []U256
}

func (m *PrepareRequest) Serialize() []byte {
	var buf bytes.Buffer
	bw := NewBinaryWriter(&buf)
	bw.WriteU64(m.Timestamp)
	bw.WriteU64(m.Nonce)
	bw.WriteVarInt(uint64(len(m.TxHashes)))
	for _, h := range m.TxHashes {
		bw.WriteU256(h)
	}
	return buf.Bytes()
}

func DeserializePrepareRequest(raw []byte) (*PrepareRequest, error) {
	br := NewBinaryReader(bytes.NewReader(raw))
	m := &PrepareRequest{}
	m.Timestamp = br.ReadU64()
	m.Nonce = br.ReadU64()
	ReadArray(br, MaxTransactionsPerBlock, func() {
		m.TxHashes = append(m.TxHashes, br.ReadU256())
	})
	if br.Err() != nil {
		return nil, br.Err()
	}
	return m, nil
}

// PrepareResponse acknowledges a specific PrepareRequest payload.
type PrepareResponse struct {
	PreparationHash U256
}

func (m *PrepareResponse) Serialize() []byte {
	var buf bytes.Buffer
	NewBinaryWriter(&buf).WriteU256(m.PreparationHash)
	return buf.Bytes()
}

func DeserializePrepareResponse(raw []byte) (*PrepareResponse, error) {
	br := NewBinaryReader(bytes.NewReader(raw))
	m := &PrepareResponse{PreparationHash: br.ReadU256()}
	if br.Err() != nil {
		return nil, br.Err()
	}
	return m, nil
}

// Commit carries the sender's signature over the proposed block header.
type Commit struct {
	Signature []byte
}

func (m *Commit) Serialize() []byte {
	var buf bytes.Buffer
	NewBinaryWriter(&buf).WriteVarBytes(m.Signature)
	return buf.Bytes()
}

func DeserializeCommit(raw []byte) (*Commit, error) {
	br := NewBinaryReader(bytes.NewReader(raw))
	m := &Commit{Signature: br.ReadVarBytes(64)}
	if br.Err() != nil {
		return nil, br.Err()
	}
	if len(m.Signature) != 64 {
		return nil, fmt.Errorf("commit: signature must be 64 bytes")
	}
	return m, nil
}

// ChangeView asks peers to advance to a new view.
type ChangeView struct {
	NewViewNumber byte
	Timestamp     uint64
	Reason        ChangeViewReason
}

func (m *ChangeView) Serialize() []byte {
	var buf bytes.Buffer
	bw := NewBinaryWriter(&buf)
	bw.WriteU8(m.NewViewNumber)
	bw.WriteU64(m.Timestamp)
	bw.WriteU8(byte(m.Reason))
	return buf.Bytes()
}

func DeserializeChangeView(raw []byte) (*ChangeView, error) {
	br := NewBinaryReader(bytes.NewReader(raw))
	m := &ChangeView{}
	m.NewViewNumber = br.ReadU8()
	m.Timestamp = br.ReadU64()
	m.Reason = ChangeViewReason(br.ReadU8())
	if br.Err() != nil {
		return nil, br.Err()
	}
	return m, nil
}

// RecoveryRequest asks any peer further ahead for its collected evidence.
type RecoveryRequest struct {
	Timestamp uint64
}

func (m *RecoveryRequest) Serialize() []byte {
	var buf bytes.Buffer
	NewBinaryWriter(&buf).WriteU64(m.Timestamp)
	return buf.Bytes()
}

func DeserializeRecoveryRequest(raw []byte) (*RecoveryRequest, error) {
	br := NewBinaryReader(bytes.NewReader(raw))
	m := &RecoveryRequest{Timestamp: br.ReadU64()}
	if br.Err() != nil {
		return nil, br.Err()
	}
	return m, nil
}

// RecoveryMessage bundles the signed envelopes the responder has collected
// for the current view: the PrepareRequest (if seen), preparation
// responses, commits and change-views.
type RecoveryMessage struct {
	PrepareRequestPayload []byte   // raw signed envelope, empty if unseen
	Preparations          [][]byte // raw signed PrepareResponse envelopes
	Commits               [][]byte
	ChangeViews           [][]byte
}

func (m *RecoveryMessage) Serialize() []byte {
	var buf bytes.Buffer
	bw := NewBinaryWriter(&buf)
	bw.WriteVarBytes(m.PrepareRequestPayload)
	writeEnvelopeList := func(list [][]byte) {
		bw.WriteVarInt(uint64(len(list)))
		for _, raw := range list {
			bw.WriteVarBytes(raw)
		}
	}
	writeEnvelopeList(m.Preparations)
	writeEnvelopeList(m.Commits)
	writeEnvelopeList(m.ChangeViews)
	return buf.Bytes()
}

func DeserializeRecoveryMessage(raw []byte) (*RecoveryMessage, error) {
	br := NewBinaryReader(bytes.NewReader(raw))
	m := &RecoveryMessage{}
	m.PrepareRequestPayload = br.ReadVarBytes(MaxBlockSize)
	readEnvelopeList := func() [][]byte {
		var out [][]byte
		ReadArray(br, 1024, func() {
			out = append(out, br.ReadVarBytes(MaxBlockSize))
		})
		return out
	}
	m.Preparations = readEnvelopeList()
	m.Commits = readEnvelopeList()
	m.ChangeViews = readEnvelopeList()
	if br.Err() != nil {
		return nil, br.Err()
	}
	return m, nil
}
