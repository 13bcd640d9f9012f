// SPDX-License-Identifier: BUSL-1.1
package core

import "testing"

func TestConsensusPayloadSignatureRoundTrip(t *testing.T) {
	priv := deterministicKeyT(t, "payload-signer")
	req := &PrepareRequest{Timestamp: 111, Nonce: 222, TxHashes: []U256{H256([]byte("t1"))}}
	p := &ConsensusPayload{
		Network:        0x4E454F,
		BlockIndex:     12,
		ValidatorIndex: 3,
		ViewNumber:     1,
		Type:           MsgPrepareRequest,
		Data:           req.Serialize(),
	}
	if err := p.Sign(priv); err != nil {
		t.Fatalf("sign: %v", err)
	}
	raw, err := p.Serialize()
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	back, err := DeserializeConsensusPayload(raw)
	if err != nil {
		t.Fatalf("deserialize: %v", err)
	}
	if back.Hash() != p.Hash() {
		t.Fatalf("payload hash changed across the wire")
	}
	if !back.VerifySignature(PublicKeyOf(priv)) {
		t.Fatalf("valid payload signature rejected")
	}
	other := deterministicKeyT(t, "other-signer")
	if back.VerifySignature(PublicKeyOf(other)) {
		t.Fatalf("signature verified for the wrong validator")
	}
	// The body survives intact.
	gotReq, err := DeserializePrepareRequest(back.Data)
	if err != nil || gotReq.Nonce != 222 || len(gotReq.TxHashes) != 1 {
		t.Fatalf("prepare request body corrupted: %v", err)
	}
}

func TestConsensusMessageBodiesRoundTrip(t *testing.T) {
	cv := &ChangeView{NewViewNumber: 2, Timestamp: 99, Reason: CVTxNotFound}
	gotCV, err := DeserializeChangeView(cv.Serialize())
	if err != nil || gotCV.NewViewNumber != 2 || gotCV.Reason != CVTxNotFound {
		t.Fatalf("change view round trip: %+v %v", gotCV, err)
	}

	resp := &PrepareResponse{PreparationHash: H256([]byte("prep"))}
	gotResp, err := DeserializePrepareResponse(resp.Serialize())
	if err != nil || gotResp.PreparationHash != resp.PreparationHash {
		t.Fatalf("prepare response round trip failed: %v", err)
	}

	commit := &Commit{Signature: make([]byte, 64)}
	if _, err := DeserializeCommit(commit.Serialize()); err != nil {
		t.Fatalf("commit round trip: %v", err)
	}
	if _, err := DeserializeCommit((&Commit{Signature: make([]byte, 10)}).Serialize()); err == nil {
		t.Fatalf("short commit signature accepted")
	}

	rm := &RecoveryMessage{
		PrepareRequestPayload: []byte{1, 2, 3},
		Preparations:          [][]byte{{4}, {5}},
		Commits:               [][]byte{{6}},
	}
	gotRM, err := DeserializeRecoveryMessage(rm.Serialize())
	if err != nil || len(gotRM.Preparations) != 2 || len(gotRM.Commits) != 1 {
		t.Fatalf("recovery message round trip: %+v %v", gotRM, err)
	}
}

func TestPrimaryRotation(t *testing.T) {
	c := newConsensusCluster(t, 4)
	now := uint64(genesisTimestampMS + 10_000)
	svc := c.services[0]
	svc.Start(now)
	// (block_index - view_number) mod N.
	if got := svc.PrimaryIndex(0); got != 1 {
		t.Fatalf("primary for (1, 0) is %d, want 1", got)
	}
	if got := svc.PrimaryIndex(1); got != 0 {
		t.Fatalf("primary for (1, 1) is %d, want 0", got)
	}
	if svc.F() != 1 || svc.M() != 3 {
		t.Fatalf("quorum parameters f=%d m=%d for n=4", svc.F(), svc.M())
	}
}
