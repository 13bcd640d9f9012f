// SPDX-License-Identifier: BUSL-1.1
//
// Witness-scope checking behind System.Runtime.CheckWitness.
package core

import "bytes"

// checkWitnessItem accepts either a 20-byte script hash or a 33-byte
// compressed public key (resolved to its standard-account hash).
func (e *ApplicationEngine) checkWitnessItem(item *StackItem) (bool, error) {
	raw, err := item.Bytes()
	if err != nil {
		return false, newFault("CheckWitness: %v", err)
	}
	switch len(raw) {
	case 20:
		h, err := U160FromBytes(raw)
		if err != nil {
			return false, newFault("CheckWitness: %v", err)
		}
		return e.CheckWitness(h)
	case 33:
		p, err := ParseCompressedECPoint(raw)
		if err != nil {
			return false, nil // ill-formed key: verification returns false, never faults
		}
		return e.CheckWitness(p.ScriptHash())
	default:
		return false, newFault("CheckWitness: operand must be a script hash or public key")
	}
}

// CheckWitness reports whether account has authorized the currently
// executing contract chain.
func (e *ApplicationEngine) CheckWitness(account U160) (bool, error) {
	// A contract always witnesses calls it makes itself.
	if account == e.CallingScriptHash() {
		return true, nil
	}
	tx, ok := e.Container.(*Transaction)
	if !ok {
		return false, nil
	}
	for i := range tx.Signers {
		s := &tx.Signers[i]
		if s.Account != account {
			continue
		}
		return e.signerAuthorizes(s), nil
	}
	return false, nil
}

// signerAuthorizes applies the signer's scope against the current call
// graph.
func (e *ApplicationEngine) signerAuthorizes(s *Signer) bool {
	if s.Scopes&ScopeGlobal != 0 {
		return true
	}
	if s.Scopes == ScopeNone {
		return false
	}
	if s.Scopes&ScopeCalledByEntry != 0 {
		cur := e.CurrentScriptHash()
		entry := e.EntryScriptHash()
		if cur == entry || e.CallingScriptHash() == entry {
			return true
		}
	}
	if s.Scopes&ScopeCustomContracts != 0 {
		cur := e.CurrentScriptHash()
		for _, allowed := range s.AllowedContracts {
			if allowed == cur {
				return true
			}
		}
	}
	if s.Scopes&ScopeCustomGroups != 0 {
		for _, g := range e.currentContractGroups() {
			for _, allowed := range s.AllowedGroups {
				if bytes.Equal(g, allowed) {
					return true
				}
			}
		}
	}
	return false
}

// currentContractGroups returns the compressed group keys the currently
// executing contract's manifest declares.
func (e *ApplicationEngine) currentContractGroups() [][]byte {
	cur := e.CurrentScriptHash()
	if e.natives != nil {
		if n, ok := e.natives.ByHash(cur); ok {
			return n.Manifest.GroupKeys()
		}
	}
	if e.contractLookup != nil {
		if cs, ok := e.contractLookup(e.Snapshot, cur); ok {
			return cs.Manifest.GroupKeys()
		}
	}
	return nil
}
