// SPDX-License-Identifier: BUSL-1.1
//
// Protocol-level constants and per-network settings, threaded explicitly
// through NodeContext instead of living in process globals.
package core

import "fmt"

// DefaultStoragePrice is the per-byte gas price of a storage write before
// the policy contract overrides it.
const DefaultStoragePrice int64 = 100_000

// ProtocolConfig fixes the network's identity and consensus parameters.
// Values are read-only after startup; anything tunable at runtime lives in
// the policy contract instead.
type ProtocolConfig struct {
	Network          uint32
	MsPerBlock       uint64
	ValidatorsCount  int
	StandbyCommittee []ECPoint

	MaxTraceableBlocks          uint32
	MaxValidUntilBlockIncrement uint32
	MempoolCapacity             int

	// InitialGasDistribution is minted to the standby committee's multisig
	// account at genesis, in GAS fractions.
	InitialGasDistribution int64
	// GasPerBlock is the per-block generation rate NEO holders accrue, in
	// GAS fractions; the committee can retune it through NeoToken.
	GasPerBlock int64
}

// DefaultProtocolConfig mirrors the reference mainnet parameters, with the
// committee left for the caller to fill in.
func DefaultProtocolConfig() *ProtocolConfig {
	return &ProtocolConfig{
		Network:                     0x334F454E,
		MsPerBlock:                  15_000,
		ValidatorsCount:             7,
		MaxTraceableBlocks:          MaxTraceableBlocks,
		MaxValidUntilBlockIncrement: MaxValidUntilBlockIncrement,
		MempoolCapacity:             50_000,
		InitialGasDistribution:      52_000_000 * gasFactor,
		GasPerBlock:                 5 * gasFactor,
	}
}

// Validate rejects configurations no node could run with.
func (c *ProtocolConfig) Validate() error {
	if len(c.StandbyCommittee) == 0 {
		return fmt.Errorf("config: empty standby committee")
	}
	if c.ValidatorsCount <= 0 || c.ValidatorsCount > len(c.StandbyCommittee) {
		return fmt.Errorf("config: validators count %d out of range for committee of %d",
			c.ValidatorsCount, len(c.StandbyCommittee))
	}
	if c.MsPerBlock == 0 {
		return fmt.Errorf("config: zero block time")
	}
	return nil
}

// CommitteeSize is the number of committee members, fixed by the standby
// list's length.
func (c *ProtocolConfig) CommitteeSize() int { return len(c.StandbyCommittee) }

// StandbyValidators returns the first ValidatorsCount standby members, the
// validator set in force until on-chain voting overrides it.
func (c *ProtocolConfig) StandbyValidators() []ECPoint {
	return c.StandbyCommittee[:c.ValidatorsCount]
}

// CommitteeAddress is the multisig account that authorizes committee-gated
// native methods (policy setters, role designation).
func (c *ProtocolConfig) CommitteeAddress() (U160, error) {
	m := len(c.StandbyCommittee) - (len(c.StandbyCommittee)-1)/2
	return ScriptHashForMultisig(m, c.StandbyCommittee)
}

// NextConsensusAddress is the multisig account over the validator set that
// block headers commit to in next_consensus.
func (c *ProtocolConfig) NextConsensusAddress(validators []ECPoint) (U160, error) {
	m := len(validators) - (len(validators)-1)/3
	return ScriptHashForMultisig(m, validators)
}
