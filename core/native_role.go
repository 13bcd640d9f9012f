// SPDX-License-Identifier: BUSL-1.1
//
// RoleManagement: committee-designated public-key sets per node role.
// Designations are versioned by the block height they take effect at, so a
// historical query sees the set in force at that height.
package core

import "encoding/binary"

// NodeRole tags a designated node set.
type NodeRole byte

const (
	RoleStateValidator NodeRole = 4
	RoleOracle         NodeRole = 8
	RoleNeoFSAlphabet  NodeRole = 16
)

func (r NodeRole) valid() bool {
	return r == RoleStateValidator || r == RoleOracle || r == RoleNeoFSAlphabet
}

// RoleManagement stores and serves the designated key sets.
type RoleManagement struct {
	*NativeContract
	cfg *ProtocolConfig
}

// NewRoleManagement builds the role native.
func NewRoleManagement(cfg *ProtocolConfig) *RoleManagement {
	r := &RoleManagement{
		NativeContract: newNativeContract(NativeIDRoleMgmt, "RoleManagement"),
		cfg:            cfg,
	}
	r.registerMethods()
	return r
}

// roleKey is role byte followed by the big-endian activation height, so a
// reverse seek from any height finds the latest designation at or below it.
func roleKey(role NodeRole, height uint32) []byte {
	out := make([]byte, 5)
	out[0] = byte(role)
	binary.BigEndian.PutUint32(out[1:], height)
	return out
}

// Designate stores nodes as role's set effective from height.
func (r *RoleManagement) Designate(snap *Snapshot, role NodeRole, height uint32, nodes []ECPoint) {
	sorted := make([]ECPoint, len(nodes))
	copy(sorted, nodes)
	sortECPoints(sorted)
	nativePut(snap, r.ID, roleKey(role, height), serializePointList(sorted))
}

// DesignatedByRole returns the key set in force for role at height.
func (r *RoleManagement) DesignatedByRole(snap *Snapshot, role NodeRole, height uint32) []ECPoint {
	var (
		best  []byte
		found bool
	)
	for _, kv := range nativeSeek(snap, r.ID, []byte{byte(role)}) {
		k := kv.Key
		if len(k) < 5 {
			continue
		}
		if binary.BigEndian.Uint32(k[len(k)-4:]) > height {
			break
		}
		best, found = kv.Value, true
	}
	if !found {
		return nil
	}
	pts, err := deserializePointList(best)
	if err != nil {
		return nil
	}
	return pts
}

func (r *RoleManagement) registerMethods() {
	r.register(&NativeMethod{
		Name: "getDesignatedByRole", ParamCount: 2, RequiredFlags: CallFlagReadStates, Price: 1 << 15,
		Handler: func(e *ApplicationEngine, args []*StackItem) (*StackItem, error) {
			roleInt, err := args[0].Int()
			if err != nil {
				return nil, newFault("getDesignatedByRole: %v", err)
			}
			role := NodeRole(roleInt.Int64())
			if !role.valid() {
				return nil, newFault("getDesignatedByRole: invalid role %d", roleInt.Int64())
			}
			heightInt, err := args[1].Int()
			if err != nil {
				return nil, newFault("getDesignatedByRole: %v", err)
			}
			pts := r.DesignatedByRole(e.Snapshot, role, uint32(heightInt.Uint64()))
			return pointListItem(pts), nil
		},
	})
	r.register(&NativeMethod{
		Name: "designateAsRole", ParamCount: 2, RequiredFlags: CallFlagStates | CallFlagAllowNotify, Price: 1 << 15,
		Handler: func(e *ApplicationEngine, args []*StackItem) (*StackItem, error) {
			roleInt, err := args[0].Int()
			if err != nil {
				return nil, newFault("designateAsRole: %v", err)
			}
			role := NodeRole(roleInt.Int64())
			if !role.valid() {
				return nil, newFault("designateAsRole: invalid role %d", roleInt.Int64())
			}
			nodesArr, err := args[1].Array()
			if err != nil {
				return nil, newFault("designateAsRole: %v", err)
			}
			if len(nodesArr) == 0 || len(nodesArr) > 32 {
				return nil, newFault("designateAsRole: node count %d out of range", len(nodesArr))
			}
			addr, err := r.cfg.CommitteeAddress()
			if err != nil {
				return nil, err
			}
			ok, err := e.CheckWitness(addr)
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, newFault("designateAsRole: committee witness required")
			}
			nodes := make([]ECPoint, 0, len(nodesArr))
			for _, it := range nodesArr {
				raw, err := it.Bytes()
				if err != nil {
					return nil, newFault("designateAsRole: %v", err)
				}
				p, err := ParseCompressedECPoint(raw)
				if err != nil {
					return nil, newFault("designateAsRole: %v", err)
				}
				nodes = append(nodes, p)
			}
			// Effective from the block after the one being persisted.
			height := e.currentHeight + 1
			r.Designate(e.Snapshot, role, height, nodes)
			if err := e.notify(r.Hash, "Designation", NewArrayItem([]*StackItem{
				NewIntItemInt64(int64(role)),
				NewIntItemInt64(int64(height)),
			})); err != nil {
				return nil, err
			}
			return nil, nil
		},
	})
}
