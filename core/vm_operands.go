// SPDX-License-Identifier: BUSL-1.1
//
// Per-opcode operand shape: how many bytes (if any) follow the opcode byte,
// and whether that length is fixed or a var-length prefix.
package core

func operandSpec(op Opcode) (n int, kind byte, err error) {
	switch op {
	case OpPUSHINT8:
		return 1, operandFixed, nil
	case OpPUSHINT16:
		return 2, operandFixed, nil
	case OpPUSHINT32:
		return 4, operandFixed, nil
	case OpPUSHINT64:
		return 8, operandFixed, nil
	case OpPUSHINT128:
		return 16, operandFixed, nil
	case OpPUSHINT256:
		return 32, operandFixed, nil
	case OpPUSHA:
		return 4, operandFixed, nil
	case OpPUSHDATA1:
		return 0, operandVar1, nil
	case OpPUSHDATA2:
		return 0, operandVar2, nil
	case OpPUSHDATA4:
		return 0, operandVar4, nil
	case OpJMP, OpJMPIF, OpJMPIFNOT, OpJMPEQ, OpJMPNE, OpJMPGT, OpJMPGE, OpJMPLT, OpJMPLE, OpCALL:
		return 1, operandFixed, nil
	case OpJMPL, OpJMPIFL, OpJMPIFNOTL, OpJMPEQL, OpJMPNEL, OpJMPGTL, OpJMPGEL, OpJMPLTL, OpJMPLEL, OpCALLL:
		return 4, operandFixed, nil
	case OpCALLT:
		return 2, operandFixed, nil
	case OpTRY:
		return 2, operandFixed, nil
	case OpTRYL:
		return 8, operandFixed, nil
	case OpENDTRY:
		return 1, operandFixed, nil
	case OpENDTRYL:
		return 4, operandFixed, nil
	case OpSYSCALL:
		return 4, operandFixed, nil
	case OpINITSSLOT:
		return 1, operandFixed, nil
	case OpINITSLOT:
		return 2, operandFixed, nil
	case OpLDSFLD, OpSTSFLD, OpLDLOC, OpSTLOC, OpLDARG, OpSTARG:
		return 1, operandFixed, nil
	case OpNEWARRAYT, OpISTYPE, OpCONVERT:
		return 1, operandFixed, nil
	default:
		return 0, operandNone, nil
	}
}
