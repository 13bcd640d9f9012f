// opcode-lint cross-checks the VM's dispatch surface: every registered
// opcode must have an explicit gas-table entry. The operand decoder is not
// checked. Run in CI so a new opcode cannot land without a price.
package main

import (
	"fmt"
	"log"

	"neo-core/core"
)

func main() {
	ops := core.RegisteredOpcodes()
	missing := 0
	for _, op := range ops {
		if !core.HasGasCost(op) {
			log.Printf("opcode 0x%02X (%s) has no gas-table entry", byte(op), op)
			missing++
		}
	}
	if missing > 0 {
		log.Fatalf("%d opcodes missing gas costs", missing)
	}
	fmt.Printf("checked %d opcodes, all priced\n", len(ops))
}
