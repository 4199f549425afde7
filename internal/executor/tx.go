package executor

import (
	"encoding/json"

	"github.com/gagliardetto/solana-go"
)

// instructionEnvelope is the daemon's internal representation of the
// transaction it is about to submit: a compute-budget pair plus the main
// harvest/close instruction. Encoding the actual Solana instruction wire
// format and the create-associated-token-account idempotent instructions
// is the on-chain program's concern (spec.md §1 scopes the programs
// themselves out); this envelope is what submitWithRetry sends as the
// "raw transaction" in tests and is where a real builder would plug in.
type instructionEnvelope struct {
	Kind                     string
	PositionID               solana.PublicKey
	Pool                     solana.PublicKey
	Owner                    solana.PublicKey
	Bins                     []int32
	ComputeUnitLimit         uint32
	PriorityFeeMicroLamports uint64
}

func (e instructionEnvelope) marshal() ([]byte, error) {
	return json.Marshal(e)
}
