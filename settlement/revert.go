package settlement

import (
	"encoding/hex"
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
)

// revertSelectors maps the 4-byte selector of each custom error the
// settlement router can revert with to a stable, wire-level reason. Only
// these four are known to the engine; any other selector (or a plain
// require(...) string revert) is treated as an unrecognized, non-fatal
// simulation revert per the "simulation is advisory" rule.
var revertSelectors = map[[4]byte]string{
	selectorOf("AlreadySettled()"):     "already_settled",
	selectorOf("InvalidCommitment()"):  "invalid_commitment",
	selectorOf("HookNotWhitelisted()"): "hook_not_whitelisted",
	selectorOf("UnsupportedToken()"):   "unsupported_token",
}

// fatalRevertReasons are the reasons that abort the pipeline even at the
// advisory Simulated step, because continuing to submit would always fail
// on-chain for the same reason.
var fatalRevertReasons = map[string]bool{
	"already_settled":      true,
	"invalid_commitment":   true,
	"hook_not_whitelisted": true,
	"unsupported_token":    true,
}

func selectorOf(signature string) [4]byte {
	var out [4]byte
	copy(out[:], crypto.Keccak256([]byte(signature))[:4])
	return out
}

// dataErr is the interface go-ethereum's rpc client attaches to JSON-RPC
// errors that carry structured revert data.
type dataErr interface {
	ErrorData() interface{}
}

// classifyRevert inspects err for go-ethereum's revert data and returns the
// matching reason, or "" if the revert is unrecognized (a plain require
// string, or a selector not in revertSelectors).
func classifyRevert(err error) string {
	if err == nil {
		return ""
	}
	var de dataErr
	if !errors.As(err, &de) {
		return ""
	}
	raw, ok := de.ErrorData().(string)
	if !ok {
		return ""
	}
	data, err := hex.DecodeString(strings.TrimPrefix(raw, "0x"))
	if err != nil || len(data) < 4 {
		return ""
	}
	var selector [4]byte
	copy(selector[:], data[:4])
	return revertSelectors[selector]
}
