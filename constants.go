package facilitator

// Version constants.
const (
	// Version is the facilitator build version.
	Version = "1.0.0"

	// SchemeExact is the only payment scheme this facilitator understands:
	// an EIP-3009 transferWithAuthorization settled through a settlement router.
	SchemeExact = "exact"

	// ProtocolTag namespaces the commitment hash so it can never collide with a
	// plain EIP-3009 nonce produced by an unrelated protocol on the same chain.
	ProtocolTag = "EIP3009-SETTLEMENT-V1"
)

// Settlement state machine step names, used in logs, metrics labels and
// SettlementError.State. Kept as strings rather than an iota enum because
// they are serialized into audit records verbatim.
const (
	StateReceived          = "received"
	StateValidated         = "validated"
	StateVerified          = "verified"
	StateCommitmentChecked = "commitment_checked"
	StateSignerLeased      = "signer_leased"
	StateGasPriced         = "gas_priced"
	StateSimulated         = "simulated"
	StateSubmitted         = "submitted"
	StateConfirmed         = "confirmed"
	StateAccounted         = "accounted"
	StateDone              = "done"
	StateFailed            = "failed"
)

// Export the main type with an uppercase name for external packages.
type Facilitator = facilitator
