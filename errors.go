package facilitator

import "fmt"

// PaymentError represents a payment-specific error returned at the HTTP boundary.
type PaymentError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *PaymentError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Common error codes
const (
	ErrCodeInvalidPayment     = "invalid_payment"
	ErrCodeInsufficientFunds  = "insufficient_funds"
	ErrCodeNetworkMismatch    = "network_mismatch"
	ErrCodeSignatureInvalid   = "signature_invalid"
	ErrCodePaymentExpired     = "payment_expired"
	ErrCodeSettlementFailed   = "settlement_failed"
	ErrCodeUnsupportedNetwork = "unsupported_network"
	ErrCodeUnsupportedAsset   = "unsupported_asset"
)

// NewPaymentError creates a new payment error.
func NewPaymentError(code, message string, details map[string]interface{}) *PaymentError {
	return &PaymentError{Code: code, Message: message, Details: details}
}

// VerifyError represents a payment verification failure.
// Both business-logic rejections and system errors are returned this way.
type VerifyError struct {
	Reason  string  // Error reason/code (e.g., "insufficient_balance", "invalid_signature")
	Payer   string  // Payer address, if known
	Network Network // Network identifier, if known
	Err     error   // Optional wrapped system error
}

func (e *VerifyError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("verification failed: %s (reason: %s)", e.Err.Error(), e.Reason)
	}
	return fmt.Sprintf("verification failed: %s", e.Reason)
}

func (e *VerifyError) Unwrap() error {
	return e.Err
}

// NewVerifyError creates a new verification error.
func NewVerifyError(reason string, payer string, network Network, err error) *VerifyError {
	return &VerifyError{Reason: reason, Payer: payer, Network: network, Err: err}
}

// SettleError represents a payment settlement failure raised before or during submission.
type SettleError struct {
	Reason      string  // Error reason/code
	Payer       string  // Payer address, if known
	Network     Network // Network identifier
	Transaction string  // Transaction hash, if one was broadcast
	Err         error   // Optional wrapped system error
}

func (e *SettleError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("settlement failed: %s (reason: %s)", e.Err.Error(), e.Reason)
	}
	return fmt.Sprintf("settlement failed: %s", e.Reason)
}

func (e *SettleError) Unwrap() error {
	return e.Err
}

// NewSettleError creates a new settlement error.
func NewSettleError(reason string, payer string, network Network, transaction string, err error) *SettleError {
	return &SettleError{Reason: reason, Payer: payer, Network: network, Transaction: transaction, Err: err}
}

// SettlementError wraps a failure raised by the settlement state machine, carrying
// the pipeline state it failed at in addition to what SettleError already tracks.
type SettlementError struct {
	State       string // state machine step the failure occurred at, e.g. "simulated"
	Reason      string
	Payer       string
	Network     Network
	Transaction string
	Err         error
}

func (e *SettlementError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("settlement failed at %s: %s (reason: %s)", e.State, e.Err.Error(), e.Reason)
	}
	return fmt.Sprintf("settlement failed at %s: %s", e.State, e.Reason)
}

func (e *SettlementError) Unwrap() error {
	return e.Err
}

// NewSettlementError creates a new state-machine settlement error.
func NewSettlementError(state, reason, payer string, network Network, transaction string, err error) *SettlementError {
	return &SettlementError{State: state, Reason: reason, Payer: payer, Network: network, Transaction: transaction, Err: err}
}
