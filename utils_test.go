package facilitator

import (
	"math/big"
	"testing"
)

func TestValidatePaymentPayload(t *testing.T) {
	valid := testPayload()

	tests := []struct {
		name    string
		mutate  func(p *PaymentPayload)
		wantErr bool
	}{
		{"valid payload", func(p *PaymentPayload) {}, false},
		{"wrong scheme", func(p *PaymentPayload) { p.Scheme = "other" }, true},
		{"missing network", func(p *PaymentPayload) { p.Network = "" }, true},
		{"malformed from address", func(p *PaymentPayload) { p.Payload.Authorization.From = "not-an-address" }, true},
		{"negative value", func(p *PaymentPayload) { p.Payload.Authorization.Value = big.NewInt(-1) }, true},
		{"validAfter after validBefore", func(p *PaymentPayload) {
			p.Payload.Authorization.ValidAfter = big.NewInt(100)
			p.Payload.Authorization.ValidBefore = big.NewInt(50)
		}, true},
		{"empty signature", func(p *PaymentPayload) { p.Payload.Signature = nil }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := valid
			tt.mutate(&p)
			err := ValidatePaymentPayload(p)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidatePaymentPayload() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidatePaymentRequirements(t *testing.T) {
	valid := testRequirements()

	tests := []struct {
		name    string
		mutate  func(r *PaymentRequirements)
		wantErr bool
	}{
		{"valid requirements", func(r *PaymentRequirements) {}, false},
		{"wrong scheme", func(r *PaymentRequirements) { r.Scheme = "other" }, true},
		{"missing asset", func(r *PaymentRequirements) { r.Asset = "" }, true},
		{"malformed payTo", func(r *PaymentRequirements) { r.PayTo = "0x1234" }, true},
		{"zero amount", func(r *PaymentRequirements) { r.MaxAmountRequired = big.NewInt(0) }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := valid
			tt.mutate(&r)
			err := ValidatePaymentRequirements(r)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidatePaymentRequirements() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestBigFromDecimalString(t *testing.T) {
	n, err := bigFromDecimalString("value", "1000000")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n.Cmp(big.NewInt(1_000_000)) != 0 {
		t.Errorf("got %s, want 1000000", n.String())
	}

	if _, err := bigFromDecimalString("value", "not-a-number"); err == nil {
		t.Error("expected error for non-numeric string")
	}
}
