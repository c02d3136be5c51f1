package facilitator

import (
	"context"
	"testing"
)

func TestFacilitatorGetSupported(t *testing.T) {
	fac := New(&fakeVerifier{}, &fakeSettler{})
	fac.RegisterSupported([]SupportedKind{
		{Scheme: SchemeExact, Network: "base-sepolia"},
		{Scheme: SchemeExact, Network: "base"},
	})

	supported := fac.GetSupported()
	if len(supported.Kinds) != 2 {
		t.Fatalf("got %d kinds, want 2", len(supported.Kinds))
	}
	if supported.Kinds[0].Network != "base-sepolia" {
		t.Errorf("got network %q, want base-sepolia", supported.Kinds[0].Network)
	}
}

func TestFacilitatorVerify_HappyPath(t *testing.T) {
	fac := New(&fakeVerifier{resp: &VerifyResponse{IsValid: true, Payer: "0x1111111111111111111111111111111111111111"}}, &fakeSettler{})

	result, err := fac.Verify(context.Background(), testPayload(), testRequirements())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsValid {
		t.Error("expected IsValid=true")
	}
}

func TestFacilitatorSettle_HappyPath(t *testing.T) {
	fac := New(&fakeVerifier{}, &fakeSettler{resp: &SettleResponse{
		Success:     true,
		Transaction: "0xdeadbeef",
		Network:     "base-sepolia",
		GasMetrics:  &GasMetrics{Profitable: true},
	}})

	result, err := fac.Settle(context.Background(), testPayload(), testRequirements())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Success {
		t.Error("expected Success=true")
	}
	if result.Transaction != "0xdeadbeef" {
		t.Errorf("got transaction %q", result.Transaction)
	}
	if !result.GasMetrics.Profitable {
		t.Error("expected GasMetrics.Profitable=true")
	}
}

func TestFacilitatorVerify_RawErrorPropagates(t *testing.T) {
	fac := New(&fakeVerifier{err: NewVerifyError(ReasonInvalidSignature, "", "base-sepolia", nil)}, &fakeSettler{})

	_, err := fac.Verify(context.Background(), testPayload(), testRequirements())
	if err == nil {
		t.Fatal("expected error when no recovery hook is registered")
	}
}
