package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	facilitator "github.com/awesome-doge/settlement-core/go"
)

type fakeFacilitator struct {
	verifyResp *facilitator.VerifyResponse
	verifyErr  error
	settleResp *facilitator.SettleResponse
	settleErr  error
	supported  facilitator.SupportedResponse
}

func (f *fakeFacilitator) Verify(ctx context.Context, p facilitator.PaymentPayload, r facilitator.PaymentRequirements) (*facilitator.VerifyResponse, error) {
	return f.verifyResp, f.verifyErr
}

func (f *fakeFacilitator) Settle(ctx context.Context, p facilitator.PaymentPayload, r facilitator.PaymentRequirements) (*facilitator.SettleResponse, error) {
	return f.settleResp, f.settleErr
}

func (f *fakeFacilitator) GetSupported() facilitator.SupportedResponse {
	return f.supported
}

func newTestServer(f Facilitator) *Server {
	return New(f, zap.NewNop(), prometheus.NewRegistry(), "0", false)
}

func testRequestBody() []byte {
	body, _ := json.Marshal(map[string]interface{}{
		"paymentPayload": facilitator.PaymentPayload{
			Scheme:  "exact",
			Network: "base-sepolia",
		},
		"paymentRequirements": facilitator.PaymentRequirements{
			Scheme:            "exact",
			Network:           "base-sepolia",
			Asset:             "0x3333333333333333333333333333333333333333",
			PayTo:             "0x4444444444444444444444444444444444444444",
			MaxAmountRequired: nil,
		},
	})
	return body
}

func TestHandleSupported(t *testing.T) {
	s := newTestServer(&fakeFacilitator{supported: facilitator.SupportedResponse{
		Kinds: []facilitator.SupportedKind{{Scheme: "exact", Network: "base-sepolia"}},
	}})

	req := httptest.NewRequest(http.MethodGet, "/supported", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200", rec.Code)
	}
	var got facilitator.SupportedResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(got.Kinds) != 1 || got.Kinds[0].Network != "base-sepolia" {
		t.Errorf("unexpected supported response: %+v", got)
	}
}

func TestHandleVerify_ValidationFailureIsStillOK(t *testing.T) {
	s := newTestServer(&fakeFacilitator{verifyResp: &facilitator.VerifyResponse{
		IsValid:       false,
		InvalidReason: facilitator.ReasonInsufficientFunds,
	}})

	req := httptest.NewRequest(http.MethodPost, "/verify", bytes.NewReader(testRequestBody()))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200 for a well-formed but rejected request", rec.Code)
	}
	var got facilitator.VerifyResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.IsValid {
		t.Error("expected isValid=false")
	}
	if got.InvalidReason != facilitator.ReasonInsufficientFunds {
		t.Errorf("got reason %q", got.InvalidReason)
	}
}

func TestHandleVerify_MalformedBodyIsBadRequest(t *testing.T) {
	s := newTestServer(&fakeFacilitator{})

	req := httptest.NewRequest(http.MethodPost, "/verify", bytes.NewReader([]byte("not json")))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("got status %d, want 400", rec.Code)
	}
}

func TestHandleVerify_ClientErrorIsBadRequest(t *testing.T) {
	s := newTestServer(&fakeFacilitator{
		verifyErr: &facilitator.VerifyError{Reason: "client error: unsupported network"},
	})

	req := httptest.NewRequest(http.MethodPost, "/verify", bytes.NewReader(testRequestBody()))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("got status %d, want 400", rec.Code)
	}
}

func TestHandleSettle_InternalErrorIs500(t *testing.T) {
	s := newTestServer(&fakeFacilitator{
		settleErr: &facilitator.SettleError{Reason: "unexpected_settle_error"},
	})

	req := httptest.NewRequest(http.MethodPost, "/settle", bytes.NewReader(testRequestBody()))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("got status %d, want 500", rec.Code)
	}
}

func TestHandleHealth(t *testing.T) {
	s := newTestServer(&fakeFacilitator{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200", rec.Code)
	}
}
