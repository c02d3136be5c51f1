package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	facilitator "github.com/awesome-doge/settlement-core/go"
)

// verifyRequest is the POST /verify and POST /settle request body shared by
// both endpoints: a payload to check against a set of requirements.
type verifyRequest struct {
	PaymentPayload      facilitator.PaymentPayload      `json:"paymentPayload" binding:"required"`
	PaymentRequirements facilitator.PaymentRequirements `json:"paymentRequirements" binding:"required"`
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleSupported(c *gin.Context) {
	c.JSON(http.StatusOK, s.facilitator.GetSupported())
}

// handleVerifyDescriptor answers GET /verify with the same supported-kinds
// listing as GET /supported: a client probing for usage before constructing
// a real POST /verify body finds the same accepted (scheme, network) set.
func (s *Server) handleVerifyDescriptor(c *gin.Context) {
	c.JSON(http.StatusOK, s.facilitator.GetSupported())
}

// handleVerify runs a payload through the verifier. A malformed request body
// is a 400; an error from Verify is mapped by respondEngineError; a
// rejected-but-well-formed payment is a 200 carrying isValid=false, since the
// caller asked a question that was answered, rather than failed to be answered.
func (s *Server) handleVerify(c *gin.Context) {
	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := s.facilitator.Verify(c.Request.Context(), req.PaymentPayload, req.PaymentRequirements)
	if err != nil {
		s.respondEngineError(c, "verify", err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// handleSettle drives a payload through the settlement engine. As with
// /verify, a well-formed request that fails to settle is still a 200: the
// SettleResponse.Success/ErrorReason fields carry the outcome.
func (s *Server) handleSettle(c *gin.Context) {
	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := s.facilitator.Settle(c.Request.Context(), req.PaymentPayload, req.PaymentRequirements)
	if err != nil {
		s.respondEngineError(c, "settle", err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// respondEngineError maps a Verify/Settle error to the wire's two-way split:
// an error whose message contains "client error" (malformed request, unsupported
// network) is the caller's fault and becomes 400; anything else is treated
// as an internal/infrastructure failure and becomes 500. Verify/Settle never
// return an error for a rejected-but-well-formed payment, so neither case
// here is a validation failure.
func (s *Server) respondEngineError(c *gin.Context, op string, err error) {
	if strings.Contains(err.Error(), "client error") {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.logger.Error(op+" failed", zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}
