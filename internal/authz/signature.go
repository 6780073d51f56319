package authz

import (
	"context"
	"time"

	"costwatch/internal/signing"
)

// signatureCheck verifies the inbound request's HMAC signature and
// timestamp freshness.
type signatureCheck struct {
	secret []byte
	now    func() time.Time
}

// NewSignatureCheck builds the third pipeline layer. now may be nil
// (defaults to time.Now).
func NewSignatureCheck(secret []byte, now func() time.Time) Check {
	if now == nil {
		now = time.Now
	}
	return &signatureCheck{secret: secret, now: now}
}

func (c *signatureCheck) Name() string { return "signature" }

func (c *signatureCheck) Check(_ context.Context, req *Request) *Rejection {
	err := signing.Verify(req.Method, req.Path, req.Timestamp, req.Body, req.Signature, c.secret, c.now())
	if err != nil {
		return &Rejection{Check: c.Name(), Reason: err.Error()}
	}
	return nil
}
