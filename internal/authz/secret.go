package authz

import (
	"context"
	"time"

	"costwatch/internal/signing"
)

// defaultRejectDelay blunts brute-force attempts against the shared secret:
// a wrong credential pays ~1s before the rejection is returned.
const defaultRejectDelay = time.Second

// secretCheck compares the bearer credential against the shared secret in
// constant time.
type secretCheck struct {
	secret string
	delay  time.Duration
}

// NewSecretCheck builds the final pipeline layer. delay <= 0 uses the
// default; tests pass a tiny value to stay fast.
func NewSecretCheck(secret string, delay time.Duration) Check {
	if delay <= 0 {
		delay = defaultRejectDelay
	}
	return &secretCheck{secret: secret, delay: delay}
}

func (c *secretCheck) Name() string { return "secret" }

func (c *secretCheck) Check(ctx context.Context, req *Request) *Rejection {
	if signing.ConstantTimeEquals(req.Bearer, c.secret) {
		return nil
	}
	// Honor cancellation while delaying.
	t := time.NewTimer(c.delay)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
	return &Rejection{Check: c.Name(), Reason: "credential mismatch"}
}
