// Package authz implements the layered authorization pipeline guarding the
// orchestrator entry point.
//
// Four independent checks run in order: origin allow-list, per-origin rate
// limit, request signature, shared secret. The first failure short-circuits
// the rest (defense in depth: defeating one layer still leaves the others).
// Callers surface every rejection as the same opaque 401; the failing layer
// is only visible in logs and the audit trail.
package authz

import (
	"context"

	logx "costwatch/pkg/logx"
)

// Request carries the authentication-relevant parts of an inbound call.
// It never holds parsed credentials beyond what the checks need, and none
// of its secret-bearing fields may be logged.
type Request struct {
	Origin    string
	UserAgent string
	Method    string
	Path      string
	Timestamp string // X-Timestamp header value
	Signature string // X-Signature header value
	Bearer    string // credential from the Authorization header
	Body      string // exact body bytes as received ("" for GET)
}

// Rejection describes a failed check. Reason is for logs and audit only;
// it must never be echoed to the caller.
type Rejection struct {
	Check  string
	Reason string
}

// Check is one authorization layer.
type Check interface {
	Name() string
	Check(ctx context.Context, req *Request) *Rejection
}

// Auditor records authorization rejections for later review.
// Implementations must not block for long; failures are best-effort.
type Auditor interface {
	AuthRejected(ctx context.Context, origin, userAgent, check string)
}

// Pipeline runs checks in order and stops at the first rejection.
type Pipeline struct {
	checks []Check
	log    logx.Logger
	audit  Auditor
}

// NewPipeline builds a pipeline over the given checks. audit may be nil.
func NewPipeline(log logx.Logger, audit Auditor, checks ...Check) *Pipeline {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Pipeline{checks: checks, log: log, audit: audit}
}

// Authorize returns nil when every check passes. On rejection it logs the
// calling context (origin, user-agent, failing layer) and records an audit
// entry, then returns the rejection. Secrets and signature values are never
// included.
func (p *Pipeline) Authorize(ctx context.Context, req *Request) *Rejection {
	for _, c := range p.checks {
		rej := c.Check(ctx, req)
		if rej == nil {
			continue
		}
		p.log.Warn("request rejected",
			logx.String("check", rej.Check),
			logx.String("reason", rej.Reason),
			logx.String("origin", req.Origin),
			logx.String("user_agent", req.UserAgent),
		)
		if p.audit != nil {
			p.audit.AuthRejected(ctx, req.Origin, req.UserAgent, rej.Check)
		}
		return rej
	}
	return nil
}
