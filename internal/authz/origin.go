package authz

import (
	"context"
	"strings"
)

// originCheck rejects callers whose network origin is not allow-listed.
// An empty allow-list disables the check (it always passes).
type originCheck struct {
	allowed map[string]struct{}
}

// NewOriginCheck builds the allow-list check from configured origins.
func NewOriginCheck(origins []string) Check {
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		o = strings.TrimSpace(o)
		if o != "" {
			allowed[o] = struct{}{}
		}
	}
	return &originCheck{allowed: allowed}
}

func (c *originCheck) Name() string { return "origin" }

func (c *originCheck) Check(_ context.Context, req *Request) *Rejection {
	if len(c.allowed) == 0 {
		return nil
	}
	if _, ok := c.allowed[strings.TrimSpace(req.Origin)]; ok {
		return nil
	}
	return &Rejection{Check: c.Name(), Reason: "origin not in allow-list"}
}
