package fetch

import (
	"context"
	"net/url"
	"time"
)

// Pause waits d between calls to a rate-limited publisher. It returns
// early with the context's error when ctx ends.
func Pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Resolve resolves ref against base. Absolute refs are returned
// unchanged; an unparsable base or ref returns ref.
func Resolve(base, ref string) string {
	r, err := url.Parse(ref)
	if err != nil || r.IsAbs() || base == "" {
		return ref
	}
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}
