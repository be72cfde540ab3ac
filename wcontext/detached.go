package wcontext

import "context"

// DetachedContext returns a context that will not be canceled when the
// parent is canceled. A sandbox provisioner uses this so that a waiter
// giving up never interrupts the provisioning goroutine it shares with
// other waiters; the logger and other values carried on ctx survive.
func DetachedContext(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}
