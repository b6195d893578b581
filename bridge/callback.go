package bridge

import "context"

// RegisterEventCallback ensures the scheduler is subscribed to send events
// to callbackURL. If it's already subscribed the bridge does nothing and
// reports success; otherwise it subscribes and reports success iff the
// scheduler returned HTTP 200.
func (b *Bridge) RegisterEventCallback(ctx context.Context, callbackURL string) (bool, error) {
	existing, err := b.Scheduler.ListEventSubscriptions(ctx)
	if err != nil {
		return false, err
	}

	for _, url := range existing {
		if url == callbackURL {
			b.Logger.Info("event callback already registered", "url", callbackURL)
			return true, nil
		}
	}

	registered, err := b.Scheduler.AddEventSubscription(ctx, callbackURL)
	if err != nil {
		return false, err
	}
	if registered {
		b.Logger.Info("event callback registered", "url", callbackURL)
	} else {
		b.Logger.Error("event callback registration failed", "url", callbackURL)
	}
	return registered, nil
}
