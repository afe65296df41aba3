package redis

import "github.com/marcelsud/flowrelay/store"

// SubscriptionBuffered reports how full the delivery buffer of sub is
func SubscriptionBuffered(sub store.Subscription) (int, int) {
	s := sub.(*subscription)
	return len(s.out), cap(s.out)
}

// SubscriptionStopped is closed once the forwarding goroutine of sub exits
func SubscriptionStopped(sub store.Subscription) <-chan struct{} {
	return sub.(*subscription).stopped
}
