package cache

import (
	"context"
	"strings"

	"github.com/redis/go-redis/v9"
)

// CatalogChannel carries company codes whose chart of accounts changed.
const CatalogChannel = "ledger.accounts.bump"

// Invalidator fans out cache invalidations across processes.
type Invalidator struct {
	client  redis.UniversalClient
	channel string
}

// NewInvalidator uses channel, or CatalogChannel when empty.
func NewInvalidator(client redis.UniversalClient, channel string) *Invalidator {
	if channel == "" {
		channel = CatalogChannel
	}
	return &Invalidator{client: client, channel: channel}
}

// Bump announces that company's cached data is stale.
func (i *Invalidator) Bump(ctx context.Context, company string) error {
	if i == nil || i.client == nil {
		return nil
	}
	return i.client.Publish(ctx, i.channel, company).Err()
}

// Listen calls fn for every announced company until ctx ends. The
// subscription is confirmed before Listen returns.
func (i *Invalidator) Listen(ctx context.Context, fn func(company string)) error {
	if i == nil || i.client == nil || fn == nil {
		return nil
	}
	pubsub := i.client.Subscribe(ctx, i.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return err
	}
	go func() {
		defer func() { _ = pubsub.Close() }()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				if company := strings.TrimSpace(msg.Payload); company != "" {
					fn(company)
				}
			}
		}
	}()
	return nil
}
