package websocket

import (
	"context"

	"huddle-chat/internal/events"
)

// RedisBridge fans messages from the Redis upload channels into the
// hub. One bridge per process; it pattern-subscribes the whole upload
// namespace so any session's watchers are served regardless of which
// node accepted the chunk.
type RedisBridge struct {
	subscriber events.Subscriber
	hub        *Hub
}

func NewRedisBridge(subscriber events.Subscriber, hub *Hub) *RedisBridge {
	return &RedisBridge{subscriber: subscriber, hub: hub}
}

func (b *RedisBridge) Run(ctx context.Context) error {
	return b.subscriber.Subscribe(ctx, []string{events.ChannelPrefixUpload + "*"}, func(channel string, payload []byte) {
		b.hub.Broadcast(channel, payload)
	})
}
