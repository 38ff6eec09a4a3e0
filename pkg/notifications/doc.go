// Package notifications creates, batches and delivers user notifications over
// in-app, push, email, SMS and webhook channels.
//
// # Architecture
//
//   - PreferenceStore: per-user channel, category and batching settings,
//     created with defaults on first access.
//   - Factory: validates a CreateRequest and turns it into a Record.
//   - BatchManager: groups batchable records per user and key, and flushes
//     each group as one summary record.
//   - Scheduler: flushes due batches and delivers due scheduled records on a
//     fixed interval, or on demand through Tick.
//   - Dispatcher: sends a record over its channels concurrently, retrying
//     each one and walking the fallback chain when a channel fails for good.
//   - PushManager: owns each user's push subscription.
//   - Engine: wires the above together over a Storage.
//
// # Basic Usage
//
//	storage := notifications.NewMemoryStorage()
//	hub := notifications.NewHub(32)
//
//	engine := notifications.NewEngine(storage,
//	    notifications.WithUI(hub),
//	    notifications.WithTransport(notifications.ChannelEmail, emailTransport),
//	    notifications.WithPushTransport(fcm),
//	)
//	if err := engine.Start(ctx); err != nil {
//	    return err
//	}
//	defer engine.Close(context.Background())
//
//	id, err := engine.Create(ctx, notifications.CreateRequest{
//	    UserID:   "user-1",
//	    Title:    "New follower",
//	    Message:  "Ada started following you",
//	    Type:     notifications.TypeSocial,
//	    Category: "social",
//	    Channels: []notifications.Channel{notifications.ChannelInApp, notifications.ChannelPush},
//	    Options:  notifications.DeliveryOptions{Batchable: true},
//	})
//
// Create returns once the record is stored. Delivery happens in the
// background and its result is visible on the record: Status moves to
// delivered or failed, and Outcome holds per-channel results.
//
// # Record lifecycle
//
//	pending -> scheduled -> delivered -> read -> dismissed
//	pending -> delivered
//	pending | scheduled -> failed -> (Retry) -> pending
//	scheduled -> read (batch members surfaced through their summary)
//
// # Real-time updates
//
// Hub implements UI. Each user's connected clients subscribe with
// Hub.Subscribe and receive append, toast, read and dismiss events.
//
//	sub := hub.Subscribe(r.Context(), userID)
//	for msg := range sub.Receive() {
//	    writeEvent(msg.Data)
//	}
package notifications
