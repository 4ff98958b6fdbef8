package notify

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/rs/zerolog"

	"campus-notify-go/internal/models"
	"campus-notify-go/internal/store"
)

// WebPushSender delivers notifications to a recipient's registered
// browser push subscriptions. It is strictly best effort: failures are
// logged and subscriptions rejected by the push service are pruned.
type WebPushSender struct {
	store      store.PushSubscriptionStore
	publicKey  string
	privateKey string
	subscriber string
	log        zerolog.Logger
}

func NewWebPushSender(st store.PushSubscriptionStore, publicKey, privateKey, subscriber string, log zerolog.Logger) *WebPushSender {
	return &WebPushSender{
		store:      st,
		publicKey:  publicKey,
		privateKey: privateKey,
		subscriber: subscriber,
		log:        log.With().Str("component", "webpush").Logger(),
	}
}

// PublicKey returns the VAPID public key clients need to subscribe.
func (w *WebPushSender) PublicKey() string {
	return w.publicKey
}

func (w *WebPushSender) Send(ctx context.Context, recipientID int, n models.Notification) {
	subs, err := w.store.GetPushSubscriptions(ctx, recipientID)
	if err != nil {
		w.log.Warn().Err(err).Int("recipient_id", recipientID).Msg("failed to load push subscriptions")
		return
	}

	payload, err := json.Marshal(n)
	if err != nil {
		w.log.Warn().Err(err).Msg("failed to encode push payload")
		return
	}

	for _, sub := range subs {
		s := &webpush.Subscription{
			Endpoint: sub.Endpoint,
			Keys: webpush.Keys{
				P256dh: sub.P256dh,
				Auth:   sub.Auth,
			},
		}

		resp, err := webpush.SendNotification(payload, s, &webpush.Options{
			Subscriber:      w.subscriber,
			VAPIDPublicKey:  w.publicKey,
			VAPIDPrivateKey: w.privateKey,
			TTL:             30,
		})
		if err != nil {
			w.log.Warn().Err(err).Str("endpoint", sub.Endpoint).Msg("web push failed")
			continue
		}
		if resp.StatusCode == http.StatusGone || resp.StatusCode == http.StatusNotFound {
			// Subscription expired on the push service side.
			if err := w.store.DeletePushSubscription(ctx, sub.Endpoint); err != nil {
				w.log.Warn().Err(err).Msg("failed to prune dead push subscription")
			}
		}
		resp.Body.Close()
	}
}
