package services

import (
	"context"
	"fmt"

	"squadup-backend/internal/config"

	"github.com/rs/zerolog/log"
	"github.com/sideshow/apns2"
	"github.com/sideshow/apns2/payload"
	"github.com/sideshow/apns2/token"
)

// PushNotifier delivers notifications best-effort: over the WebSocket hub
// when the user is online, otherwise as an APNs push to their registered
// device token. Failures are logged, never returned.
type PushNotifier struct {
	hub      *WSHub
	userRepo UserStore
	apns     *apns2.Client
	topic    string
}

// NewPushNotifier creates a notifier. An empty APNs key path leaves push
// delivery disabled; in-app delivery still works.
func NewPushNotifier(hub *WSHub, userRepo UserStore, cfg config.APNsConfig) (*PushNotifier, error) {
	n := &PushNotifier{
		hub:      hub,
		userRepo: userRepo,
		topic:    cfg.Topic,
	}

	if cfg.KeyPath != "" {
		authKey, err := token.AuthKeyFromFile(cfg.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load APNs key: %w", err)
		}
		client := apns2.NewTokenClient(&token.Token{
			AuthKey: authKey,
			KeyID:   cfg.KeyID,
			TeamID:  cfg.TeamID,
		})
		if cfg.Production {
			client = client.Production()
		} else {
			client = client.Development()
		}
		n.apns = client
	}

	return n, nil
}

// Notify implements Notifier.
func (n *PushNotifier) Notify(ctx context.Context, userID, kind string, pl map[string]string) {
	if n.hub.IsOnline(userID) {
		if err := n.hub.SendToUser(userID, WSMessage{Type: kind, Payload: pl}); err == nil {
			return
		}
		// Socket write failed; fall through to push.
	}

	if n.apns == nil {
		log.Debug().Str("user_id", userID).Str("kind", kind).Msg("Push disabled, notification dropped")
		return
	}

	user, err := n.userRepo.GetByID(ctx, userID)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to load user for push")
		return
	}
	if user.PushToken == nil || *user.PushToken == "" {
		log.Debug().Str("user_id", userID).Str("kind", kind).Msg("No push token, notification dropped")
		return
	}

	body := payload.NewPayload().Alert(alertText(kind, pl)).Sound("default").Custom("kind", kind)
	for k, v := range pl {
		body.Custom(k, v)
	}

	notification := &apns2.Notification{
		DeviceToken: *user.PushToken,
		Topic:       n.topic,
		Payload:     body,
	}

	res, err := n.apns.PushWithContext(ctx, notification)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Str("kind", kind).Msg("Push delivery failed")
		return
	}
	if !res.Sent() {
		log.Warn().Str("user_id", userID).Str("kind", kind).Str("reason", res.Reason).Msg("Push rejected")
	}
}

func alertText(kind string, pl map[string]string) string {
	switch kind {
	case NotifySquadInvite:
		if name := pl["squad_name"]; name != "" {
			return fmt.Sprintf("You're in! Squad %q just formed", name)
		}
		return "You've been added to a squad"
	case NotifySquadGrace:
		return "Timer's up! Set a date to lock it in"
	case NotifySquadExpiring:
		return "This chat expires in 1 hour"
	case NotifyDateLocked:
		if date := pl["date"]; date != "" {
			return fmt.Sprintf("Date locked: %s", date)
		}
		return "A date was locked in"
	case NotifySquadExtended:
		return "The squad was extended"
	default:
		return "Squad update"
	}
}
