package push

import (
	"fmt"

	"github.com/sideshow/apns2"
	"github.com/sideshow/apns2/payload"
	"github.com/sideshow/apns2/token"

	"pulse-link-backend/internal/models"
)

// APNsSender pushes silent background notifications to devices that are not
// holding a live websocket.
type APNsSender struct {
	client *apns2.Client
	topic  string
}

// NewAPNsSender builds a token-authenticated APNs client from a .p8 key.
func NewAPNsSender(keyFile, keyID, teamID, topic string, production bool) (*APNsSender, error) {
	authKey, err := token.AuthKeyFromFile(keyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load APNs key: %w", err)
	}
	t := &token.Token{
		AuthKey: authKey,
		KeyID:   keyID,
		TeamID:  teamID,
	}
	client := apns2.NewTokenClient(t)
	if production {
		client = client.Production()
	} else {
		client = client.Development()
	}
	return &APNsSender{client: client, topic: topic}, nil
}

// Send delivers one payload as a content-available background push.
func (s *APNsSender) Send(pushToken string, p models.PushPayload) error {
	body := payload.NewPayload().
		ContentAvailable().
		Custom("category", string(p.Category)).
		Custom("record_id", p.RecordID)

	notification := &apns2.Notification{
		DeviceToken: pushToken,
		Topic:       s.topic,
		PushType:    apns2.PushTypeBackground,
		Priority:    apns2.PriorityLow,
		Payload:     body,
	}

	resp, err := s.client.Push(notification)
	if err != nil {
		return fmt.Errorf("failed to push notification: %w", err)
	}
	if !resp.Sent() {
		return fmt.Errorf("push rejected: %s", resp.Reason)
	}
	return nil
}
