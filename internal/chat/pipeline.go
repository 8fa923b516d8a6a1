package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"mentormatch/server/internal/metrics"
	"mentormatch/server/internal/model"
)

var (
	// ErrForbidden means the sender and receiver are not both parties to the
	// claimed connection, or the connection is not accepted.
	ErrForbidden = errors.New("not a party to this connection")
	// ErrValidation means the send payload is malformed.
	ErrValidation = errors.New("invalid send request")
)

type ConnectionStore interface {
	GetConnectionByID(ctx context.Context, connectionID string) (model.Connection, error)
}

type MessageStore interface {
	CreateMessage(ctx context.Context, msg model.Message) error
}

type ActivityStore interface {
	CreateActivity(ctx context.Context, activity model.Activity) error
}

type Presence interface {
	IsOnline(userID string) bool
}

// Pusher delivers an event to every live handle of a user. Delivery is
// best effort; the transport drops handles that fail to accept the write.
type Pusher interface {
	SendToUser(userID, event string, payload any)
}

type SendRequest struct {
	ReceiverID   string `json:"receiverId"`
	ConnectionID string `json:"connectionId"`
	Text         string `json:"text,omitempty"`
	Image        string `json:"image,omitempty"`
}

// Pipeline runs a send request through validate, authorize, persist, deliver.
// Nothing is written before authorization passes, and nothing is pushed
// before the write succeeds.
type Pipeline struct {
	connections ConnectionStore
	messages    MessageStore
	activities  ActivityStore
	presence    Presence
	pusher      Pusher
}

func NewPipeline(connections ConnectionStore, messages MessageStore, activities ActivityStore, presence Presence, pusher Pusher) *Pipeline {
	return &Pipeline{
		connections: connections,
		messages:    messages,
		activities:  activities,
		presence:    presence,
		pusher:      pusher,
	}
}

// Authorize confirms the connection exists, is accepted, and that sender and
// receiver are exactly its two participants, in either order.
func (p *Pipeline) Authorize(ctx context.Context, connectionID, senderID, receiverID string) error {
	conn, err := p.connections.GetConnectionByID(ctx, connectionID)
	if err != nil {
		return ErrForbidden
	}
	if conn.Status != model.ConnectionAccepted {
		return ErrForbidden
	}
	if !conn.Participants(senderID, receiverID) {
		return ErrForbidden
	}
	return nil
}

// Send accepts an authenticated sender's request. senderID comes from the
// session guard, never from the request body.
func (p *Pipeline) Send(ctx context.Context, senderID string, req SendRequest) (model.Message, error) {
	req.Text = strings.TrimSpace(req.Text)
	if req.ReceiverID == "" || req.ConnectionID == "" {
		metrics.MessagesRejected.WithLabelValues("validation").Inc()
		return model.Message{}, ErrValidation
	}
	if req.Text == "" && req.Image == "" {
		metrics.MessagesRejected.WithLabelValues("validation").Inc()
		return model.Message{}, ErrValidation
	}
	if req.ReceiverID == senderID {
		metrics.MessagesRejected.WithLabelValues("validation").Inc()
		return model.Message{}, ErrValidation
	}

	if err := p.Authorize(ctx, req.ConnectionID, senderID, req.ReceiverID); err != nil {
		metrics.MessagesRejected.WithLabelValues("forbidden").Inc()
		return model.Message{}, err
	}

	msg := model.Message{
		ID:           uuid.NewString(),
		SenderID:     senderID,
		ReceiverID:   req.ReceiverID,
		ConnectionID: req.ConnectionID,
		Text:         req.Text,
		Image:        req.Image,
		CreatedAt:    time.Now().UTC(),
	}
	if err := p.messages.CreateMessage(ctx, msg); err != nil {
		return model.Message{}, fmt.Errorf("persist message: %w", err)
	}
	metrics.MessagesSent.Inc()

	p.recordActivity(ctx, senderID, msg)

	// The write is durable at this point: a receiver coming online now sees
	// the message via history even if the push below misses them.
	if p.presence.IsOnline(req.ReceiverID) {
		p.pusher.SendToUser(req.ReceiverID, "newMessage", MessageEvent(msg))
	}
	return msg, nil
}

func (p *Pipeline) recordActivity(ctx context.Context, senderID string, msg model.Message) {
	if p.activities == nil {
		return
	}
	// Best effort: the activity feed never fails a send.
	_ = p.activities.CreateActivity(ctx, model.Activity{
		ID:        uuid.NewString(),
		UserID:    senderID,
		Type:      "chat",
		Meta:      map[string]string{"connectionId": msg.ConnectionID, "messageId": msg.ID},
		CreatedAt: msg.CreatedAt,
	})
}

// MessageEvent is the wire shape pushed to websocket clients and returned by
// the send endpoint.
func MessageEvent(msg model.Message) map[string]any {
	return map[string]any{
		"id":           msg.ID,
		"senderId":     msg.SenderID,
		"receiverId":   msg.ReceiverID,
		"connectionId": msg.ConnectionID,
		"text":         msg.Text,
		"image":        msg.Image,
		"createdAt":    msg.CreatedAt,
	}
}
