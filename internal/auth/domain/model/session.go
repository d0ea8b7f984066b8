package model

import (
	"encoding/json"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Session is server-side state keyed by an opaque token.
// It is live while now < ExpiresAt.
type Session struct {
	ID        primitive.ObjectID     `json:"-" bson:"_id,omitempty"`
	Token     string                 `json:"-" bson:"token"`
	UserID    string                 `json:"user_id" bson:"user_id"`
	CreatedAt time.Time              `json:"created_at" bson:"created_at"`
	ExpiresAt time.Time              `json:"expires_at" bson:"expires_at"`
	Payload   map[string]interface{} `json:"payload" bson:"payload"`
	Version   int64                  `json:"-" bson:"version"`
}

// IsExpired reports whether the session is dead at now.
func (s *Session) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Counter reads an integer payload value, zero when absent or not numeric.
func (s *Session) Counter(key string) int64 {
	if s.Payload == nil {
		return 0
	}
	switch v := s.Payload[key].(type) {
	case int:
		return int64(v)
	case int32:
		return int64(v)
	case int64:
		return v
	case float64:
		return int64(v)
	case json.Number:
		n, _ := v.Int64()
		return n
	}
	return 0
}

// ClonePayload returns a shallow copy of the payload, never nil.
func (s *Session) ClonePayload() map[string]interface{} {
	out := make(map[string]interface{}, len(s.Payload))
	for k, v := range s.Payload {
		out[k] = v
	}
	return out
}
