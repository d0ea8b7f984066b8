package docstore

import (
	"strings"

	apperrors "catalog-service/internal/shared/errors"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ParseID turns a client-supplied identifier into an ObjectID.
// Anything that is not a 24-character hex string is rejected with an InvalidID error.
func ParseID(raw string) (primitive.ObjectID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return primitive.NilObjectID, apperrors.NewInvalidIDError(raw)
	}
	id, err := primitive.ObjectIDFromHex(raw)
	if err != nil {
		return primitive.NilObjectID, apperrors.NewInvalidIDError(raw).WithCause(err)
	}
	return id, nil
}

// NewID returns a fresh ObjectID.
func NewID() primitive.ObjectID {
	return primitive.NewObjectID()
}
