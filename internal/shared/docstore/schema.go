package docstore

import (
	"fmt"
	"strings"
	"time"

	apperrors "catalog-service/internal/shared/errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// FieldKind is the value type a schema field accepts.
type FieldKind int

const (
	KindString FieldKind = iota
	KindInt
	KindBool
	KindTime
	KindObjectID
	KindMap
)

func (k FieldKind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindBool:
		return "bool"
	case KindTime:
		return "time"
	case KindObjectID:
		return "objectId"
	case KindMap:
		return "map"
	default:
		return "unknown"
	}
}

// Field describes one stored attribute by its bson name.
type Field struct {
	Name      string
	Kind      FieldKind
	Required  bool
	Immutable bool
}

// Schema is the fixed field set of one collection. The _id field is implicit.
type Schema struct {
	Collection string
	Fields     []Field
}

func (s Schema) field(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// HasField reports whether name is a declared field.
func (s Schema) HasField(name string) bool {
	_, ok := s.field(name)
	return ok
}

// ValidateRecord checks a full record before insert.
func (s Schema) ValidateRecord(doc bson.M) error {
	ve := apperrors.NewValidationErrors()
	for key := range doc {
		if key == "_id" {
			continue
		}
		if !s.HasField(key) {
			ve.Add(key, "unknown field", nil)
		}
	}
	for _, f := range s.Fields {
		v, present := doc[f.Name]
		if f.Required && (!present || isZero(v)) {
			ve.Add(f.Name, "is required", nil)
			continue
		}
		if present && v != nil && !kindMatches(f.Kind, v) {
			ve.Add(f.Name, "must be a "+f.Kind.String(), nil)
		}
	}
	if ve.HasErrors() {
		return ve.ToAppError().WithComponent(s.Collection)
	}
	return nil
}

// ValidatePatch checks a partial update. The id and immutable fields cannot be set.
func (s Schema) ValidatePatch(patch map[string]interface{}) error {
	if len(patch) == 0 {
		return apperrors.NewValidationError("empty update").WithComponent(s.Collection)
	}
	ve := apperrors.NewValidationErrors()
	for key, v := range patch {
		if key == "_id" || key == "id" {
			ve.Add(key, "identifier is immutable", nil)
			continue
		}
		f, ok := s.field(key)
		if !ok {
			ve.Add(key, "unknown field", nil)
			continue
		}
		if f.Immutable {
			ve.Add(key, "field is immutable", nil)
			continue
		}
		if f.Required && isZero(v) {
			ve.Add(key, "cannot be empty", nil)
			continue
		}
		if v != nil && !kindMatches(f.Kind, v) {
			ve.Add(key, "must be a "+f.Kind.String(), nil)
		}
	}
	if ve.HasErrors() {
		return ve.ToAppError().WithComponent(s.Collection)
	}
	return nil
}

// ValidateFilter allows equality on declared fields only. Operator keys and
// document values are rejected so client input cannot smuggle query operators.
func (s Schema) ValidateFilter(filter map[string]interface{}) error {
	ve := apperrors.NewValidationErrors()
	for key, v := range filter {
		if strings.HasPrefix(key, "$") {
			ve.Add(key, "operators are not allowed", nil)
			continue
		}
		f, ok := s.field(key)
		if !ok {
			ve.Add(key, "unknown field", nil)
			continue
		}
		if f.Kind == KindMap || !kindMatches(f.Kind, v) {
			ve.Add(key, fmt.Sprintf("must be a %s value", f.Kind), nil)
		}
	}
	if ve.HasErrors() {
		return ve.ToAppError().WithComponent(s.Collection)
	}
	return nil
}

func kindMatches(kind FieldKind, v interface{}) bool {
	switch kind {
	case KindString:
		_, ok := v.(string)
		return ok
	case KindInt:
		switch v.(type) {
		case int, int32, int64:
			return true
		}
		return false
	case KindBool:
		_, ok := v.(bool)
		return ok
	case KindTime:
		switch v.(type) {
		case time.Time, primitive.DateTime:
			return true
		}
		return false
	case KindObjectID:
		_, ok := v.(primitive.ObjectID)
		return ok
	case KindMap:
		switch v.(type) {
		case map[string]interface{}, bson.M, bson.D:
			return true
		}
		return false
	}
	return false
}

func isZero(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case time.Time:
		return t.IsZero()
	case primitive.DateTime:
		return t.Time().IsZero()
	case primitive.ObjectID:
		return t.IsZero()
	}
	return false
}
