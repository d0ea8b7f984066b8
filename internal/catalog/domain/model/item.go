package model

import (
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Item is one catalog entry.
type Item struct {
	ID        primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	Title     string             `json:"title" bson:"title"`
	Artist    string             `json:"artist" bson:"artist"`
	CreatedAt time.Time          `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time          `json:"updated_at" bson:"updated_at"`
}

// ItemInput is the client payload for creating an item.
type ItemInput struct {
	Title  string `json:"title" form:"title"`
	Artist string `json:"artist" form:"artist"`
}

// ItemPatch is a partial update. Nil fields are left alone.
type ItemPatch struct {
	Title  *string `json:"title" form:"title"`
	Artist *string `json:"artist" form:"artist"`
}

// Fields returns the stored field names and values the patch sets.
func (p ItemPatch) Fields() map[string]interface{} {
	fields := make(map[string]interface{}, 2)
	if p.Title != nil {
		fields["title"] = strings.TrimSpace(*p.Title)
	}
	if p.Artist != nil {
		fields["artist"] = strings.TrimSpace(*p.Artist)
	}
	return fields
}

// ListQuery selects and orders items. Zero values mean "any".
type ListQuery struct {
	Title    string
	Artist   string
	SortBy   string
	SortDesc bool
	Limit    int64
}

// Filter returns the equality filter for the query.
func (q ListQuery) Filter() map[string]interface{} {
	filter := map[string]interface{}{}
	if q.Title != "" {
		filter["title"] = q.Title
	}
	if q.Artist != "" {
		filter["artist"] = q.Artist
	}
	return filter
}
