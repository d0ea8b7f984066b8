package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestItemPatch_Fields(t *testing.T) {
	title := "  Blue in Green "
	assert.Equal(t, map[string]interface{}{"title": "Blue in Green"}, ItemPatch{Title: &title}.Fields())
	assert.Empty(t, ItemPatch{}.Fields())
}

func TestListQuery_Filter(t *testing.T) {
	assert.Empty(t, ListQuery{}.Filter())
	assert.Equal(t, map[string]interface{}{"artist": "Miles Davis"}, ListQuery{Artist: "Miles Davis"}.Filter())
}
