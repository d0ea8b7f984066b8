package model

import "errors"

var ErrItemNotFound = errors.New("item not found")
