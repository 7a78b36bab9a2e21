package db

import (
	"errors"
	"fmt"
)

var (
	// ErrKeyNotFound is returned by reads of an absent key.
	ErrKeyNotFound = errors.New("db: key not found")
	// ErrIndexExists is returned when creating an index that is already defined.
	ErrIndexExists = errors.New("db: index already exists")
)

// Operation names carried by Error.
const (
	OpCreateIndex = "create_index"
	OpIndexInfo   = "index_info"
	OpSearch      = "search"
	OpTag         = "tag_document"
	OpCacheGet    = "cache_get"
	OpCachePut    = "cache_put"
)

// Error annotates a driver failure with the operation and, when there is
// one, the key it touched.
type Error struct {
	Op  string
	Key string
	Err error
}

func (e *Error) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("db %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("db %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
