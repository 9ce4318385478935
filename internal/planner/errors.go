package planner

import "errors"

// ErrOrderRequired reports cursor pagination over a table with no primary
// key, no id column, and no explicit orderBy.
var ErrOrderRequired = errors.New("cursor pagination requires orderable columns")
