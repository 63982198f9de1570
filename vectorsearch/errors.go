package vectorsearch

import "errors"

// ErrInvalidQuery is the spec §7 "InvalidQuery" error kind: a query shape
// the flat Formula model cannot express, such as ANDing a field prefilter
// onto an OR-rooted filter (see composeFormula).
var ErrInvalidQuery = errors.New("vectorsearch: invalid query")
