package graph

import "errors"

// ErrInvalidQuery is the spec §7 "InvalidQuery" error kind: a malformed
// query tree, such as a BoolNot with no operand or an unrecognized Query
// implementation.
var ErrInvalidQuery = errors.New("graph: invalid query")
