package vectorsearch

// TagOp is the boolean connective of a TagExpr node.
type TagOp int

const (
	TagLeaf TagOp = iota
	TagAnd
	TagOr
	TagNot
)

// TagExpr is a recursive boolean matcher over a segment's tag set, used to
// restrict a multi-segment search to segments carrying (or lacking) given
// tags — e.g. a shard-level replication group or a resource-kind partition
// (spec §4.6 "segment tag expression").
type TagExpr struct {
	Op       TagOp
	Tag      string
	Children []TagExpr
}

// Leaf builds a single-tag match.
func Leaf(tag string) TagExpr { return TagExpr{Op: TagLeaf, Tag: tag} }

// And combines expressions conjunctively.
func And(children ...TagExpr) TagExpr { return TagExpr{Op: TagAnd, Children: children} }

// Or combines expressions disjunctively.
func Or(children ...TagExpr) TagExpr { return TagExpr{Op: TagOr, Children: children} }

// Not negates an expression.
func Not(child TagExpr) TagExpr { return TagExpr{Op: TagNot, Children: []TagExpr{child}} }

// Matches reports whether the segment's tag set satisfies the expression.
func (e TagExpr) Matches(tags map[string]bool) bool {
	switch e.Op {
	case TagLeaf:
		return tags[e.Tag]
	case TagAnd:
		for _, c := range e.Children {
			if !c.Matches(tags) {
				return false
			}
		}
		return true
	case TagOr:
		for _, c := range e.Children {
			if c.Matches(tags) {
				return true
			}
		}
		return false
	case TagNot:
		return !e.Children[0].Matches(tags)
	default:
		return false
	}
}
