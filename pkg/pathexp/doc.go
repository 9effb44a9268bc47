// Package pathexp parses and evaluates the path expressions that address
// locations inside structured values.
//
// An expression starts at the root "$" and is followed by segments:
//
//	$.user.name       field access
//	$['first name']   quoted field access
//	$.items[0]        array index
//	$.items[*]        any array index
//	$.items.*         any field or index
//
// Patterns (which may contain wildcards) are matched against concrete paths
// (which never do). A pattern matches a concrete path when it aligns with a
// prefix of that path, so rules declared on a node also apply to the node's
// descendants. Each successful match reports a Specificity used to pick the
// most specific pattern among several candidates.
package pathexp
