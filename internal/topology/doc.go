// Package topology edits the document tree held in a query.Database.
//
// The tree is stored as two input kinds per node, KindParentInput and
// KindChildrenInput. Tree keeps a mirror of both so edits can be checked
// before they are staged, and every edit commits as one mutation batch.
package topology
