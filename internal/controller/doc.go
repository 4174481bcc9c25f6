// Package controller translates between tree events and record edits.
//
// Tree changes become records saved to the record cache under
// recordstore.OriginController. Cache edits from any other origin become one
// treestore Apply or DeleteItems call. The controller ignores edits tagged
// with its own origin, so a local edit reaches the cache exactly once and
// never comes back to the tree.
package controller
