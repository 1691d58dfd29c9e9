// Package containment resolves which group a dragged node belongs to.
//
// A node is contained by a group when the node's center point lies inside
// the group's absolute bounds. Committing a drag converts the node's position
// into the frame of its new parent, or back to canvas space when it leaves
// every group.
package containment
