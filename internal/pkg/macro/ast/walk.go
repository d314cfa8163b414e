// Copyright (c) 2024, xbuild contributors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package ast

// Walk performs an iterative, depth-first traversal of root's
// subtree, invoking visit on every node in source order (spec.md
// §4.D: "iterative stack, depth-first, children reversed for
// pop-order = source order"). A node's children are pushed onto the
// stack in reverse so the left-most child pops first.
//
// visit returns whether Walk should descend into that node's
// children; returning false prunes the subtree (used once a macro
// site's enclosing statement has already been fully recognized and
// replaced, so the walk does not re-visit text that is being
// rewritten wholesale).
func Walk(root Node, visit func(Node) bool) {
	if !root.Valid() {
		return
	}

	stack := []Node{root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if !visit(n) {
			continue
		}

		count := n.ChildCount()
		for i := count - 1; i >= 0; i-- {
			if c, ok := n.Child(i); ok {
				stack = append(stack, c)
			}
		}
	}
}
