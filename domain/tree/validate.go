package tree

import "fmt"

// ValidationResult reports the outcome of Validate. Violations are collected
// as distinct error strings rather than raised, so callers decide whether to
// abort, log, or force a resync.
type ValidationResult struct {
	OK     bool
	Errors []string
}

// Validate re-checks the tree invariants:
//
//  1. every node id is unique within the document
//  2. parentId matches the container that actually lists the node
//  3. the tree has no cycles (implied by 2 over an ownership tree)
//  4. only container kinds carry children
//
// plus schema conformance of every node (non-empty id, known kind).
func Validate(tree []Node) ValidationResult {
	seen := make(map[string]bool)
	var errs []string
	walkValidate(tree, "", seen, &errs)
	return ValidationResult{OK: len(errs) == 0, Errors: errs}
}

func walkValidate(nodes []Node, parentID string, seen map[string]bool, errs *[]string) {
	for i := range nodes {
		n := &nodes[i]
		if n.ID == "" {
			*errs = append(*errs, fmt.Sprintf("node at index %d under parent %q has empty id", i, parentID))
			continue
		}
		if seen[n.ID] {
			*errs = append(*errs, fmt.Sprintf("duplicate node id %q", n.ID))
		}
		seen[n.ID] = true

		if !n.Kind.Known() {
			*errs = append(*errs, fmt.Sprintf("node %q has unknown kind %q", n.ID, n.Kind))
		}
		if n.ParentID != parentID {
			*errs = append(*errs, fmt.Sprintf("node %q has parentId %q but lives under %q", n.ID, n.ParentID, parentID))
		}
		if len(n.Children) > 0 && !n.Kind.IsContainer() {
			*errs = append(*errs, fmt.Sprintf("leaf node %q (%s) carries %d children", n.ID, n.Kind, len(n.Children)))
		}
		walkValidate(n.Children, n.ID, seen, errs)
	}
}
