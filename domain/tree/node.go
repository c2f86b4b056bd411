// Package tree implements the document tree model and its operations engine.
//
// A page is a sequence of root nodes; container nodes own their children.
// Every operation takes a tree and returns a new tree reflecting the change;
// none mutate in place, which keeps concurrent reads safe and makes undo/redo
// a matter of holding on to old slices. All mutating operations address nodes
// by id, never by position, because sibling positions are unstable the moment
// another client moves something.
package tree

// Kind identifies the element kind of a node.
type Kind string

const (
	KindSection Kind = "section"
	KindBox     Kind = "box"
	KindText    Kind = "text"
	KindImage   Kind = "image"
	KindButton  Kind = "button"
)

// Variant is the closed container/leaf classification of a Kind.
type Variant int

const (
	VariantLeaf Variant = iota
	VariantContainer
)

// Variant reports whether the kind is a container or a leaf.
func (k Kind) Variant() Variant {
	switch k {
	case KindSection, KindBox:
		return VariantContainer
	case KindText, KindImage, KindButton:
		return VariantLeaf
	default:
		return VariantLeaf
	}
}

// IsContainer reports whether nodes of this kind may own children.
func (k Kind) IsContainer() bool {
	return k.Variant() == VariantContainer
}

// Known reports whether the kind is one of the defined element kinds.
func (k Kind) Known() bool {
	switch k {
	case KindSection, KindBox, KindText, KindImage, KindButton:
		return true
	}
	return false
}

// StyleProps is a property bag of visual attributes for one breakpoint.
type StyleProps map[string]string

// Node is one element in the document tree.
//
// ParentID is a back-reference, not an ownership pointer: ownership lives in
// the parent's Children slice, and a node appears in exactly one parent's
// children (or at the page root, with ParentID empty).
type Node struct {
	ID           string                `json:"id" validate:"required"`
	Kind         Kind                  `json:"type" validate:"required"`
	ParentID     string                `json:"parentId,omitempty"`
	Order        int                   `json:"order"`
	Content      string                `json:"content,omitempty"`
	Settings     map[string]any        `json:"settings,omitempty"`
	Styles       map[string]StyleProps `json:"styles,omitempty"`
	StyleClasses string                `json:"computedStyleClasses,omitempty"`
	Children     []Node                `json:"children,omitempty"`
}

// Clone returns a deep copy of the node and its subtree.
func (n Node) Clone() Node {
	out := n
	if n.Settings != nil {
		out.Settings = make(map[string]any, len(n.Settings))
		for k, v := range n.Settings {
			out.Settings[k] = v
		}
	}
	if n.Styles != nil {
		out.Styles = make(map[string]StyleProps, len(n.Styles))
		for bp, props := range n.Styles {
			cp := make(StyleProps, len(props))
			for k, v := range props {
				cp[k] = v
			}
			out.Styles[bp] = cp
		}
	}
	if n.Children != nil {
		out.Children = CloneTree(n.Children)
	}
	return out
}

// CloneTree returns a deep copy of a sequence of nodes.
func CloneTree(nodes []Node) []Node {
	if nodes == nil {
		return nil
	}
	out := make([]Node, len(nodes))
	for i, n := range nodes {
		out[i] = n.Clone()
	}
	return out
}
