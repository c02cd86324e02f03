package models

import "time"

// Flashcard is a generated question/answer card. IDs are derived from the
// producing job id, so re-running an attempt overwrites rather than
// duplicates.
type Flashcard struct {
	ID          string    `json:"id"`
	PrincipalID string    `json:"principal_id"`
	Front       string    `json:"front"`
	Back        string    `json:"back"`
	TreeID      string    `json:"tree_id,omitempty"`
	SourceJobID string    `json:"source_job_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// Distractor holds plausible wrong answers for a flashcard's quiz mode.
type Distractor struct {
	ID          string    `json:"id"`
	PrincipalID string    `json:"principal_id"`
	FlashcardID string    `json:"flashcard_id"`
	Options     []string  `json:"options"`
	SourceJobID string    `json:"source_job_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// TreeNode is one topic in a learning tree. A node without children is a
// leaf and receives its own flashcard-generation child job.
type TreeNode struct {
	Title    string     `json:"title"`
	Summary  string     `json:"summary,omitempty"`
	Children []TreeNode `json:"children,omitempty"`
}

// IsLeaf reports whether the node has no children.
func (n *TreeNode) IsLeaf() bool {
	return len(n.Children) == 0
}

// LearningTree is a hierarchical topic breakdown generated for a principal.
type LearningTree struct {
	ID          string     `json:"id"`
	PrincipalID string     `json:"principal_id"`
	Topic       string     `json:"topic"`
	Nodes       []TreeNode `json:"nodes"`
	SourceJobID string     `json:"source_job_id"`
	CreatedAt   time.Time  `json:"created_at"`
}

// NodeCount returns the total number of nodes in the tree.
func (t *LearningTree) NodeCount() int {
	count := 0
	var walk func(nodes []TreeNode)
	walk = func(nodes []TreeNode) {
		for i := range nodes {
			count++
			walk(nodes[i].Children)
		}
	}
	walk(t.Nodes)
	return count
}

// Leaves returns every leaf node in depth-first order.
func (t *LearningTree) Leaves() []TreeNode {
	var leaves []TreeNode
	var walk func(nodes []TreeNode)
	walk = func(nodes []TreeNode) {
		for i := range nodes {
			if nodes[i].IsLeaf() {
				leaves = append(leaves, nodes[i])
			} else {
				walk(nodes[i].Children)
			}
		}
	}
	walk(t.Nodes)
	return leaves
}
