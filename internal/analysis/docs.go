package analysis

import (
	"sort"
	"strings"

	"github.com/jward/luasense/internal/syntax"
)

// docIndex maps qualified (M.load) and unqualified (load) names to the
// comment block written above their declaration.
type docIndex struct {
	byID map[string]string
}

// Lookup returns the description registered for id.
func (d *docIndex) Lookup(id string) (string, bool) {
	if d == nil || id == "" {
		return "", false
	}
	s, ok := d.byID[id]
	return s, ok
}

// correlateDocs walks nodes in source order. Consecutive comments form a
// block that is consumed by the next function declaration or assignment; a
// local statement discards it.
func correlateDocs(nodes []*syntax.Node) *docIndex {
	sorted := append([]*syntax.Node(nil), nodes...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Start != sorted[j].Start {
			return sorted[i].Start < sorted[j].Start
		}
		// Parents before the children they start with.
		return sorted[i].End > sorted[j].End
	})

	d := &docIndex{byID: make(map[string]string)}
	var block []string
	var last syntax.Kind
	for _, n := range sorted {
		switch n.Kind {
		case syntax.Comment:
			if last != syntax.Comment {
				block = block[:0]
			}
			if line := docLine(n.Value); line != "" {
				block = append(block, line)
			}
		case syntax.FunctionDeclaration, syntax.AssignmentStatement:
			if len(block) == 0 {
				break
			}
			text := strings.Join(block, "\n")
			qid := qualifiedName(declTarget(n))
			if _, taken := d.byID[qid]; qid != "" && !taken {
				d.byID[qid] = text
				if id := lastSegment(qid); id != qid {
					d.byID[id] = text
				}
			}
			block = block[:0]
		case syntax.LocalStatement:
			block = block[:0]
		}
		last = n.Kind
	}
	return d
}

// docLine drops LuaDoc tags from a comment line; they type the
// declaration rather than describe it.
func docLine(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "@") {
		return ""
	}
	return s
}

func declTarget(n *syntax.Node) *syntax.Node {
	if n.Kind == syntax.AssignmentStatement {
		if len(n.Variables) == 0 {
			return nil
		}
		return n.Variables[0]
	}
	return n.Identifier
}

// qualifiedName renders a dotted path for identifiers and member chains;
// method declarations use "." like fields.
func qualifiedName(n *syntax.Node) string {
	if n == nil {
		return ""
	}
	switch n.Kind {
	case syntax.Identifier:
		return n.Name
	case syntax.MemberExpression:
		if n.Identifier == nil {
			return ""
		}
		base := qualifiedName(n.Base)
		if base == "" {
			return n.Identifier.Name
		}
		return base + "." + n.Identifier.Name
	case syntax.IndexExpression:
		if n.Index == nil || n.Index.Kind != syntax.StringLiteral {
			return ""
		}
		base := qualifiedName(n.Base)
		if base == "" {
			return n.Index.Value
		}
		return base + "." + n.Index.Value
	}
	return ""
}

func lastSegment(qid string) string {
	if i := strings.LastIndexByte(qid, '.'); i >= 0 {
		return qid[i+1:]
	}
	return qid
}
