package harvest

import (
	"path"
	"path/filepath"
	"strings"
)

// Suffix maps a child path template to the category folder it lands in.
type Suffix struct {
	Path     string
	Category string
}

// Planner derives child DownloadTargets from a top-level URL and its
// Identifiers. It is a pure function of its inputs.
type Planner struct {
	root     string
	docName  string
	suffixes []Suffix
}

// NewPlanner builds a Planner writing under root. docName is the trailing
// document name stripped from the top-level URL to form the child prefix.
func NewPlanner(root, docName string, suffixes []Suffix) *Planner {
	return &Planner{
		root:     root,
		docName:  docName,
		suffixes: append([]Suffix(nil), suffixes...),
	}
}

// Plan returns one target per (identifier, suffix) pair.
func (p *Planner) Plan(topURL string, ids []Identifier) []DownloadTarget {
	prefix := strings.TrimSuffix(topURL, p.docName)
	targets := make([]DownloadTarget, 0, len(ids)*len(p.suffixes))
	for _, id := range ids {
		for _, s := range p.suffixes {
			targets = append(targets, DownloadTarget{
				URL:      prefix + string(id) + s.Path,
				Path:     p.TargetPath(id, s),
				Category: s.Category,
			})
		}
	}
	return targets
}

// TargetPath is root/category/{id}_{basename(suffix)}.
func (p *Planner) TargetPath(id Identifier, s Suffix) string {
	name := string(id) + "_" + path.Base(s.Path)
	return filepath.Join(p.root, s.Category, name)
}

// Categories lists the distinct category folders in suffix order.
func (p *Planner) Categories() []string {
	seen := make(map[string]struct{}, len(p.suffixes))
	out := make([]string, 0, len(p.suffixes))
	for _, s := range p.suffixes {
		if _, ok := seen[s.Category]; ok {
			continue
		}
		seen[s.Category] = struct{}{}
		out = append(out, s.Category)
	}
	return out
}
