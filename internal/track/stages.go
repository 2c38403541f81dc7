package track

import (
	"regexp"
	"strings"

	"github.com/kalambet/wikigen/internal/wiki"
)

// chapterPattern matches fan-out stage names of the form
// "<parent>_chapter-<n>".
var chapterPattern = regexp.MustCompile(`^(.+)_chapter-\d+$`)

// StageGroup is a parent stage together with its chapter sub-stages.
// The parent is synthesized when no stage with the parent name exists
// in the input.
type StageGroup struct {
	Parent   wiki.Stage
	Children []wiki.Stage
}

// GroupStages partitions a flat stage list into parent/chapter groups
// and standalone stages. Group order follows first appearance of a
// group's parent or first child; children and standalone stages keep
// source order.
func GroupStages(stages []wiki.Stage) (groups []StageGroup, standalone []wiki.Stage) {
	byParent := make(map[string]int)

	groupFor := func(parent string) *StageGroup {
		if i, ok := byParent[parent]; ok {
			return &groups[i]
		}
		byParent[parent] = len(groups)
		groups = append(groups, StageGroup{Parent: wiki.Stage{Name: parent}})
		return &groups[len(groups)-1]
	}

	hasChapters := func(name string) bool {
		prefix := name + "_chapter-"
		for _, other := range stages {
			if strings.HasPrefix(other.Name, prefix) {
				return true
			}
		}
		return false
	}

	for _, stage := range stages {
		if m := chapterPattern.FindStringSubmatch(stage.Name); m != nil {
			g := groupFor(m[1])
			g.Children = append(g.Children, stage)
			continue
		}
		if hasChapters(stage.Name) {
			g := groupFor(stage.Name)
			g.Parent = stage
			continue
		}
		standalone = append(standalone, stage)
	}

	return groups, standalone
}

// FilterStages returns the stages whose name or description contains
// term, case-insensitively. A blank term returns the input unchanged.
func FilterStages(stages []wiki.Stage, term string) []wiki.Stage {
	term = strings.TrimSpace(term)
	if term == "" {
		return stages
	}
	term = strings.ToLower(term)

	var out []wiki.Stage
	for _, stage := range stages {
		if strings.Contains(strings.ToLower(stage.Name), term) ||
			strings.Contains(strings.ToLower(stage.Description), term) {
			out = append(out, stage)
		}
	}
	return out
}
