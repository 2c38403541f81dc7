package track

import (
	"testing"

	"github.com/kalambet/wikigen/internal/wiki"
)

func stageNames(stages []wiki.Stage) []string {
	names := make([]string, len(stages))
	for i, s := range stages {
		names[i] = s.Name
	}
	return names
}

func TestGroupStagesWithRealParent(t *testing.T) {
	stages := []wiki.Stage{
		{Name: "fetching_repository", Completed: true},
		{Name: "content_generation", Description: "Generating documentation content"},
		{Name: "content_generation_chapter-1", Completed: true},
		{Name: "content_generation_chapter-2"},
		{Name: "quality_check"},
	}

	groups, standalone := GroupStages(stages)

	if len(groups) != 1 {
		t.Fatalf("got %d groups, want 1", len(groups))
	}
	g := groups[0]
	if g.Parent.Name != "content_generation" {
		t.Errorf("parent name = %q", g.Parent.Name)
	}
	if g.Parent.Description != "Generating documentation content" {
		t.Error("real parent stage was not kept")
	}
	got := stageNames(g.Children)
	want := []string{"content_generation_chapter-1", "content_generation_chapter-2"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("children = %v, want %v", got, want)
	}

	gotStandalone := stageNames(standalone)
	if len(gotStandalone) != 2 || gotStandalone[0] != "fetching_repository" || gotStandalone[1] != "quality_check" {
		t.Errorf("standalone = %v", gotStandalone)
	}
}

func TestGroupStagesSynthesizesParent(t *testing.T) {
	stages := []wiki.Stage{
		{Name: "analyze_chapter-1", Completed: true},
		{Name: "analyze_chapter-2"},
	}

	groups, standalone := GroupStages(stages)

	if len(standalone) != 0 {
		t.Errorf("standalone = %v, want none", stageNames(standalone))
	}
	if len(groups) != 1 {
		t.Fatalf("got %d groups, want 1", len(groups))
	}
	g := groups[0]
	if g.Parent.Name != "analyze" {
		t.Errorf("parent name = %q, want %q", g.Parent.Name, "analyze")
	}
	if g.Parent.Completed {
		t.Error("synthetic parent must not be marked completed")
	}
	if g.Parent.ExecutionTime != nil {
		t.Error("synthetic parent must have no execution time")
	}
}

func TestGroupStagesParentAfterChildren(t *testing.T) {
	stages := []wiki.Stage{
		{Name: "analyze_chapter-1"},
		{Name: "analyze", Description: "Analyzing code"},
	}

	groups, _ := GroupStages(stages)
	if len(groups) != 1 {
		t.Fatalf("got %d groups, want 1", len(groups))
	}
	if groups[0].Parent.Description != "Analyzing code" {
		t.Error("real parent appearing after its children was not attached")
	}
	if len(groups[0].Children) != 1 {
		t.Errorf("got %d children, want 1", len(groups[0].Children))
	}
}

func TestGroupStagesIdempotent(t *testing.T) {
	stages := []wiki.Stage{
		{Name: "fetching_repository"},
		{Name: "content_generation"},
		{Name: "content_generation_chapter-1"},
		{Name: "content_generation_chapter-2"},
		{Name: "optimization"},
	}

	groups, standalone := GroupStages(stages)

	// Recombine parents and children and group again.
	var flattened []wiki.Stage
	for _, g := range groups {
		flattened = append(flattened, g.Parent)
		flattened = append(flattened, g.Children...)
	}
	flattened = append(flattened, standalone...)

	groups2, standalone2 := GroupStages(flattened)
	if len(groups2) != len(groups) {
		t.Fatalf("regrouping changed group count: %d vs %d", len(groups2), len(groups))
	}
	for i := range groups {
		if groups2[i].Parent.Name != groups[i].Parent.Name {
			t.Errorf("group %d parent = %q, want %q", i, groups2[i].Parent.Name, groups[i].Parent.Name)
		}
		if len(groups2[i].Children) != len(groups[i].Children) {
			t.Errorf("group %d child count = %d, want %d", i, len(groups2[i].Children), len(groups[i].Children))
		}
	}
	if len(standalone2) != len(standalone) {
		t.Errorf("regrouping changed standalone count: %d vs %d", len(standalone2), len(standalone))
	}
}

func TestGroupStagesDeterministic(t *testing.T) {
	stages := []wiki.Stage{
		{Name: "b_chapter-1"},
		{Name: "a_chapter-1"},
		{Name: "b_chapter-2"},
		{Name: "a_chapter-2"},
	}

	first, _ := GroupStages(stages)
	for range 20 {
		groups, _ := GroupStages(stages)
		for i := range first {
			if groups[i].Parent.Name != first[i].Parent.Name {
				t.Fatalf("group order not stable: %q vs %q", groups[i].Parent.Name, first[i].Parent.Name)
			}
		}
	}
	if first[0].Parent.Name != "b" || first[1].Parent.Name != "a" {
		t.Errorf("groups must follow first appearance order, got %q, %q", first[0].Parent.Name, first[1].Parent.Name)
	}
}

func TestFilterStages(t *testing.T) {
	stages := []wiki.Stage{
		{Name: "fetching_repository", Description: "Fetching repository structure and files"},
		{Name: "code_analysis", Description: "Analyzing code structure and components"},
		{Name: "quality_check", Description: "Performing final quality checks"},
	}

	tests := []struct {
		name string
		term string
		want []string
	}{
		{"by name", "quality", []string{"quality_check"}},
		{"by description", "structure", []string{"fetching_repository", "code_analysis"}},
		{"case insensitive", "QUALITY", []string{"quality_check"}},
		{"no match", "zzz", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := stageNames(FilterStages(stages, tt.term))
			if len(got) != len(tt.want) {
				t.Fatalf("FilterStages(%q) = %v, want %v", tt.term, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("FilterStages(%q) = %v, want %v", tt.term, got, tt.want)
				}
			}
		})
	}
}

func TestFilterStagesBlankTermReturnsInput(t *testing.T) {
	stages := []wiki.Stage{
		{Name: "fetching_repository"},
		{Name: "quality_check"},
	}

	for _, term := range []string{"", "   ", "\t"} {
		got := FilterStages(stages, term)
		if len(got) != len(stages) {
			t.Fatalf("FilterStages(%q) changed length", term)
		}
		if &got[0] != &stages[0] {
			t.Errorf("FilterStages(%q) must return the input slice unchanged", term)
		}
	}
}
