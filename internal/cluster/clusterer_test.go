package cluster

import (
	"strings"
	"testing"

	"github.com/casetrace/casetrace/internal/extract"
	"github.com/casetrace/casetrace/internal/model"
)

func clusterText(t *testing.T, cfg model.ClusterConfig, text string) ([]model.Citation, []*model.Cluster) {
	t.Helper()
	citations := extract.NewExtractor().Extract(text)
	extract.NewNameResolver().Resolve(text, citations)
	clusters := New(cfg).Cluster(text, citations)
	return citations, clusters
}

func TestClusterParallelRun(t *testing.T) {
	text := "State v. Gamble, 154 Wn.2d 457, 114 P.3d 646 (2005)."
	citations, clusters := clusterText(t, model.ClusterConfig{}, text)

	if len(clusters) != 1 {
		t.Fatalf("got %d clusters, want 1", len(clusters))
	}
	cl := clusters[0]
	if len(cl.Members) != 2 {
		t.Fatalf("cluster has %d members, want 2", len(cl.Members))
	}
	if cl.CaseName != "State v. Gamble" || cl.Year != "2005" {
		t.Errorf("cluster identity = %q / %q", cl.CaseName, cl.Year)
	}
	for _, c := range citations {
		if c.ClusterID != cl.ID {
			t.Errorf("%s assigned to %q", c.Text, c.ClusterID)
		}
	}
}

func TestClusterTripleParallel(t *testing.T) {
	text := "Miranda v. Arizona, 384 U.S. 436, 86 S. Ct. 1602, 16 L. Ed. 2d 694 (1966)."
	_, clusters := clusterText(t, model.ClusterConfig{}, text)

	if len(clusters) != 1 {
		t.Fatalf("got %d clusters, want 1", len(clusters))
	}
	if len(clusters[0].Members) != 3 {
		t.Errorf("got %d members, want 3", len(clusters[0].Members))
	}
}

func TestClusterDistantRepeatStaysSeparate(t *testing.T) {
	// The same reporter citation far apart in unrelated prose must not merge.
	filler := strings.Repeat("The court considered the record in detail. ", 50)
	text := "State v. Ervin, 169 Wn.2d 815 (2010). " + filler + " An unrelated passage also mentions 169 Wn.2d 815."
	_, clusters := clusterText(t, model.ClusterConfig{}, text)

	if len(clusters) != 2 {
		t.Fatalf("got %d clusters, want 2", len(clusters))
	}
}

func TestClusterShortFormJoinsWithinWindow(t *testing.T) {
	text := "State v. Ervin, 169 Wn.2d 815, 239 P.3d 354 (2010), governs. " +
		"The State reads the statute differently. Ervin, 169 Wn.2d at 820."
	_, clusters := clusterText(t, model.ClusterConfig{}, text)

	if len(clusters) != 1 {
		t.Fatalf("got %d clusters, want 1", len(clusters))
	}
	if len(clusters[0].Members) != 3 {
		t.Errorf("got %d members, want 3", len(clusters[0].Members))
	}
}

func TestClusterAdjacentDifferentNamesStaySeparate(t *testing.T) {
	// Comma-separated string cite of two different cases: adjacency alone
	// must not merge conflicting names.
	citations := []model.Citation{
		{Text: "10 Wn.2d 100", Span: model.Span{Start: 0, End: 12}, ExtractedCaseName: "Adams v. Baker"},
		{Text: "20 Wn.2d 200", Span: model.Span{Start: 14, End: 26}, ExtractedCaseName: "Carter v. Davis"},
	}
	text := "10 Wn.2d 100, 20 Wn.2d 200"

	clusters := New(model.ClusterConfig{}).Cluster(text, citations)
	if len(clusters) != 2 {
		t.Fatalf("got %d clusters, want 2", len(clusters))
	}
}

func TestClusterNeutralAndRegionalPair(t *testing.T) {
	text := "State v. Rowan, 2017 UT 88, 416 P.3d 566 (2017)."
	_, clusters := clusterText(t, model.ClusterConfig{}, text)

	if len(clusters) != 1 {
		t.Fatalf("got %d clusters, want 1", len(clusters))
	}
	if clusters[0].CaseName != "State v. Rowan" {
		t.Errorf("cluster name = %q", clusters[0].CaseName)
	}
}

func TestClusterFirstSeenNameWins(t *testing.T) {
	citations := []model.Citation{
		{Text: "1 A.3d 1", Span: model.Span{Start: 0, End: 8}, ExtractedCaseName: "Smith v. Jones"},
		{Text: "2 A.3d 2", Span: model.Span{Start: 10, End: 18}, ExtractedCaseName: "Smith v Jones"},
	}
	text := "1 A.3d 1, 2 A.3d 2"

	clusters := New(model.ClusterConfig{}).Cluster(text, citations)
	if len(clusters) != 1 {
		t.Fatalf("got %d clusters, want 1", len(clusters))
	}
	if clusters[0].CaseName != "Smith v. Jones" {
		t.Errorf("representative name = %q, want the first seen", clusters[0].CaseName)
	}
}

func TestClusterIDsAreStableAndOrdered(t *testing.T) {
	text := "Adams v. Baker, 10 Wn.2d 100 (1950). Unrelated text follows here. Carter v. Davis, 20 P.3d 200 (1960)."
	_, clusters := clusterText(t, model.ClusterConfig{}, text)

	if len(clusters) != 2 {
		t.Fatalf("got %d clusters, want 2", len(clusters))
	}
	if clusters[0].ID != "cluster-1" || clusters[1].ID != "cluster-2" {
		t.Errorf("ids = %s, %s", clusters[0].ID, clusters[1].ID)
	}
	if clusters[0].Members[0].Span.Start > clusters[1].Members[0].Span.Start {
		t.Error("clusters out of document order")
	}
}

func TestClusterEmptyInput(t *testing.T) {
	if clusters := New(model.ClusterConfig{}).Cluster("", nil); clusters != nil {
		t.Errorf("got %v from empty input", clusters)
	}
}
