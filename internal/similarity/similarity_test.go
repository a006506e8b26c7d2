package similarity

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"punctuation collapsed", "Convoyant, LLC v. DeepThink, LLC", "convoyant llc v deepthink llc"},
		{"whitespace squeezed", "State  v.\n Ervin", "state v ervin"},
		{"empty", "", ""},
		{"only punctuation", "..., ---", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.in); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestScore_IdenticalAfterNormalization(t *testing.T) {
	score := Score("Brown v. Board of Education", "brown v board of education")
	if score != 1 {
		t.Errorf("expected 1.0 for normalized-identical names, got %f", score)
	}
}

func TestScore_SimilarNames(t *testing.T) {
	// Corporate suffix drift should stay well above a 0.62 floor.
	score := Score("Convoyant, LLC v. DeepThink, LLC", "Convoyant v. DeepThink Inc.")
	if score < 0.62 {
		t.Errorf("expected similar names above floor, got %f", score)
	}
}

func TestScore_UnrelatedNames(t *testing.T) {
	score := Score("Brown v. Board of Education", "Miranda v. Arizona")
	if score >= 0.62 {
		t.Errorf("expected unrelated names below floor, got %f", score)
	}
}

func TestScore_EmptyInput(t *testing.T) {
	if Score("", "Brown v. Board") != 0 {
		t.Error("expected 0 for empty input")
	}
	if Score("Brown v. Board", "") != 0 {
		t.Error("expected 0 for empty input")
	}
}

func TestLevenshtein(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "abc", 3},
		{"abc", "", 3},
		{"abc", "abc", 0},
		{"kitten", "sitting", 3},
		{"ervin", "irvin", 1},
	}

	for _, tt := range tests {
		if got := levenshtein([]rune(tt.a), []rune(tt.b)); got != tt.want {
			t.Errorf("levenshtein(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}
