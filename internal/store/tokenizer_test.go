package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{
			name:  "lowercases and splits on punctuation",
			input: "Weekly Review: Garden Notes",
			want:  []string{"weekly", "review", "garden", "notes"},
		},
		{
			name:  "drops stop words",
			input: "the quick fox and the lazy dog",
			want:  []string{"quick", "fox", "lazy", "dog"},
		},
		{
			name:  "drops single-character tokens",
			input: "a b compost",
			want:  []string{"compost"},
		},
		{
			name:  "keeps digits",
			input: "meeting 2024 notes",
			want:  []string{"meeting", "2024", "notes"},
		},
		{
			name:  "unicode letters survive",
			input: "café Übung",
			want:  []string{"café", "übung"},
		},
		{
			name:  "empty input",
			input: "",
			want:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Tokenize(tt.input)
			if tt.want == nil {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestUniqueTerms(t *testing.T) {
	got := UniqueTerms("garden garden soil Garden soil")
	assert.Equal(t, []string{"garden", "soil"}, got)
}
