package chunk

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chunkDoc(t *testing.T, path, content string, maxChars int) []*Chunk {
	t.Helper()
	opts := MarkdownChunkerOptions{MaxChunkChars: maxChars}
	chunker := NewMarkdownChunkerWithOptions(opts)
	chunks, err := chunker.Chunk(context.Background(), &FileInput{Path: path, Content: []byte(content)})
	require.NoError(t, err)
	return chunks
}

func TestChunk_EmptyDocument(t *testing.T) {
	chunks := chunkDoc(t, "empty.md", "", 0)
	assert.Empty(t, chunks)

	chunks = chunkDoc(t, "blank.md", "  \n\n\t\n", 0)
	assert.Empty(t, chunks)
}

func TestChunk_SingleLineDocument(t *testing.T) {
	chunks := chunkDoc(t, "line.md", "Just one line of text.\n", 0)

	require.Len(t, chunks, 1)
	assert.Equal(t, ChunkTypeParagraph, chunks[0].Type)
	assert.Equal(t, "Just one line of text.", chunks[0].Content)
	assert.Empty(t, chunks[0].HeadingPath)
}

func TestChunk_StructuralCounts(t *testing.T) {
	// 2 headings x 3 paragraphs each: 2 heading chunks + 6 paragraph chunks
	doc := `# First

One.

Two.

Three.

# Second

Four.

Five.

Six.
`
	chunks := chunkDoc(t, "notes.md", doc, 0)
	require.Len(t, chunks, 8)

	var headings, paragraphs int
	for _, ch := range chunks {
		switch ch.Type {
		case ChunkTypeHeading:
			headings++
		case ChunkTypeParagraph:
			paragraphs++
		}
	}
	assert.Equal(t, 2, headings)
	assert.Equal(t, 6, paragraphs)
}

func TestChunk_HeadingPathAccumulates(t *testing.T) {
	doc := `# Projects

## Gardening

Compost notes.

### Spring

Seedlings.

## Cooking

Bread notes.
`
	chunks := chunkDoc(t, "n.md", doc, 0)

	byContent := map[string]*Chunk{}
	for _, ch := range chunks {
		byContent[ch.Content] = ch
	}

	assert.Equal(t, "Projects > Gardening", byContent["Compost notes."].HeadingPath)
	assert.Equal(t, "Projects > Gardening > Spring", byContent["Seedlings."].HeadingPath)
	// Sibling heading clears the deeper level
	assert.Equal(t, "Projects > Cooking", byContent["Bread notes."].HeadingPath)
}

func TestChunk_Determinism(t *testing.T) {
	doc := `---
tags: [a, b]
---

# Title

Some paragraph with enough text to chunk.

Another paragraph.
`
	first := chunkDoc(t, "same.md", doc, 0)
	second := chunkDoc(t, "same.md", doc, 0)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
		assert.Equal(t, first[i].Content, second[i].Content)
		assert.Equal(t, first[i].Type, second[i].Type)
	}
}

func TestChunk_IDsDependOnPath(t *testing.T) {
	doc := "# Title\n\nBody.\n"
	a := chunkDoc(t, "a.md", doc, 0)
	b := chunkDoc(t, "b.md", doc, 0)

	require.Equal(t, len(a), len(b))
	for i := range a {
		assert.NotEqual(t, a[i].ID, b[i].ID)
	}
}

func TestChunk_SizeInvariant(t *testing.T) {
	long := strings.Repeat("word and more text. ", 200)
	doc := "# Big\n\n" + long + "\n\n" + strings.Repeat("x", 900) + "\n"

	chunks := chunkDoc(t, "big.md", doc, 120)
	require.NotEmpty(t, chunks)
	for _, ch := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(ch.Content), 120,
			"chunk %q exceeds limit", ch.Content[:min(40, len(ch.Content))])
	}
}

func TestChunk_OversizedParagraphSplitsToSentences(t *testing.T) {
	doc := "First sentence here. Second sentence follows! Third one asks? Fourth ends.\n"
	chunks := chunkDoc(t, "s.md", doc, 30)

	require.Greater(t, len(chunks), 1)
	for _, ch := range chunks {
		assert.Equal(t, ChunkTypeSentence, ch.Type)
	}
	assert.Equal(t, "First sentence here.", chunks[0].Content)
	assert.Equal(t, "Second sentence follows!", chunks[1].Content)
}

func TestChunk_SentenceBoundaryIgnoresInlineDots(t *testing.T) {
	doc := "Upgrade to v1.2.3 before release. Then restart.\n"
	chunks := chunkDoc(t, "v.md", doc, 35)

	require.Len(t, chunks, 2)
	assert.Equal(t, "Upgrade to v1.2.3 before release.", chunks[0].Content)
	assert.Equal(t, "Then restart.", chunks[1].Content)
}

func TestChunk_FragmentFallback(t *testing.T) {
	// No sentence boundaries at all: must slice to fixed-size fragments
	blob := strings.Repeat("abcdefghij", 50)
	chunks := chunkDoc(t, "blob.md", blob+"\n", 100)

	require.Len(t, chunks, 5)
	for _, ch := range chunks {
		assert.Equal(t, ChunkTypeFragment, ch.Type)
		assert.LessOrEqual(t, utf8.RuneCountInString(ch.Content), 100)
	}
	assert.Equal(t, blob, strings.Join(chunkContents(chunks), ""))
}

func chunkContents(chunks []*Chunk) []string {
	out := make([]string, len(chunks))
	for i, ch := range chunks {
		out[i] = ch.Content
	}
	return out
}

func TestChunk_FrontmatterBecomesChunk(t *testing.T) {
	doc := `---
title: Garden Log
tags: [garden, spring]
rating: 5
---

# Notes

Planted tomatoes.
`
	chunks := chunkDoc(t, "garden.md", doc, 0)
	require.NotEmpty(t, chunks)

	fm := chunks[0]
	assert.Equal(t, ChunkTypeFrontmatter, fm.Type)
	assert.Contains(t, fm.Content, "title: Garden Log")
	assert.Equal(t, "Garden Log", fm.Metadata["title"])
	assert.Equal(t, "garden, spring", fm.Metadata["tags"])
	assert.Equal(t, "5", fm.Metadata["rating"])
}

func TestChunk_MalformedFrontmatterStillIndexed(t *testing.T) {
	doc := "---\n: :bad yaml [\n---\n\nBody text.\n"
	chunks := chunkDoc(t, "bad.md", doc, 0)

	require.Len(t, chunks, 2)
	assert.Equal(t, ChunkTypeFrontmatter, chunks[0].Type)
	assert.Nil(t, chunks[0].Metadata)
	assert.Equal(t, "Body text.", chunks[1].Content)
}

func TestChunk_HeadingsInsideCodeFenceNotStructural(t *testing.T) {
	doc := "# Real\n\n```\n# not a heading\n## also not\n```\n\nAfter fence.\n"
	chunks := chunkDoc(t, "fence.md", doc, 0)

	var headings []string
	for _, ch := range chunks {
		if ch.Type == ChunkTypeHeading {
			headings = append(headings, ch.Content)
		}
	}
	assert.Equal(t, []string{"# Real"}, headings)

	// The fence survives as one atomic paragraph
	var fenced bool
	for _, ch := range chunks {
		if strings.Contains(ch.Content, "# not a heading") {
			fenced = true
			assert.Contains(t, ch.Content, "```")
		}
	}
	assert.True(t, fenced)
}

func TestChunk_UnterminatedFence(t *testing.T) {
	doc := "# Real\n\n```\n# swallowed\nstill code\n\nmore code\n"
	chunks := chunkDoc(t, "open.md", doc, 0)

	for _, ch := range chunks {
		if ch.Type == ChunkTypeHeading {
			assert.Equal(t, "# Real", ch.Content)
		}
	}
}

func TestChunk_FenceWithBlankLinesStaysAtomic(t *testing.T) {
	doc := "# H\n\n```go\nfunc a() {}\n\nfunc b() {}\n```\n\nTail.\n"
	chunks := chunkDoc(t, "code.md", doc, 0)

	var found bool
	for _, ch := range chunks {
		if strings.Contains(ch.Content, "func a()") {
			found = true
			assert.Contains(t, ch.Content, "func b()")
		}
	}
	assert.True(t, found, "fenced block should be one chunk")
}

func TestChunk_PreambleBeforeFirstHeading(t *testing.T) {
	doc := "Intro line before any heading.\n\n# Later\n\nBody.\n"
	chunks := chunkDoc(t, "pre.md", doc, 0)

	require.GreaterOrEqual(t, len(chunks), 3)
	assert.Equal(t, ChunkTypeParagraph, chunks[0].Type)
	assert.Equal(t, "Intro line before any heading.", chunks[0].Content)
	assert.Empty(t, chunks[0].HeadingPath)
}

func TestChunk_PositionsAreSequential(t *testing.T) {
	doc := "---\na: 1\n---\n\n# H\n\nOne.\n\nTwo.\n"
	chunks := chunkDoc(t, "pos.md", doc, 0)

	for i, ch := range chunks {
		assert.Equal(t, i, ch.Position)
	}
}

func TestSupportedExtensions(t *testing.T) {
	c := NewMarkdownChunker()
	assert.Contains(t, c.SupportedExtensions(), ".md")
	assert.Contains(t, c.SupportedExtensions(), ".markdown")
}
