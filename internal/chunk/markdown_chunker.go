package chunk

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"gopkg.in/yaml.v3"
)

// MarkdownChunkerOptions configures the markdown chunker behavior.
type MarkdownChunkerOptions struct {
	MaxChunkChars int // Maximum characters per chunk (default: DefaultMaxChunkChars)
}

// MarkdownChunker implements heading-based markdown chunking.
type MarkdownChunker struct {
	options MarkdownChunkerOptions
}

var (
	// Matches headings: # Title, ## Title, etc.
	headingPattern = regexp.MustCompile(`^(#{1,6})\s+(.+)$`)

	// Matches frontmatter: ---\n...\n---
	frontmatterPattern = regexp.MustCompile(`(?s)^---\n(.+?)\n---\n*`)
)

// NewMarkdownChunker creates a new markdown chunker with default options.
func NewMarkdownChunker() *MarkdownChunker {
	return NewMarkdownChunkerWithOptions(MarkdownChunkerOptions{})
}

// NewMarkdownChunkerWithOptions creates a new markdown chunker with custom options.
func NewMarkdownChunkerWithOptions(opts MarkdownChunkerOptions) *MarkdownChunker {
	if opts.MaxChunkChars == 0 {
		opts.MaxChunkChars = DefaultMaxChunkChars
	}
	return &MarkdownChunker{options: opts}
}

// SupportedExtensions returns file extensions this chunker handles.
func (c *MarkdownChunker) SupportedExtensions() []string {
	return []string{".md", ".markdown"}
}

// Chunk splits a markdown document into an ordered chunk sequence.
// Identical input always yields identical chunks and ids.
func (c *MarkdownChunker) Chunk(_ context.Context, file *FileInput) ([]*Chunk, error) {
	content := string(file.Content)

	if strings.TrimSpace(content) == "" {
		return nil, nil
	}

	var chunks []*Chunk
	position := 0

	if match := frontmatterPattern.FindStringSubmatch(content); match != nil {
		chunks = append(chunks, c.frontmatterChunks(file.Path, match[0], match[1], &position)...)
		content = content[len(match[0]):]
	}

	for _, sec := range parseSections(content) {
		for _, u := range c.splitSection(sec) {
			chunks = append(chunks, &Chunk{
				ID:          generateChunkID(file.Path, position, u.text),
				Path:        file.Path,
				Content:     u.text,
				Type:        u.typ,
				HeadingPath: sec.headingPath,
				Position:    position,
			})
			position++
		}
	}

	return chunks, nil
}

// section is one heading plus its body text, or the preamble before
// the first heading.
type section struct {
	headingLevel int
	headingLine  string
	headingPath  string
	body         string
}

// parseSections scans for heading markers and accumulates body text.
// Heading-looking lines inside fenced code blocks (including
// unterminated fences) are not structural.
func parseSections(content string) []*section {
	lines := strings.Split(content, "\n")
	var sections []*section
	headingStack := make([]string, 6)

	current := &section{} // implicit top-level section for preamble
	var body strings.Builder
	inFence := false

	flush := func() {
		current.body = body.String()
		if current.headingLine != "" || strings.TrimSpace(current.body) != "" {
			sections = append(sections, current)
		}
		body.Reset()
	}

	for _, line := range lines {
		if isFenceDelimiter(line) {
			inFence = !inFence
			body.WriteString(line)
			body.WriteString("\n")
			continue
		}

		match := headingPattern.FindStringSubmatch(line)
		if match == nil || inFence {
			body.WriteString(line)
			body.WriteString("\n")
			continue
		}

		flush()

		level := len(match[1])
		title := strings.TrimSpace(match[2])

		// Clear deeper levels, then rebuild the ancestor path
		headingStack[level-1] = title
		for i := level; i < 6; i++ {
			headingStack[i] = ""
		}
		var pathParts []string
		for i := 0; i < level; i++ {
			if headingStack[i] != "" {
				pathParts = append(pathParts, headingStack[i])
			}
		}

		current = &section{
			headingLevel: level,
			headingLine:  line,
			headingPath:  strings.Join(pathParts, " > "),
		}
	}

	flush()
	return sections
}

// isFenceDelimiter reports whether a line opens or closes a fenced
// code block.
func isFenceDelimiter(line string) bool {
	trimmed := strings.TrimLeft(line, " \t")
	return strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~")
}

// unit is one chunk-sized slice of a section with its boundary type.
type unit struct {
	text string
	typ  ChunkType
}

// splitSection emits the heading line as its own chunk, then the body
// paragraphs, subdividing oversized paragraphs into sentences and
// oversized sentences into fixed-size fragments.
func (c *MarkdownChunker) splitSection(sec *section) []unit {
	var units []unit

	if sec.headingLine != "" {
		units = append(units, c.subdivide(sec.headingLine, ChunkTypeHeading)...)
	}

	for _, para := range splitParagraphs(sec.body) {
		units = append(units, c.subdivide(para, ChunkTypeParagraph)...)
	}

	return units
}

// subdivide enforces the size bound on one unit, stepping down to the
// next-finer boundary type as needed.
func (c *MarkdownChunker) subdivide(text string, typ ChunkType) []unit {
	if chunkLen(text) <= c.options.MaxChunkChars {
		return []unit{{text: text, typ: typ}}
	}

	if typ == ChunkTypeHeading || typ == ChunkTypeParagraph {
		var units []unit
		for _, sentence := range splitSentences(text) {
			units = append(units, c.subdivide(sentence, ChunkTypeSentence)...)
		}
		return units
	}

	// Sentence (or a "sentence" with no boundaries at all): slice.
	var units []unit
	for _, frag := range sliceFragments(text, c.options.MaxChunkChars) {
		units = append(units, unit{text: frag, typ: ChunkTypeFragment})
	}
	return units
}

// splitParagraphs splits body text on blank lines, keeping fenced code
// blocks atomic even when a fence contains blank lines.
func splitParagraphs(body string) []string {
	parts := strings.Split(body, "\n\n")

	var paragraphs []string
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			paragraphs = append(paragraphs, trimmed)
		}
	}

	return mergeFencedBlocks(paragraphs)
}

// mergeFencedBlocks rejoins paragraphs that belong to one fenced code
// block. A paragraph with an odd number of fence markers opens an
// unclosed block; everything up to the closing marker is one unit.
func mergeFencedBlocks(paragraphs []string) []string {
	var result []string
	var inFence bool
	var fenceBuilder strings.Builder

	for _, para := range paragraphs {
		if inFence {
			fenceBuilder.WriteString("\n\n")
			fenceBuilder.WriteString(para)
			if countFenceMarkers(para)%2 == 1 {
				result = append(result, fenceBuilder.String())
				fenceBuilder.Reset()
				inFence = false
			}
			continue
		}

		if countFenceMarkers(para)%2 == 1 {
			inFence = true
			fenceBuilder.WriteString(para)
			continue
		}

		result = append(result, para)
	}

	// Unterminated fence runs to end of section
	if inFence {
		result = append(result, fenceBuilder.String())
	}

	return result
}

func countFenceMarkers(para string) int {
	count := 0
	for _, line := range strings.Split(para, "\n") {
		if isFenceDelimiter(line) {
			count++
		}
	}
	return count
}

// splitSentences splits text on terminal punctuation followed by
// whitespace. Trailing quotes and closing brackets stay attached.
func splitSentences(text string) []string {
	var sentences []string
	var b strings.Builder
	runes := []rune(text)

	for i := 0; i < len(runes); i++ {
		b.WriteRune(runes[i])
		if !isTerminal(runes[i]) {
			continue
		}

		j := i + 1
		for j < len(runes) && (isTerminal(runes[j]) || isClosing(runes[j])) {
			b.WriteRune(runes[j])
			j++
		}

		if j < len(runes) && !unicode.IsSpace(runes[j]) {
			// Not a boundary (e.g. "v1.2.3" or "e.g.x")
			i = j - 1
			continue
		}

		if s := strings.TrimSpace(b.String()); s != "" {
			sentences = append(sentences, s)
		}
		b.Reset()

		for j < len(runes) && unicode.IsSpace(runes[j]) {
			j++
		}
		i = j - 1
	}

	if s := strings.TrimSpace(b.String()); s != "" {
		sentences = append(sentences, s)
	}

	return sentences
}

func isTerminal(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

func isClosing(r rune) bool {
	return r == '"' || r == '\'' || r == ')' || r == ']' || r == '”'
}

// sliceFragments cuts text into fixed-size rune slices.
func sliceFragments(text string, maxChars int) []string {
	runes := []rune(text)
	var fragments []string
	for start := 0; start < len(runes); start += maxChars {
		end := start + maxChars
		if end > len(runes) {
			end = len(runes)
		}
		fragments = append(fragments, string(runes[start:end]))
	}
	return fragments
}

// chunkLen measures chunk text length in runes.
func chunkLen(s string) int {
	return utf8.RuneCountInString(s)
}

// frontmatterChunks builds the frontmatter chunk, carrying the parsed
// metadata fields as searchable key-value text. Oversized frontmatter
// is sliced, each slice keeping the frontmatter tag.
func (c *MarkdownChunker) frontmatterChunks(path, raw, inner string, position *int) []*Chunk {
	metadata := parseFrontmatterFields(inner)

	content := strings.TrimSpace(raw)
	var texts []string
	if chunkLen(content) <= c.options.MaxChunkChars {
		texts = []string{content}
	} else {
		texts = sliceFragments(content, c.options.MaxChunkChars)
	}

	var chunks []*Chunk
	for _, text := range texts {
		chunks = append(chunks, &Chunk{
			ID:       generateChunkID(path, *position, text),
			Path:     path,
			Content:  text,
			Type:     ChunkTypeFrontmatter,
			Position: *position,
			Metadata: metadata,
		})
		*position = *position + 1
	}
	return chunks
}

// parseFrontmatterFields flattens the YAML mapping into string pairs.
// Malformed YAML is not an error; the raw block still gets indexed.
func parseFrontmatterFields(inner string) map[string]string {
	var parsed map[string]any
	if err := yaml.Unmarshal([]byte(inner), &parsed); err != nil || len(parsed) == 0 {
		return nil
	}

	fields := make(map[string]string, len(parsed))
	keys := make([]string, 0, len(parsed))
	for k := range parsed {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		switch v := parsed[k].(type) {
		case []any:
			parts := make([]string, 0, len(v))
			for _, item := range v {
				parts = append(parts, fmt.Sprintf("%v", item))
			}
			fields[k] = strings.Join(parts, ", ")
		default:
			fields[k] = fmt.Sprintf("%v", v)
		}
	}
	return fields
}
