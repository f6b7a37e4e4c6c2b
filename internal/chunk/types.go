// Package chunk splits markdown documents into retrievable units.
//
// A document is parsed into a heading tree; each heading's body is
// split into paragraphs, oversized paragraphs into sentences, and
// oversized sentences into fixed-size fragments. Every chunk carries
// the full heading path accumulated from its ancestors.
package chunk

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// DefaultMaxChunkChars is the default upper bound for one chunk's text.
const DefaultMaxChunkChars = 1500

// ChunkType classifies the finest boundary used to produce a chunk.
type ChunkType string

const (
	// ChunkTypeHeading marks a whole heading section that fit in one chunk.
	ChunkTypeHeading ChunkType = "heading"
	// ChunkTypeParagraph marks a blank-line-delimited block.
	ChunkTypeParagraph ChunkType = "paragraph"
	// ChunkTypeSentence marks a sentence split out of an oversized paragraph.
	ChunkTypeSentence ChunkType = "sentence"
	// ChunkTypeFragment marks fixed-size slicing, the last-resort fallback.
	ChunkTypeFragment ChunkType = "fragment"
	// ChunkTypeFrontmatter marks the document's YAML frontmatter block.
	ChunkTypeFrontmatter ChunkType = "frontmatter"
)

// Chunk is a retrievable unit of document text.
type Chunk struct {
	// ID is a deterministic function of path, position, and content, so
	// re-chunking an unchanged document reproduces identical ids.
	ID string

	// Path is the vault-relative document path.
	Path string

	// Content is the chunk text. Always len(Content) <= MaxChunkChars.
	Content string

	// Type is the finest boundary type actually used.
	Type ChunkType

	// HeadingPath is the ordered ancestor heading texts joined with " > ".
	// Empty for frontmatter and preamble chunks.
	HeadingPath string

	// Position is the chunk's ordinal within the document.
	Position int

	// Metadata carries flat string metadata. Frontmatter chunks carry
	// the document's parsed metadata fields.
	Metadata map[string]string
}

// FileInput is input for the Chunker interface.
type FileInput struct {
	Path    string // vault-relative path
	Content []byte // raw document text
}

// Chunker is the interface for splitting documents into chunks.
type Chunker interface {
	// Chunk splits a document into an ordered sequence of chunks.
	// An empty document yields zero chunks and no error.
	Chunk(ctx context.Context, file *FileInput) ([]*Chunk, error)

	// SupportedExtensions returns file extensions this chunker handles.
	SupportedExtensions() []string
}

// generateChunkID builds a stable chunk id from path, position, and content.
func generateChunkID(path string, position int, content string) string {
	hash := sha256.Sum256([]byte(fmt.Sprintf("%s:%d:%s", path, position, content)))
	return hex.EncodeToString(hash[:])[:16]
}
