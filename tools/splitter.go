package tools

import (
	"strings"

	tiktoken "github.com/pkoukk/tiktoken-go"
)

// Default chunking parameters for webpage question answering.
const (
	DefaultChunkTokens  = 3000
	DefaultChunkOverlap = 30
	DefaultEncoding     = "cl100k_base"
)

// Tokenizer converts between text and token ids.
type Tokenizer interface {
	Encode(text string) []int
	Decode(tokens []int) string
}

type tiktokenTokenizer struct {
	enc *tiktoken.Tiktoken
}

// NewTiktokenTokenizer loads a tiktoken encoding by name (e.g. "cl100k_base").
func NewTiktokenTokenizer(encoding string) (Tokenizer, error) {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, err
	}
	return &tiktokenTokenizer{enc: enc}, nil
}

func (t *tiktokenTokenizer) Encode(text string) []int   { return t.enc.Encode(text, nil, nil) }
func (t *tiktokenTokenizer) Decode(tokens []int) string { return t.enc.Decode(tokens) }

// Splitter cuts text into chunks of at most ChunkSize tokens. Line
// boundaries are kept when possible and consecutive chunks share up to
// Overlap tokens of trailing lines.
type Splitter struct {
	Tokenizer Tokenizer
	ChunkSize int
	Overlap   int
}

type piece struct {
	text   string
	tokens int
}

// Split returns the chunks of text in order.
func (s *Splitter) Split(text string) []string {
	size := s.ChunkSize
	if size <= 0 {
		size = DefaultChunkTokens
	}
	overlap := s.Overlap
	if overlap < 0 || overlap >= size {
		overlap = 0
	}

	var pieces []piece
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		pieces = append(pieces, s.pieces(line, size)...)
	}

	var (
		chunks  []string
		current []piece
		total   int
		fresh   bool
	)
	for _, p := range pieces {
		if total+p.tokens > size && fresh {
			chunks = append(chunks, joinPieces(current))
			current, total = tail(current, overlap)
			fresh = false
		}
		for total+p.tokens > size && len(current) > 0 {
			total -= current[0].tokens
			current = current[1:]
		}
		current = append(current, p)
		total += p.tokens
		fresh = true
	}
	if fresh {
		chunks = append(chunks, joinPieces(current))
	}
	return chunks
}

// tail keeps the trailing pieces that fit in overlap tokens.
func tail(ps []piece, overlap int) ([]piece, int) {
	keep, kept := len(ps), 0
	for keep > 0 && kept+ps[keep-1].tokens <= overlap {
		keep--
		kept += ps[keep].tokens
	}
	return append([]piece(nil), ps[keep:]...), kept
}

// pieces splits a single line into token windows when it alone exceeds size.
func (s *Splitter) pieces(line string, size int) []piece {
	tokens := s.Tokenizer.Encode(line)
	if len(tokens) <= size {
		return []piece{{text: line, tokens: len(tokens)}}
	}
	var out []piece
	for start := 0; start < len(tokens); start += size {
		end := start + size
		if end > len(tokens) {
			end = len(tokens)
		}
		out = append(out, piece{text: s.Tokenizer.Decode(tokens[start:end]), tokens: end - start})
	}
	return out
}

func joinPieces(ps []piece) string {
	parts := make([]string, len(ps))
	for i, p := range ps {
		parts[i] = p.text
	}
	return strings.Join(parts, "\n")
}
