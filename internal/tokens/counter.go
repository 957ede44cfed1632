// Package tokens counts tokens of transcript messages.
package tokens

import (
	"log/slog"
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"

	"github.com/user/feynwatch/internal/types"
)

// DefaultEncoding is used when no encoding is configured.
const DefaultEncoding = "cl100k_base"

// perMessageOverhead approximates the role and framing tokens each chat
// message costs on top of its content.
const perMessageOverhead = 4

// Counter lazily loads a tiktoken encoding on first use. If the encoding
// cannot be loaded (unknown name, no network for the BPE ranks) it falls
// back to a length-based estimate.
type Counter struct {
	encoding string

	once sync.Once
	enc  *tiktoken.Tiktoken
}

func NewCounter(encoding string) *Counter {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	return &Counter{encoding: encoding}
}

func (c *Counter) load() {
	enc, err := tiktoken.GetEncoding(c.encoding)
	if err != nil {
		slog.Debug("tokenizer unavailable, estimating", "encoding", c.encoding, "error", err)
		return
	}
	c.enc = enc
}

// Exact reports whether counts come from the tokenizer rather than the
// estimate.
func (c *Counter) Exact() bool {
	c.once.Do(c.load)
	return c.enc != nil
}

// Count returns the token count of text.
func (c *Counter) Count(text string) int {
	if text == "" {
		return 0
	}
	c.once.Do(c.load)
	if c.enc == nil {
		return Estimate(text)
	}
	return len(c.enc.Encode(text, nil, nil))
}

// Messages returns the total token count of a transcript.
func (c *Counter) Messages(msgs []types.ADKMessage) int {
	total := 0
	for _, m := range msgs {
		total += c.Count(m.Content) + perMessageOverhead
	}
	return total
}

// Estimate approximates tokens as one per four characters, rounded up.
func Estimate(text string) int {
	n := utf8.RuneCountInString(text)
	return (n + 3) / 4
}
