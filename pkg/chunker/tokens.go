package chunker

import (
	"log"
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter reports token counts for chunk metadata. It uses the tiktoken
// encoding when available and falls back to a characters/4 heuristic when the
// encoding cannot be loaded.
type TokenCounter struct {
	once     sync.Once
	encoding string
	tk       *tiktoken.Tiktoken
}

// NewTokenCounter creates a counter for the named encoding, e.g. cl100k_base.
func NewTokenCounter(encoding string) *TokenCounter {
	if encoding == "" {
		encoding = "cl100k_base"
	}
	return &TokenCounter{encoding: encoding}
}

// Count returns the token count of text, at least 1 for non-empty text.
func (c *TokenCounter) Count(text string) int {
	if text == "" {
		return 0
	}

	c.once.Do(func() {
		tk, err := tiktoken.GetEncoding(c.encoding)
		if err != nil {
			log.Printf("[WARN] tiktoken encoding %q unavailable, using heuristic counts: %v", c.encoding, err)
			return
		}
		c.tk = tk
	})

	if c.tk != nil {
		return len(c.tk.Encode(text, nil, nil))
	}

	n := utf8.RuneCountInString(text) / 4
	if n == 0 {
		n = 1
	}
	return n
}
