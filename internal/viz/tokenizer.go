package viz

import (
	"bufio"
	"bytes"
	_ "embed"
	"regexp"
	"strings"
	"unicode"
)

//go:embed stopwords/en.txt
var stopwordsEN []byte

//go:embed stopwords/it.txt
var stopwordsIT []byte

// stopwords is the combined English+Italian common-word list. Tokens in it
// carry no signal for a tag cloud.
var stopwords = loadStopwords(stopwordsEN, stopwordsIT)

// reNoise matches mentions and links. Checked against the raw lower-cased
// token: punctuation stripping removes '@', ':' and '/' themselves, so the
// pattern has to run before stripping to ever match.
var reNoise = regexp.MustCompile(`^(@|https?:|//)`)

func loadStopwords(lists ...[]byte) map[string]struct{} {
	words := make(map[string]struct{})
	for _, list := range lists {
		scanner := bufio.NewScanner(bytes.NewReader(list))
		for scanner.Scan() {
			w := strings.TrimSpace(scanner.Text())
			if w != "" {
				words[w] = struct{}{}
			}
		}
	}
	return words
}

// Tokenizer yields normalized word tokens from one free-text answer:
// whitespace-split, lower-cased, stripped of punctuation and symbol code
// points, with links, mentions and stopwords discarded. It is a single
// forward pass; callers re-tokenize rather than rewind.
type Tokenizer struct {
	rest string
}

// Tokenize starts a pass over text.
func Tokenize(text string) *Tokenizer {
	return &Tokenizer{rest: text}
}

// Next returns the next surviving token, or ok=false at end of input.
func (t *Tokenizer) Next() (token string, ok bool) {
	for {
		raw := t.nextRaw()
		if raw == "" {
			return "", false
		}

		w := strings.ToLower(raw)
		if reNoise.MatchString(w) {
			continue
		}
		w = stripPunct(w)
		if w == "" {
			continue
		}
		if _, stop := stopwords[w]; stop {
			continue
		}
		return w, true
	}
}

func (t *Tokenizer) nextRaw() string {
	start := -1
	for i, r := range t.rest {
		if unicode.IsSpace(r) {
			if start >= 0 {
				word := t.rest[start:i]
				t.rest = t.rest[i:]
				return word
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	word := ""
	if start >= 0 {
		word = t.rest[start:]
	}
	t.rest = ""
	return word
}

// stripPunct drops punctuation and symbol code points (Unicode general
// categories P and S), the superset of the word-boundary noise the cloud
// should ignore.
func stripPunct(w string) string {
	return strings.Map(func(r rune) rune {
		if unicode.In(r, unicode.P, unicode.S) {
			return -1
		}
		return r
	}, w)
}
