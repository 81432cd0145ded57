// Package chunker splits node text into pieces for full-text indexing.
package chunker

import (
	"fmt"
	"strings"

	"github.com/rcliao/persona-memory/internal/model"
)

const (
	DefaultTargetSize = 400
	DefaultMaxSize    = 600
)

// Options configures chunking behavior.
type Options struct {
	TargetSize int
	MaxSize    int
}

// DefaultOptions returns default chunking options.
func DefaultOptions() Options {
	return Options{
		TargetSize: DefaultTargetSize,
		MaxSize:    DefaultMaxSize,
	}
}

// Chunk is a piece of node text. For transcripts StartLine and EndLine are
// 1-based utterance positions; for descriptions they count sentences.
type Chunk struct {
	Text      string
	StartLine int
	EndLine   int
}

// Node chunks the searchable text of n: its description, then, for chats,
// its transcript.
func Node(n *model.Node, opts Options) []Chunk {
	out := Text(n.Description, opts)
	if n.Filling.Kind == model.FillingTranscript {
		out = append(out, Transcript(n.Filling.Transcript, opts)...)
	}
	return out
}

// Text splits text on sentence boundaries. Text no longer than MaxSize is a
// single chunk.
func Text(text string, opts Options) []Chunk {
	opts = withDefaults(opts)
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if len(text) <= opts.MaxSize {
		return []Chunk{{Text: text, StartLine: 1, EndLine: 1}}
	}
	return pack(sentences(text), opts)
}

// Transcript groups utterances, rendered "speaker: line", into chunks of
// about TargetSize without splitting an utterance unless it alone exceeds
// MaxSize.
func Transcript(lines []model.Utterance, opts Options) []Chunk {
	opts = withDefaults(opts)
	var units []string
	for _, u := range lines {
		units = append(units, strings.TrimSpace(fmt.Sprintf("%s: %s", u.Speaker, u.Line)))
	}
	return pack(units, opts)
}

func withDefaults(opts Options) Options {
	if opts.TargetSize <= 0 {
		opts.TargetSize = DefaultTargetSize
	}
	if opts.MaxSize < opts.TargetSize {
		opts.MaxSize = opts.TargetSize
	}
	return opts
}

// pack merges consecutive units up to TargetSize. Units over MaxSize are
// split on word boundaries and keep their unit position.
func pack(units []string, opts Options) []Chunk {
	var out []Chunk
	var cur []string
	start, size := 0, 0

	flush := func(end int) {
		if len(cur) == 0 {
			return
		}
		out = append(out, Chunk{Text: strings.Join(cur, "\n"), StartLine: start, EndLine: end})
		cur, size = nil, 0
	}

	for i, u := range units {
		pos := i + 1
		if u == "" {
			continue
		}
		if len(u) > opts.MaxSize {
			flush(pos - 1)
			for _, piece := range splitWords(u, opts.TargetSize) {
				out = append(out, Chunk{Text: piece, StartLine: pos, EndLine: pos})
			}
			continue
		}
		if size+len(u) > opts.TargetSize && len(cur) > 0 {
			flush(pos - 1)
		}
		if len(cur) == 0 {
			start = pos
		}
		cur = append(cur, u)
		size += len(u) + 1
	}
	flush(len(units))
	return out
}

func sentences(text string) []string {
	var out []string
	var b strings.Builder
	for i, r := range text {
		b.WriteRune(r)
		if r == '.' || r == '!' || r == '?' {
			if i+1 == len(text) || text[i+1] == ' ' || text[i+1] == '\n' {
				out = append(out, strings.TrimSpace(b.String()))
				b.Reset()
			}
		}
	}
	if s := strings.TrimSpace(b.String()); s != "" {
		out = append(out, s)
	}
	return out
}

func splitWords(text string, size int) []string {
	var out []string
	var cur []string
	n := 0
	for _, w := range strings.Fields(text) {
		if n+len(w) > size && len(cur) > 0 {
			out = append(out, strings.Join(cur, " "))
			cur, n = nil, 0
		}
		cur = append(cur, w)
		n += len(w) + 1
	}
	if len(cur) > 0 {
		out = append(out, strings.Join(cur, " "))
	}
	return out
}
