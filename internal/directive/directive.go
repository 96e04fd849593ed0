// Package directive finds the commands an assistant proposes for execution.
//
// A directive is written inline as [RUN: <command>] and ends at the first
// closing bracket. Directives with a blank command are ignored.
package directive

import (
	"iter"
	"regexp"
	"slices"
	"strings"

	"github.com/ZanzyTHEbar/simple-ai-assistant/internal/transcript"
)

var pattern = regexp.MustCompile(`\[RUN: (.*?)\]`)

// Extract yields the directives in text in order of appearance. Matching is
// done while iterating, and the sequence can be ranged over more than once.
func Extract(text string) iter.Seq[string] {
	return func(yield func(string) bool) {
		rest := text
		for {
			loc := pattern.FindStringSubmatchIndex(rest)
			if loc == nil {
				return
			}
			cmd := rest[loc[2]:loc[3]]
			rest = rest[loc[1]:]
			if strings.TrimSpace(cmd) == "" {
				continue
			}
			if !yield(cmd) {
				return
			}
		}
	}
}

// Pending yields the directives of msg that have not been executed yet.
func Pending(msg transcript.Message) iter.Seq[string] {
	return func(yield func(string) bool) {
		for cmd := range Extract(msg.Content) {
			if msg.HasExecuted(cmd) {
				continue
			}
			if !yield(cmd) {
				return
			}
		}
	}
}

func All(text string) []string {
	return slices.Collect(Extract(text))
}
