// Package format renders user supplied values into chat text.
package format

import (
	"fmt"
	"strings"
)

// Dialect is a Telegram parse mode.
type Dialect int

const (
	// Markdown is the legacy parse mode every chat surface renders.
	Markdown Dialect = iota + 1
	MarkdownV2
)

var escapers = map[Dialect]*strings.Replacer{
	Markdown:   escaper("_*`["),
	MarkdownV2: escaper("_*[]()~`>#+-=|{}.!\\"),
}

func escaper(special string) *strings.Replacer {
	pairs := make([]string, 0, 2*len(special))
	for _, r := range special {
		pairs = append(pairs, string(r), `\`+string(r))
	}
	return strings.NewReplacer(pairs...)
}

// Escape backslash-escapes the characters d treats as markup.
func Escape(text string, d Dialect) (string, error) {
	r, ok := escapers[d]
	if !ok {
		return "", fmt.Errorf("format: unsupported markdown dialect %d", d)
	}
	return r.Replace(text), nil
}

// MD escapes a user value for the legacy Markdown mode.
func MD(text string) string {
	return escapers[Markdown].Replace(text)
}
