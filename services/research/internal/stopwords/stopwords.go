// Package stopwords embeds the English and Russian stop-word lists.
package stopwords

import (
	_ "embed"
	"strings"
)

var (
	//go:embed english.txt
	englishList string
	//go:embed russian.txt
	russianList string
)

type Set map[string]struct{}

func (s Set) Contains(word string) bool {
	_, ok := s[word]
	return ok
}

func parse(lists ...string) Set {
	set := make(Set)
	for _, list := range lists {
		for _, line := range strings.Split(list, "\n") {
			if w := strings.TrimSpace(line); w != "" {
				set[w] = struct{}{}
			}
		}
	}
	return set
}

func English() Set {
	return parse(englishList)
}

func EnglishRussian() Set {
	return parse(englishList, russianList)
}

func (s Set) With(extra ...string) Set {
	out := make(Set, len(s)+len(extra))
	for w := range s {
		out[w] = struct{}{}
	}
	for _, w := range extra {
		out[w] = struct{}{}
	}
	return out
}
