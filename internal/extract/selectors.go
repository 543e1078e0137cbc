// Package extract turns a single forum page snapshot into a structured
// thread record. Parsing is pure: no I/O, no shared mutable state, safe to
// call concurrently from any number of workers.
package extract

import (
	"fmt"

	"github.com/andybalholm/cascadia"
)

// Selectors holds the precompiled structural queries for every fragment the
// parser needs. Build it once at startup and share it read-only across all
// parser invocations; it is never mutated after construction.
type Selectors struct {
	CanonicalURL cascadia.Selector
	Title        cascadia.Selector
	Post         cascadia.Selector
	CurrentPage  cascadia.Selector
	Timestamp    cascadia.Selector
	Author       cascadia.Selector
	Avatar       cascadia.Selector
	Body         cascadia.Selector
}

// NewSelectors compiles the selector set. A compile failure is a startup
// configuration error, not a per-document error, and the caller should
// treat it as fatal.
func NewSelectors() (*Selectors, error) {
	var err error
	compile := func(expr string) cascadia.Selector {
		if err != nil {
			return nil
		}
		sel, cerr := cascadia.Compile(expr)
		if cerr != nil {
			err = fmt.Errorf("compile selector %q: %w", expr, cerr)
		}
		return sel
	}

	s := &Selectors{
		CanonicalURL: compile(`meta[property="og:url"]`),
		Title:        compile(`h1.p-title-value`),
		Post:         compile(`article.message--post`),
		CurrentPage:  compile(`.pageNav-page--current`),
		Timestamp:    compile(`.message-header time`),
		Author:       compile(`a.username`),
		Avatar:       compile(`span.avatar`),
		Body:         compile(`article.message-body`),
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}
