package model

import (
	"context"
	"strings"
)

// eagerTree groups requested relations by their first segment, keeping
// the remaining dotted path for the related query:
//
//	["posts.comments", "posts.tags", "profile"] -> posts: [comments tags], profile: []
type eagerTree struct {
	names  []string
	nested map[string][]string
}

func parseEager(relations []string) eagerTree {
	t := eagerTree{nested: make(map[string][]string)}
	for _, r := range relations {
		head, rest, _ := strings.Cut(r, ".")
		if _, ok := t.nested[head]; !ok {
			t.names = append(t.names, head)
			t.nested[head] = nil
		}
		if rest != "" {
			t.nested[head] = append(t.nested[head], rest)
		}
	}
	return t
}

// eagerLoad resolves relations for a batch of records of model m, one
// query per relation and nesting level.
func eagerLoad(ctx context.Context, c *Client, m *Model, records []*Record, relations []string) error {
	if len(records) == 0 {
		return nil
	}
	tree := parseEager(relations)
	for _, name := range tree.names {
		rel, err := lookup(m, name)
		if err != nil {
			return err
		}
		if err := rel.Eager(ctx, c, records, tree.nested[name]); err != nil {
			return err
		}
	}
	return nil
}
