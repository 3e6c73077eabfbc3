package resources

import (
	"context"
	"fmt"
	"strings"

	"github.com/dokzlo13/cloudsync/internal/diff"
)

var (
	tagVocab = diff.NewVocabulary("tag", changeIDs)
	tagValue = tagVocab.Declare("value")
)

// TagDiff is a change to one tag. Its key is carried by the enclosing
// ListChange.
type TagDiff struct {
	diff.Change[string, string]
}

func (d TagDiff) Render() string {
	switch d.Kind() {
	case tagVocab.Unmanaged:
		return "=" + d.Remote
	case tagVocab.Added:
		return "=" + d.Local
	case tagValue:
		return fmt.Sprintf(": %s -> %s", d.Remote, d.Local)
	default:
		panic(d.Unhandled())
	}
}

func diffTagValue(remote, local string) []diff.Diff {
	if remote == local {
		return nil
	}
	return []diff.Diff{TagDiff{diff.NewChange(tagVocab, tagValue, remote, local)}}
}

func compareTags(remote, local map[string]string) diff.ListChange[string, string] {
	return diff.Compare(remote, local, diffTagValue)
}

// renderTags prints one line per tag: "+ k=v", "- k=v" or "~ k: old -> new".
func renderTags(lc diff.ListChange[string, string]) string {
	var lines []string
	for _, k := range lc.AddedNames() {
		lines = append(lines, "+ "+k+TagDiff{diff.NewChange(tagVocab, tagVocab.Added, "", lc.Added[k])}.Render())
	}
	for _, k := range lc.RemovedNames() {
		lines = append(lines, "- "+k+TagDiff{diff.NewChange(tagVocab, tagVocab.Unmanaged, lc.Removed[k], "")}.Render())
	}
	for _, k := range lc.ModifiedNames() {
		for _, d := range lc.Modified[k] {
			lines = append(lines, "~ "+k+d.Render())
		}
	}
	return strings.Join(lines, "\n")
}

// tagging is the pair of verbs every taggable kind exposes.
type tagging struct {
	put    func(ctx context.Context, name string, tags map[string]string) error
	delete func(ctx context.Context, name string, keys []string) error
}

// apply sets added and changed tags, then removes the rest.
func (t tagging) apply(ctx context.Context, name string, lc diff.ListChange[string, string]) error {
	put := make(map[string]string, len(lc.Added)+len(lc.Modified))
	for k, v := range lc.Added {
		put[k] = v
	}
	for _, k := range lc.ModifiedNames() {
		for _, d := range lc.Modified[k] {
			put[k] = d.(TagDiff).Local
		}
	}
	if len(put) > 0 {
		if err := t.put(ctx, name, put); err != nil {
			return fmt.Errorf("put tags: %w", err)
		}
	}
	if removed := lc.RemovedNames(); len(removed) > 0 {
		if err := t.delete(ctx, name, removed); err != nil {
			return fmt.Errorf("delete tags: %w", err)
		}
	}
	return nil
}
