package drive

import (
	"context"
	"fmt"
	"strings"
)

// findPageSize bounds the name-filtered lookup during resolution.
// When the store reports more than one folder with the same name
// under the same parent, the first returned wins; the store gives
// no ordering contract, so this is a documented weak tie-break.
const findPageSize = 10

// maxDepth bounds the parent walk in PathString against cycles in
// a misbehaving store.
const maxDepth = 64

// Resolver finds or creates nested remote folders by path string.
type Resolver struct {
	store Store
}

// NewResolver creates a Resolver backed by store.
func NewResolver(store Store) *Resolver {
	return &Resolver{store: store}
}

// Resolve walks path from root, finding or creating each segment as
// a child folder, and returns the final folder. The find runs before
// the create, so resolution is idempotent: retrying after a partial
// failure reuses folders created by the earlier attempt, and no
// rollback is ever performed.
func (r *Resolver) Resolve(ctx context.Context, root Folder, path string) (Folder, error) {
	current := root
	for _, segment := range SplitPath(path) {
		found, ok, err := r.findChild(ctx, current, segment)
		if err != nil {
			return Folder{}, fmt.Errorf("resolving segment %q of %q: %w", segment, path, err)
		}
		if ok {
			current = found
			continue
		}
		created, err := r.store.CreateFolder(ctx, current.ID, segment)
		if err != nil {
			return Folder{}, fmt.Errorf("creating segment %q of %q: %w", segment, path, err)
		}
		current = created
	}
	return current, nil
}

// Exists walks path from root without creating anything. It returns
// the final folder and true when every segment already exists.
func (r *Resolver) Exists(ctx context.Context, root Folder, path string) (Folder, bool, error) {
	current := root
	for _, segment := range SplitPath(path) {
		found, ok, err := r.findChild(ctx, current, segment)
		if err != nil {
			return Folder{}, false, fmt.Errorf("probing segment %q of %q: %w", segment, path, err)
		}
		if !ok {
			return Folder{}, false, nil
		}
		current = found
	}
	return current, true, nil
}

// PathString walks parent links from f upward and renders the path
// relative to root. It returns "/" when f is root itself.
func (r *Resolver) PathString(ctx context.Context, f, root Folder) (string, error) {
	if f.ID == root.ID {
		return "/", nil
	}

	var names []string
	id := f.ID
	for depth := 0; depth < maxDepth; depth++ {
		meta, err := r.store.GetMetadata(ctx, id)
		if err != nil {
			return "", fmt.Errorf("walking parents of %q: %w", f.ID, err)
		}
		names = append([]string{meta.Name}, names...)
		if meta.Parent == "" || meta.Parent == root.ID {
			return "/" + strings.Join(names, "/"), nil
		}
		id = meta.Parent
	}
	return "", fmt.Errorf("walking parents of %q: depth limit exceeded", f.ID)
}

// findChild looks up a non-trashed child folder named exactly name.
// Case-sensitive; the first store result wins on ambiguity.
func (r *Resolver) findChild(ctx context.Context, parent Folder, name string) (Folder, bool, error) {
	children, err := r.store.ListChildren(ctx, parent.ID, ListOptions{
		Name:        name,
		FoldersOnly: true,
		PageSize:    findPageSize,
	})
	if err != nil {
		return Folder{}, false, err
	}
	for _, child := range children {
		if child.Name == name {
			return child, true, nil
		}
	}
	return Folder{}, false, nil
}

// SplitPath splits a slash-delimited path into trimmed segments,
// silently collapsing repeated, leading, and trailing separators.
func SplitPath(path string) []string {
	parts := strings.Split(path, "/")
	segments := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			segments = append(segments, trimmed)
		}
	}
	return segments
}
