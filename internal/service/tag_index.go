package service

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/sync/singleflight"

	"github.com/weiawesome/babble-live/internal/domain"
	"github.com/weiawesome/babble-live/internal/repository"
)

const maxTagLength = 100

// TagIndex maps free-text hashtags to canonical tag ids.
type TagIndex struct {
	repo repository.TagRepository
	sf   singleflight.Group
}

func NewTagIndex(repo repository.TagRepository) *TagIndex {
	return &TagIndex{repo: repo}
}

func normalizeTag(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%w: empty hashtag", domain.ErrInvalidInput)
	}
	if utf8.RuneCountInString(name) > maxTagLength {
		return "", fmt.Errorf("%w: hashtag longer than %d characters", domain.ErrInvalidInput, maxTagLength)
	}
	return name, nil
}

// ResolveOrCreate returns the id of the tag with this exact name, creating
// it on first use. Concurrent callers in this process share one round trip;
// across processes the unique index collapses the race.
func (t *TagIndex) ResolveOrCreate(ctx context.Context, name string) (uint, error) {
	name, err := normalizeTag(name)
	if err != nil {
		return 0, err
	}

	v, err, _ := t.sf.Do(name, func() (interface{}, error) {
		tag, err := t.repo.CreateIfAbsent(ctx, name)
		if err != nil {
			return nil, err
		}
		return tag.ID, nil
	})
	if err != nil {
		return 0, fmt.Errorf("resolve tag %q: %w", name, err)
	}
	return v.(uint), nil
}

// ResolveAll resolves names in order, dropping repeats.
func (t *TagIndex) ResolveAll(ctx context.Context, names []string) ([]uint, error) {
	ids := make([]uint, 0, len(names))
	seen := make(map[uint]struct{}, len(names))
	for _, name := range names {
		id, err := t.ResolveOrCreate(ctx, name)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids, nil
}

// Lookup finds an existing tag without creating it.
func (t *TagIndex) Lookup(ctx context.Context, name string) (uint, error) {
	name, err := normalizeTag(name)
	if err != nil {
		return 0, err
	}
	tag, err := t.repo.FindByName(ctx, name)
	if err != nil {
		return 0, err
	}
	return tag.ID, nil
}

// TagsForRoom returns the room's hashtag names in the order they were given.
func (t *TagIndex) TagsForRoom(ctx context.Context, roomID string) ([]string, error) {
	names, err := t.repo.NamesForRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if names == nil {
		names = []string{}
	}
	return names, nil
}

// ParseHashtags splits whitespace separated hashtag text into tokens.
func ParseHashtags(text string) []string {
	return strings.Fields(text)
}
