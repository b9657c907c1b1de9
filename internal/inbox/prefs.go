package inbox

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ashureev/castle-console/internal/store"
)

// LoadView reads the last used filter and sort key. Missing or corrupt
// preferences yield the zero filter and SortRecent.
func LoadView(ctx context.Context, repo store.Repository) (Filter, SortKey, error) {
	var f Filter
	key := SortRecent

	raw, ok, err := repo.GetPreference(ctx, store.PrefSortKey)
	if err != nil {
		return f, key, fmt.Errorf("load sort preference: %w", err)
	}
	if ok {
		key, _ = ParseSortKey(raw)
	}

	raw, ok, err = repo.GetPreference(ctx, store.PrefFilter)
	if err != nil {
		return f, key, fmt.Errorf("load filter preference: %w", err)
	}
	if ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), &f); err != nil {
			return Filter{}, key, nil
		}
	}
	return f, key, nil
}

// SaveView stores the filter and sort key.
func SaveView(ctx context.Context, repo store.Repository, f Filter, key SortKey) error {
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("encode filter preference: %w", err)
	}
	if err := repo.SetPreference(ctx, store.PrefSortKey, string(key)); err != nil {
		return fmt.Errorf("save sort preference: %w", err)
	}
	if err := repo.SetPreference(ctx, store.PrefFilter, string(data)); err != nil {
		return fmt.Errorf("save filter preference: %w", err)
	}
	return nil
}
