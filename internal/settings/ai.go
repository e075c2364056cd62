package settings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dshills/ghostpad/internal/config"
)

// LoadAI overlays the stored AI settings on base. Keys without a stored
// value keep the value from base.
func LoadAI(ctx context.Context, store Store, base config.AIConfig) (config.AIConfig, error) {
	ai := base
	ai.ExcludeLanguages = append([]string(nil), base.ExcludeLanguages...)
	if store == nil {
		return ai, nil
	}

	var timeout time.Duration
	fields := []struct {
		key string
		dst any
	}{
		{KeyEnabled, &ai.Enabled},
		{KeyProvider, &ai.Provider},
		{KeyBaseURL, &ai.BaseURL},
		{KeyAPIKey, &ai.APIKey},
		{KeyModel, &ai.Model},
		{KeyTemperature, &ai.Temperature},
		{KeyMaxTokens, &ai.MaxTokens},
		{KeyFilterScript, &ai.FilterScript},
		{KeyExcludeLanguages, &ai.ExcludeLanguages},
		{KeyRequestTimeout, &timeout},
	}
	for _, f := range fields {
		err := store.Get(ctx, f.key, f.dst)
		if err == nil || errors.Is(err, ErrNotFound) {
			continue
		}
		return base, fmt.Errorf("loading %s: %w", f.key, err)
	}
	if timeout > 0 {
		ai.RequestTimeout = timeout
	}
	return ai, nil
}
