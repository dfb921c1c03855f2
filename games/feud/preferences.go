package feud

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Seednode/chungsuc/storage"
)

// Preferences is the control panel's own look and feel. It lives under its
// own key and is never announced to other instances.
type Preferences struct {
	ThemeColor string   `json:"themeColor" validate:"omitempty,hexcolor"`
	Font       string   `json:"font" validate:"max=64"`
	TabOrder   []string `json:"tabOrder" validate:"max=8,dive,oneof=control teams questions settings"`
}

func DefaultPreferences() Preferences {
	return Preferences{
		ThemeColor: "#2563eb",
		Font:       "Be Vietnam Pro",
		TabOrder:   []string{"control", "teams", "questions", "settings"},
	}
}

// LoadPreferences reads key from kv. Missing or unreadable preferences give
// the defaults; err is only informational.
func LoadPreferences(ctx context.Context, kv storage.KV, key string) (Preferences, error) {
	if kv == nil {
		return DefaultPreferences(), ErrNilKV
	}

	raw, ok, err := kv.Get(ctx, key)
	if err != nil {
		return DefaultPreferences(), err
	}
	if !ok {
		return DefaultPreferences(), nil
	}

	var p Preferences
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return DefaultPreferences(), fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	if err := validate.Struct(p); err != nil {
		return DefaultPreferences(), fmt.Errorf("%w: %w", ErrInvalidPrefs, err)
	}

	return p, nil
}

func SavePreferences(ctx context.Context, kv storage.KV, key string, p Preferences) error {
	if kv == nil {
		return ErrNilKV
	}

	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPrefs, err)
	}

	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal preferences: %w", err)
	}

	return kv.Set(ctx, key, string(data))
}
