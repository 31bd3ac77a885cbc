package feeds

import (
	"errors"
	"fmt"

	"github.com/illmade-knight/rtview-feed/pkg/types"
)

// TransformFunc maps a raw upstream payload to the record sent to the cache.
// It must not modify raw.
type TransformFunc func(raw types.RawMessage) types.NormalizedRecord

// Feed binds one upstream channel to its transform and its target cache.
type Feed struct {
	Name         string
	Channel      string
	CacheName    string
	SubscribeKey string
	// Presence requests presence events along with messages on the channel.
	Presence  bool
	Schema    types.CacheSchema
	Transform TransformFunc
}

// Settings overrides the upstream and cache identifiers of a catalog feed.
// Empty fields keep the catalog default.
type Settings struct {
	Channel      string `mapstructure:"channel"`
	CacheName    string `mapstructure:"cache"`
	SubscribeKey string `mapstructure:"subscribe_key"`
}

func (f Feed) withSettings(s Settings) Feed {
	if s.Channel != "" {
		f.Channel = s.Channel
	}
	if s.CacheName != "" {
		f.CacheName = s.CacheName
	}
	if s.SubscribeKey != "" {
		f.SubscribeKey = s.SubscribeKey
	}
	return f
}

// Validate checks that the feed can be subscribed and declared.
func (f Feed) Validate() error {
	if f.Name == "" {
		return errors.New("feed name is required")
	}
	if f.Channel == "" {
		return fmt.Errorf("feed %s: channel is required", f.Name)
	}
	if f.CacheName == "" {
		return fmt.Errorf("feed %s: cache name is required", f.Name)
	}
	if f.Transform == nil {
		return fmt.Errorf("feed %s: transform is required", f.Name)
	}
	if err := f.Schema.Validate(); err != nil {
		return fmt.Errorf("feed %s: schema: %w", f.Name, err)
	}
	return nil
}

// ByChannel indexes feeds by their channel name. Duplicate channels are an error.
func ByChannel(list []Feed) (map[string]Feed, error) {
	out := make(map[string]Feed, len(list))
	for _, f := range list {
		if _, dup := out[f.Channel]; dup {
			return nil, fmt.Errorf("channel %q is used by more than one feed", f.Channel)
		}
		out[f.Channel] = f
	}
	return out, nil
}
