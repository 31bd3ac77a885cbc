package feedservice

import (
	"context"
	"errors"
	"fmt"

	"github.com/illmade-knight/rtview-feed/pkg/feeds"
	"github.com/illmade-knight/rtview-feed/pkg/rtview"
)

// declareAll issues one declaration per feed without waiting for any of them.
func declareAll(d *rtview.Dispatcher, feedList []feeds.Feed) map[string]*rtview.Result {
	results := make(map[string]*rtview.Result, len(feedList))
	for _, f := range feedList {
		results[f.Name] = d.Declare(f.CacheName, f.Schema)
	}
	return results
}

// DeclareCaches declares every feed's cache and waits for all of them. The
// returned error joins every failed declaration.
func DeclareCaches(ctx context.Context, d *rtview.Dispatcher, feedList []feeds.Feed) error {
	results := declareAll(d, feedList)
	var errs []error
	for _, f := range feedList {
		if err := results[f.Name].Get(ctx); err != nil {
			errs = append(errs, fmt.Errorf("feed %s: declare %s: %w", f.Name, f.CacheName, err))
		}
	}
	return errors.Join(errs...)
}
