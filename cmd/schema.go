package cmd

import (
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/illmade-knight/rtview-feed/pkg/feeds"
	"github.com/illmade-knight/rtview-feed/pkg/types"
)

type feedDoc struct {
	Name           string         `yaml:"name"`
	Channel        string         `yaml:"channel"`
	Cache          string         `yaml:"cache"`
	SubscribeKey   string         `yaml:"subscribe_key"`
	Presence       bool           `yaml:"presence,omitempty"`
	IndexColumns   []string       `yaml:"index_columns"`
	HistoryColumns []string       `yaml:"history_columns"`
	Columns        []types.Column `yaml:"columns"`
}

type catalogDoc struct {
	Feeds []feedDoc `yaml:"feeds"`
}

func newCatalogDoc(feedList []feeds.Feed) catalogDoc {
	doc := catalogDoc{Feeds: make([]feedDoc, 0, len(feedList))}
	for _, f := range feedList {
		doc.Feeds = append(doc.Feeds, feedDoc{
			Name:           f.Name,
			Channel:        f.Channel,
			Cache:          f.CacheName,
			SubscribeKey:   f.SubscribeKey,
			Presence:       f.Presence,
			IndexColumns:   f.Schema.IndexColumns,
			HistoryColumns: f.Schema.HistoryColumns,
			Columns:        f.Schema.Columns,
		})
	}
	return doc
}

func newSchemaCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the feed catalog, with config overrides applied, as YAML.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(newCatalogDoc(a.cfg.Catalog())); err != nil {
				return err
			}
			return enc.Close()
		},
	}
}
