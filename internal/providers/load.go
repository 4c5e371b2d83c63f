package providers

import (
	"context"
	"fmt"

	"github.com/apkupdater/apkupdaterd/api"
)

// Load gets a specific source and initializes it with the source configuration.
func Load(ctx context.Context, id api.SourceID, config map[string]string, client *Client) (Source, error) {
	if config == nil {
		config = map[string]string{}
	}

	var source loadable

	switch id {
	case api.SourceMirror:
		source = &mirror{config: config, client: client}
	case api.SourceGitHub:
		source = &github{config: config, client: client}
	case api.SourceGitLab:
		source = &gitlab{config: config, client: client}
	case api.SourceFDroid:
		source = &fdroid{id: api.SourceFDroid, defaultURL: fdroidURL, config: config, client: client}
	case api.SourceIzzy:
		source = &fdroid{id: api.SourceIzzy, defaultURL: izzyURL, config: config, client: client}
	case api.SourceAptoide:
		source = &aptoide{config: config, client: client}
	case api.SourceApkPure:
		source = &apkpure{config: config, client: client}
	default:
		return nil, fmt.Errorf("unknown source %q", id)
	}

	err := source.load(ctx)
	if err != nil {
		return nil, fmt.Errorf("unable to load source %q: %w", id, err)
	}

	return source, nil
}

// LoadAll loads every source in the given order, using the matching entry of configs if any.
func LoadAll(ctx context.Context, ids []api.SourceID, configs map[api.SourceID]map[string]string, client *Client) ([]Source, error) {
	sources := make([]Source, 0, len(ids))

	for _, id := range ids {
		source, err := Load(ctx, id, configs[id], client)
		if err != nil {
			return nil, err
		}

		sources = append(sources, source)
	}

	return sources, nil
}
