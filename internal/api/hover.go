package api

import (
	"context"

	"github.com/sourcegraph/lsif-server/internal/bundles"
)

// Hover returns the hover text of the symbol at the given position. When
// the dump carries no local hover result, the hover of the symbol's
// definition is used instead.
func (api *CodeIntelAPI) Hover(ctx context.Context, repository, commit, file string, line, character int) (string, bundles.Range, bool, error) {
	dumps, err := api.FindClosestDatabase(ctx, repository, commit, file)
	if err != nil {
		return "", bundles.Range{}, false, err
	}

	for _, dump := range dumps {
		pathInDump := pathRelativeToRoot(dump.Root, file)

		var text string
		var hoverRange bundles.Range
		var exists bool
		err := api.store.WithDatabase(ctx, dump.ID, func(database *bundles.Database) error {
			var err error
			text, hoverRange, exists, err = database.Hover(ctx, pathInDump, line, character)
			return err
		})
		if err != nil {
			return "", bundles.Range{}, false, err
		}

		if exists {
			return text, hoverRange, true, nil
		}

		// Follow the definition; its dump may have the hover text.
		resolved, err := api.definitionsInDump(ctx, dump, pathInDump, line, character)
		if err != nil {
			return "", bundles.Range{}, false, err
		}
		if len(resolved) == 0 {
			continue
		}

		definition := resolved[0]
		err = api.store.WithDatabase(ctx, definition.Dump.ID, func(database *bundles.Database) error {
			var err error
			text, hoverRange, exists, err = database.Hover(
				ctx,
				pathRelativeToRoot(definition.Dump.Root, definition.Path),
				definition.Range.Start.Line,
				definition.Range.Start.Character,
			)
			return err
		})
		if err != nil {
			return "", bundles.Range{}, false, err
		}

		if exists {
			return text, hoverRange, true, nil
		}
	}

	return "", bundles.Range{}, false, nil
}
