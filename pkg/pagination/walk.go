package pagination

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// PageFunc handles a single page. Returning an error stops the walk.
type PageFunc func(ctx context.Context, page Page) error

// Walk calls fn for every page in order, one at a time.
// It returns the first error, wrapped with the page that produced it, and
// leaves the remaining pages untouched.
func Walk(ctx context.Context, pages []Page, fn PageFunc) error {
	start := time.Now()

	for i, page := range pages {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("page %d/%d (%s): %w", i+1, len(pages), page, err)
		}

		if err := fn(ctx, page); err != nil {
			log.Warn().
				Err(err).
				Int("page", i+1).
				Int("count", page.Count).
				Int("offset", page.Offset).
				Msg("Page failed - aborting walk")
			return fmt.Errorf("page %d/%d (%s): %w", i+1, len(pages), page, err)
		}

		log.Debug().
			Int("page", i+1).
			Int("total", len(pages)).
			Int("offset", page.Offset).
			Msg("Page complete")
	}

	log.Info().
		Int("pages", len(pages)).
		Dur("duration", time.Since(start)).
		Msg("Walk complete")

	return nil
}
