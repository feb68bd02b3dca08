package scraper

import (
	"fmt"
	"log/slog"

	"futurespot/internal/config"
	"futurespot/internal/model"
)

// NewFutures creates a futures scraper for the given source name.
func NewFutures(source model.Source, logger *slog.Logger, cfg *config.Config) (FuturesScraper, error) {
	switch source {
	case model.SourceCME:
		return NewCMEScraper(logger, cfg), nil
	default:
		return nil, fmt.Errorf("unknown futures source: %s", source)
	}
}

// NewSpot creates a spot price scraper for the given source name.
func NewSpot(source model.Source, logger *slog.Logger, cfg *config.Config) (SpotScraper, error) {
	switch source {
	case model.SourceEIA:
		return NewEIAScraper(logger, cfg), nil
	default:
		return nil, fmt.Errorf("unknown spot source: %s", source)
	}
}
