package tasks

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
)

var timeNow = time.Now

// Service parses capture input, preferring the model extractor when one is
// configured and always falling back to the deterministic parser, so the
// parse endpoint never fails on input.
type Service struct {
	extractor *Extractor
	tz        *time.Location
	logger    *log.Logger
}

func NewService(extractor *Extractor, tz *time.Location, logger *log.Logger) *Service {
	if tz == nil {
		tz = time.UTC
	}
	return &Service{extractor: extractor, tz: tz, logger: logger}
}

func (s *Service) Parse(ctx context.Context, text string) ParseResult {
	now := timeNow().In(s.tz)
	if s.extractor != nil {
		res, err := s.extractor.Parse(ctx, text, now)
		if err == nil {
			return res
		}
		s.logger.WithError(err).Warn("model extraction failed, using deterministic parser")
	}
	return Parse(text, now)
}
