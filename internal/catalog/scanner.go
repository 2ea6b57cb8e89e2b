package catalog

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"strings"

	"metamender/internal/logging"
	"metamender/internal/media"
	"metamender/internal/services"
	"metamender/internal/services/jellyfin"
)

// ErrCatalogUnavailable marks a failed catalog listing. It is fatal to a run.
var ErrCatalogUnavailable = fmt.Errorf("catalog unavailable: %w", services.ErrUnavailable)

// Lister is the catalog read capability.
type Lister interface {
	ListItems(ctx context.Context, query jellyfin.ItemQuery) ([]jellyfin.ItemDTO, error)
}

// Scope selects which items a scan returns.
type Scope struct {
	ItemTypes    []string
	ExcludeTypes []string
	LibraryID    string
}

// Scanner lists catalog items.
type Scanner struct {
	lister Lister
	logger *slog.Logger
}

// NewScanner constructs a scanner backed by lister.
func NewScanner(lister Lister, logger *slog.Logger) *Scanner {
	return &Scanner{lister: lister, logger: logging.NewComponentLogger(logger, "catalog")}
}

// Scan issues one listing request and returns the matching items. Tracks are
// always dropped, as are items whose kind is excluded by scope. A failed
// listing wraps ErrCatalogUnavailable; call Scan again to restart.
func (s *Scanner) Scan(ctx context.Context, scope Scope) (iter.Seq[media.Item], error) {
	if s == nil || s.lister == nil {
		return nil, services.Wrap(ErrCatalogUnavailable, "catalog", "scan", "no catalog client configured", nil)
	}
	dtos, err := s.lister.ListItems(ctx, jellyfin.ItemQuery{
		IncludeItemTypes: scope.ItemTypes,
		ParentID:         scope.LibraryID,
	})
	if err != nil {
		return nil, services.Wrap(ErrCatalogUnavailable, "catalog", "scan", "list items", err)
	}

	excluded := make(map[string]struct{}, len(scope.ExcludeTypes))
	for _, kind := range scope.ExcludeTypes {
		excluded[strings.ToLower(strings.TrimSpace(kind))] = struct{}{}
	}

	items := make([]media.Item, 0, len(dtos))
	dropped := 0
	for _, dto := range dtos {
		if strings.EqualFold(dto.Type, media.KindTrack) {
			dropped++
			continue
		}
		if _, skip := excluded[strings.ToLower(dto.Type)]; skip {
			dropped++
			continue
		}
		if strings.TrimSpace(dto.ID) == "" {
			dropped++
			continue
		}
		items = append(items, itemFromDTO(dto))
	}

	s.logger.Info("catalog scanned",
		logging.String(logging.FieldEventType, "catalog_scanned"),
		logging.Int("listed", len(dtos)),
		logging.Int("items", len(items)),
		logging.Int("dropped", dropped),
		logging.String("library_id", scope.LibraryID),
	)

	return func(yield func(media.Item) bool) {
		for _, item := range items {
			if !yield(item) {
				return
			}
		}
	}, nil
}

func itemFromDTO(dto jellyfin.ItemDTO) media.Item {
	return media.Item{
		ID:             dto.ID,
		Name:           strings.TrimSpace(dto.Name),
		Kind:           dto.Type,
		Overview:       dto.Overview,
		ParentID:       dto.ParentID,
		OriginalTitle:  strings.TrimSpace(dto.OriginalTitle),
		Artists:        dto.Artists,
		AlbumArtist:    strings.TrimSpace(dto.AlbumArtist),
		Genres:         dto.Genres,
		ProductionYear: dto.ProductionYear,
	}
}
