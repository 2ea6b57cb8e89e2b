package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"metamender/internal/logging"
	"metamender/internal/media"
	"metamender/internal/services/jellyfin"
)

// ItemStore is the catalog write capability.
type ItemStore interface {
	GetItem(ctx context.Context, itemID string) (map[string]json.RawMessage, error)
	UpdateItem(ctx context.Context, itemID string, dto map[string]json.RawMessage) error
}

// ApplyStatus is the terminal state of a write.
type ApplyStatus int

const (
	Applied ApplyStatus = iota
	Skipped
	Failed
)

func (s ApplyStatus) String() string {
	switch s {
	case Applied:
		return "applied"
	case Skipped:
		return "skipped"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// ApplyErrorKind classifies a failed write.
type ApplyErrorKind string

const (
	NotFound    ApplyErrorKind = "NotFound"
	ServerError ApplyErrorKind = "ServerError"
)

// Skip reasons reported by the applier.
const (
	ReasonEmptyText = "empty-text"
	ReasonUnchanged = "unchanged"
)

// ApplyResult is Applied, Skipped(Reason), or Failed(Kind).
type ApplyResult struct {
	Status ApplyStatus
	Reason string
	Kind   ApplyErrorKind
	Err    error
}

// Applier writes descriptions back to the catalog.
type Applier struct {
	store  ItemStore
	logger *slog.Logger
}

// NewApplier constructs an applier backed by store.
func NewApplier(store ItemStore, logger *slog.Logger) *Applier {
	return &Applier{store: store, logger: logging.NewComponentLogger(logger, "catalog")}
}

// Apply replaces the item's overview with text. The full item is fetched
// first so the update posts every field the server returned.
func (a *Applier) Apply(ctx context.Context, item media.Item, text string) ApplyResult {
	text = strings.TrimSpace(text)
	if text == "" {
		return ApplyResult{Status: Skipped, Reason: ReasonEmptyText}
	}
	if text == strings.TrimSpace(item.Overview) {
		return ApplyResult{Status: Skipped, Reason: ReasonUnchanged}
	}
	if a == nil || a.store == nil {
		return ApplyResult{Status: Failed, Kind: ServerError, Err: fmt.Errorf("apply %s: no catalog client configured", item.ID)}
	}

	dto, err := a.store.GetItem(ctx, item.ID)
	if err != nil {
		return failure(item, "fetch item", err)
	}
	encoded, err := json.Marshal(text)
	if err != nil {
		return ApplyResult{Status: Failed, Kind: ServerError, Err: fmt.Errorf("apply %s: encode overview: %w", item.ID, err)}
	}
	dto["Overview"] = encoded

	if err := a.store.UpdateItem(ctx, item.ID, dto); err != nil {
		return failure(item, "update item", err)
	}
	logging.WithContext(ctx, a.logger).Debug("overview written",
		logging.String(logging.FieldEventType, "overview_written"),
		logging.Int("chars", len([]rune(text))),
	)
	return ApplyResult{Status: Applied}
}

func failure(item media.Item, op string, err error) ApplyResult {
	kind := ServerError
	switch jellyfin.StatusCode(err) {
	case http.StatusNotFound, http.StatusForbidden, http.StatusGone:
		kind = NotFound
	}
	return ApplyResult{Status: Failed, Kind: kind, Err: fmt.Errorf("apply %s: %s: %w", item.ID, op, err)}
}
