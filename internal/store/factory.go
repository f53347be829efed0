package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Lynx96-creator/ets2-mod-api/internal/config"
)

// Open creates the record store selected by cfg.Driver
func Open(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger) (RecordStore, error) {
	switch cfg.Driver {
	case config.StoreDriverSheets:
		return NewSheetsStore(ctx, cfg, logger)
	case config.StoreDriverXLSX:
		return NewXLSXStore(cfg, logger)
	case config.StoreDriverMemory:
		return NewMemoryStore(nil, nil), nil
	default:
		return nil, fmt.Errorf("unknown store driver: %q", cfg.Driver)
	}
}
