// Package rowstore implements the spreadsheet-shaped row store behind the
// watch repository: an .xlsx workbook, a SQL table through gorm, or memory.
package rowstore

import (
	"fmt"

	"github.com/NasaVasa/pricewatch/internal/config"
	"github.com/NasaVasa/pricewatch/internal/domain"
	"go.uber.org/zap"
)

func Open(cfg config.Config, log *zap.Logger) (domain.RowStore, error) {
	switch cfg.StoreBackend {
	case config.StoreXLSX:
		return OpenXLSX(cfg.StoreXLSXPath, cfg.StoreXLSXSheet)
	case config.StorePostgres, config.StoreSQLite:
		return OpenSQL(cfg, log)
	case config.StoreMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}
