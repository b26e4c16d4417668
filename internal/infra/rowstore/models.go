package rowstore

import (
	"time"

	"github.com/NasaVasa/pricewatch/internal/domain"
	"gorm.io/gorm"
)

// watchRowModel mirrors one spreadsheet row. Cells are kept as text so every
// backend exposes the same values the sheet would.
type watchRowModel struct {
	ID          uint   `gorm:"primaryKey"`
	UserID      string `gorm:"index:idx_watch_rows_user_article,priority:1;not null"`
	Article     string `gorm:"index:idx_watch_rows_user_article,priority:2;not null"`
	TargetPrice string `gorm:"not null"`
	LastPrice   string
	Notified    string
	CheckedAt   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	DeletedAt   gorm.DeletedAt `gorm:"index"`
}

func (watchRowModel) TableName() string {
	return "watch_rows"
}

func (m watchRowModel) values() map[string]string {
	return map[string]string{
		domain.ColUserID:      m.UserID,
		domain.ColArticle:     m.Article,
		domain.ColTargetPrice: m.TargetPrice,
		domain.ColLastPrice:   m.LastPrice,
		domain.ColNotified:    m.Notified,
		domain.ColCheckedAt:   m.CheckedAt,
	}
}

func modelFromValues(raw map[string]string) watchRowModel {
	values := make(map[string]string, len(raw))
	for column, value := range raw {
		if name, ok := domain.CanonicalColumn(column); ok {
			values[name] = value
		}
	}
	return watchRowModel{
		UserID:      values[domain.ColUserID],
		Article:     values[domain.ColArticle],
		TargetPrice: values[domain.ColTargetPrice],
		LastPrice:   values[domain.ColLastPrice],
		Notified:    values[domain.ColNotified],
		CheckedAt:   values[domain.ColCheckedAt],
	}
}

// columnUpdates keeps only known columns so callers cannot touch id or
// timestamps through Update.
func columnUpdates(values map[string]string) map[string]any {
	updates := make(map[string]any, len(values))
	for column, value := range values {
		name, ok := domain.CanonicalColumn(column)
		if !ok {
			continue
		}
		updates[name] = value
	}
	return updates
}
