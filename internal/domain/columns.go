package domain

import "strings"

const (
	ColUserID      = "user_id"
	ColArticle     = "article"
	ColTargetPrice = "target_price"
	ColLastPrice   = "last_price"
	ColNotified    = "notified"
	ColCheckedAt   = "checked_at"
)

// Columns is the header order used when a store creates its own layout.
var Columns = []string{ColUserID, ColArticle, ColTargetPrice, ColLastPrice, ColNotified, ColCheckedAt}

var columnAliases = map[string]string{
	"user_id":       ColUserID,
	"userid":        ColUserID,
	"article":       ColArticle,
	"artikel":       ColArticle,
	"item_id":       ColArticle,
	"itemid":        ColArticle,
	"target_price":  ColTargetPrice,
	"targetprice":   ColTargetPrice,
	"last_price":    ColLastPrice,
	"lastprice":     ColLastPrice,
	"current_price": ColLastPrice,
	"currentprice":  ColLastPrice,
	"notified":      ColNotified,
	"checked_at":    ColCheckedAt,
	"checkedat":     ColCheckedAt,
	"updated_at":    ColCheckedAt,
}

// CanonicalColumn maps a header cell such as "TargetPrice" or "Artikel" to
// its canonical column name.
func CanonicalColumn(header string) (string, bool) {
	key := strings.ToLower(strings.TrimSpace(header))
	key = strings.ReplaceAll(key, " ", "_")
	name, ok := columnAliases[key]
	return name, ok
}
