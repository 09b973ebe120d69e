// Package alias implements the category/ad-source free-text normalization
// table (SPEC_FULL.md §4.14), the only accepted free-text entry point per
// spec §9. Historical Cyrillic and Latin labels fold to canonical machine
// codes via golang.org/x/text/cases, matching the teacher's use of
// golang.org/x/text for locale-aware text handling (repurposed here from
// dashboard rendering to label matching).
package alias

import (
	"github.com/fieldops/dispatchcore/model"
	"golang.org/x/text/cases"
)

var fold = cases.Fold()

func normalizeKey(s string) string {
	return fold.String(s)
}

var categoryAliases = buildAliasMap(map[model.TicketCategory][]string{
	model.CategoryPC:      {"PC", "ПК", "PERSONAL COMPUTER", "КОМПЬЮТЕР"},
	model.CategoryTV:      {"TV", "ТВ", "ТЕЛЕВИЗОР"},
	model.CategoryPhone:   {"PHONE", "ТЕЛЕФОН", "СМАРТФОН"},
	model.CategoryPrinter: {"PRINTER", "ПРИНТЕР"},
	model.CategoryOther:   {"OTHER", "ДРУГОЕ", "ПРОЧЕЕ"},
})

var adSourceAliases = buildAliasMap(map[model.AdSource][]string{
	model.AdSourceAvito:        {"AVITO", "АВИТО"},
	model.AdSourceFlyer:        {"LEAFLET", "FLYER", "ЛИСТОВКА"},
	model.AdSourceBusinessCard: {"BUSINESS_CARD", "CARD", "ВИЗИТКА"},
	model.AdSourceOther:        {"OTHER", "ДРУГОЕ"},
	model.AdSourceUnknown:      {"UNKNOWN", "НЕИЗВЕСТНО", ""},
})

func buildAliasMap[T ~string](canon map[T][]string) map[string]T {
	out := make(map[string]T)
	for code, labels := range canon {
		out[normalizeKey(string(code))] = code
		for _, label := range labels {
			out[normalizeKey(label)] = code
		}
	}
	return out
}

// NormalizeCategory maps a free-text category label (any case, Cyrillic or
// Latin) to its canonical machine code.
func NormalizeCategory(label string) (model.TicketCategory, bool) {
	code, ok := categoryAliases[normalizeKey(label)]
	return code, ok
}

// NormalizeAdSource maps a free-text ad-source label to its canonical
// machine code, grounded in original_source's LEGACY_AD_SOURCE_MAP.
func NormalizeAdSource(label string) (model.AdSource, bool) {
	code, ok := adSourceAliases[normalizeKey(label)]
	return code, ok
}
