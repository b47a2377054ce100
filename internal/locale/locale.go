// Package locale renders user-facing failure text in the user's language.
package locale

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

// Message keys
const (
	KeySync         = "common.sync"
	KeyActionFailed = "common.actionFailed"
)

// DefaultLanguage is used when no language is configured or the requested one
// has no translations.
const DefaultLanguage = "en"

// Formatter renders a named message with interpolated values
type Formatter interface {
	Format(key string, args ...any) string
}

// Localizer returns a Formatter for a language code
type Localizer func(lang string) Formatter

var messages = map[language.Tag]map[string]string{
	language.English: {
		KeySync:         "sync",
		KeyActionFailed: "%s failed",
	},
	language.SimplifiedChinese: {
		KeySync:         "同步",
		KeyActionFailed: "%s失败",
	},
}

var (
	cat     = buildCatalog()
	matcher = language.NewMatcher([]language.Tag{language.English, language.SimplifiedChinese})
)

func buildCatalog() catalog.Catalog {
	b := catalog.NewBuilder(catalog.Fallback(language.English))
	for tag, msgs := range messages {
		for key, msg := range msgs {
			if err := b.SetString(tag, key, msg); err != nil {
				panic(err)
			}
		}
	}
	return b
}

type printer struct {
	p *message.Printer
}

func (p printer) Format(key string, args ...any) string {
	return p.p.Sprintf(key, args...)
}

// New returns a Formatter for lang, e.g. "en", "zh-CN". Unknown or malformed
// codes fall back to English.
func New(lang string) Formatter {
	if lang == "" {
		lang = DefaultLanguage
	}
	tag, _ := language.MatchStrings(matcher, lang)
	base, _ := tag.Base()
	switch base.String() {
	case "zh":
		tag = language.SimplifiedChinese
	default:
		tag = language.English
	}
	return printer{p: message.NewPrinter(tag, message.Catalog(cat))}
}

// SyncFailed is the generic failure reason used when an error carries no text
func SyncFailed(f Formatter) string {
	return f.Format(KeyActionFailed, f.Format(KeySync))
}
