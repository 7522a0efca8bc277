// Package locale provides the user-facing strings embedded in notifications.
// Lookups match the caller's language hint against the supported set with
// golang.org/x/text language matching and fall back to English.
package locale

import (
	"fmt"

	"golang.org/x/text/language"
)

var supported = []language.Tag{
	language.English, // first = fallback
	language.Russian,
}

var matcher = language.NewMatcher(supported)

var catalogue = map[string]map[string]string{
	"en": {
		"gift_buy_congrats":     "You have purchased the gift %s.",
		"gift_received_notify":  "%s received your gift %s.",
		"gift_activated_notify": "You received the gift %s from %s.",
		"gift_buy_desc":         "Purchasing the %s gift",
		"open_gifts":            "Open Gifts",
		"open_app":              "Open App",
	},
	"ru": {
		"gift_buy_congrats":     "Вы купили подарок %s.",
		"gift_received_notify":  "%s получил ваш подарок %s.",
		"gift_activated_notify": "Вы получили подарок %s от %s.",
		"gift_buy_desc":         "Покупка подарка %s",
		"open_gifts":            "Открыть подарки",
		"open_app":              "Открыть приложение",
	},
}

// T returns the message for key in the closest supported language, formatted
// with args. Unknown keys come back as the key itself so a missing entry is
// visible rather than silent.
func T(lang, key string, args ...any) string {
	tag, _ := language.MatchStrings(matcher, lang)
	base, _ := tag.Base()
	msgs, ok := catalogue[base.String()]
	if !ok {
		msgs = catalogue["en"]
	}
	msg, ok := msgs[key]
	if !ok {
		if msg, ok = catalogue["en"][key]; !ok {
			return key
		}
	}
	if len(args) == 0 {
		return msg
	}
	return fmt.Sprintf(msg, args...)
}
