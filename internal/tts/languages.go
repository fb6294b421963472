package tts

import (
	"maps"
	"slices"
)

// DefaultLanguages is the language table of the multilingual model. It is used
// until the model reports its own table on Load.
var DefaultLanguages = map[string]string{
	"ar": "Arabic",
	"da": "Danish",
	"de": "German",
	"el": "Greek",
	"en": "English",
	"es": "Spanish",
	"fi": "Finnish",
	"fr": "French",
	"he": "Hebrew",
	"hi": "Hindi",
	"it": "Italian",
	"ja": "Japanese",
	"ko": "Korean",
	"ms": "Malay",
	"nl": "Dutch",
	"no": "Norwegian",
	"pl": "Polish",
	"pt": "Portuguese",
	"ru": "Russian",
	"sv": "Swedish",
	"sw": "Swahili",
	"tr": "Turkish",
	"zh": "Chinese",
}

// LanguageCodes returns the sorted codes of a language table.
func LanguageCodes(languages map[string]string) []string {
	return slices.Sorted(maps.Keys(languages))
}
