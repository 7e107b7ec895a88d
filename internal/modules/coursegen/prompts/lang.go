package prompts

import "strings"

const DefaultLanguage = "fr"

var languageLabels = map[string]string{
	"fr": "French",
	"en": "English",
	"es": "Spanish",
	"de": "German",
	"it": "Italian",
}

// LangLabel maps a language code to the name used in prompts. Unknown codes
// fall back to French.
func LangLabel(code string) string {
	if l, ok := languageLabels[strings.ToLower(strings.TrimSpace(code))]; ok {
		return l
	}
	return languageLabels[DefaultLanguage]
}
