package core

import "errors"

var ErrUnsupportedLanguage = errors.New("unsupported language")

type Language struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// SupportedLanguages lists the response languages in display order.
var SupportedLanguages = []Language{
	{Code: "en", Name: "English"},
	{Code: "es", Name: "Español"},
	{Code: "fr", Name: "Français"},
	{Code: "de", Name: "Deutsch"},
	{Code: "it", Name: "Italiano"},
	{Code: "pt", Name: "Português"},
	{Code: "ja", Name: "日本語"},
	{Code: "ko", Name: "한국어"},
	{Code: "zh", Name: "中文"},
}

// LanguageName resolves a language code to the name used in prompts.
func LanguageName(code string) (string, error) {
	for _, l := range SupportedLanguages {
		if l.Code == code {
			return l.Name, nil
		}
	}
	return "", ErrUnsupportedLanguage
}
