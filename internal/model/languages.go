package model

// AutoDetect lets the translation backend pick the source language.
const AutoDetect = "auto"

// LanguageOption is a static catalog entry.
type LanguageOption struct {
	Name       string `json:"name"`
	Code       string `json:"code"`
	NativeName string `json:"native_name"`
}

var languages = [...]LanguageOption{
	{"Auto Detect", AutoDetect, "Automatic"},
	{"English", "en", "English"},
	{"Indonesian", "id", "Bahasa Indonesia"},
	{"Spanish", "es", "Español"},
	{"French", "fr", "Français"},
	{"German", "de", "Deutsch"},
	{"Japanese", "ja", "日本語"},
	{"Chinese", "zh", "中文"},
	{"Korean", "ko", "한국어"},
	{"Portuguese", "pt", "Português"},
	{"Russian", "ru", "Русский"},
	{"Arabic", "ar", "العربية"},
	{"Thai", "th", "ไทย"},
	{"Vietnamese", "vi", "Tiếng Việt"},
}

// Languages returns a copy of the catalog in display order.
func Languages() []LanguageOption {
	out := make([]LanguageOption, len(languages))
	copy(out, languages[:])
	return out
}

// LookupLanguage finds a catalog entry by code.
func LookupLanguage(code string) (LanguageOption, bool) {
	for _, l := range languages {
		if l.Code == code {
			return l, true
		}
	}
	return LanguageOption{}, false
}

// ValidTarget reports whether code can be a translation target.
func ValidTarget(code string) bool {
	_, ok := LookupLanguage(code)
	return ok && code != AutoDetect
}
