package advisory

import "golang.org/x/text/language"

// Supported advisory languages.
const (
	LanguageEnglish   = "en"
	LanguageMalayalam = "ml"
)

// NormalizeLanguage reduces a BCP 47 tag such as "ml-IN" to its base
// language ("ml"). Unparseable input yields "".
func NormalizeLanguage(tag string) string {
	if tag == "" {
		return ""
	}
	t, err := language.Parse(tag)
	if err != nil {
		return ""
	}
	base, _ := t.Base()
	return base.String()
}
