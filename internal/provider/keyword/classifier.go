// Package keyword is a deterministic English/Malayalam intent classifier
// that needs no model. It backs offline deployments and tests.
package keyword

import (
	"context"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"

	"github.com/asimihsan/advisory_engine/pkg/advisory"
)

type rule struct {
	tag      string
	keywords []string
}

// Checked in order; the first rule with a hit wins. Greetings come last so
// "hello, will it rain" is a weather query.
var rules = []rule{
	{advisory.IntentSchemeQuery, []string{"scheme", "schemes", "subsidy", "government", "pm-kisan", "pm kisan", "pmkisan", "kisan credit", "loan", "insurance", "കേന്ദ്ര", "സർക്കാർ", "സബ്സിഡി", "സ്കീം", "പദ്ധതി", "വായ്പ"}},
	{advisory.IntentDiseaseQuery, []string{"disease", "pest", "blight", "spots", "rot", "wilt", "infection", "yellow leaves", "രോഗം", "കീടം", "ചീയൽ", "പുള്ളി"}},
	{advisory.IntentWeatherQuery, []string{"weather", "rain", "monsoon", "forecast", "temperature", "wind", "കാലാവസ്ഥ", "മഴ", "കാറ്റ്", "ചൂട്"}},
	{advisory.IntentFertilizerQuery, []string{"fertilizer", "fertiliser", "manure", "npk", "urea", "compost", "വളം"}},
	{advisory.IntentSoilQuery, []string{"soil", "ph", "lime", "മണ്ണ്", "കുമ്മായം"}},
	{advisory.IntentCropGuide, []string{"rice", "paddy", "coconut", "pepper", "cardamom", "rubber", "banana", "plant", "grow", "cultivation", "നെല്ല്", "തെങ്ങ്", "കുരുമുളക്", "ഏലം", "റബ്ബർ", "വാഴ", "കൃഷി"}},
	{advisory.IntentGreeting, []string{"hello", "hi", "namaskaram", "good morning", "നമസ്കാരം", "ഹലോ"}},
}

var crops = []struct {
	id       string
	keywords []string
}{
	{"rice", []string{"rice", "paddy", "നെല്ല്", "നെൽ"}},
	{"coconut", []string{"coconut", "തെങ്ങ", "നാളികേരം", "തേങ്ങ"}},
	{"pepper", []string{"pepper", "കുരുമുളക്"}},
	{"cardamom", []string{"cardamom", "ഏലം"}},
	{"rubber", []string{"rubber", "റബ്ബർ"}},
	{"banana", []string{"banana", "വാഴ"}},
}

var schemes = []struct {
	id       string
	keywords []string
}{
	{"pm_kisan", []string{"pm-kisan", "pm kisan", "pmkisan"}},
	{"kisan_credit_card", []string{"kisan credit", "kcc", "credit card"}},
}

var plantingWords = []string{"plant", "planting", "sow", "transplant", "നടീൽ", "നടുക", "ഞാറ്"}

// Classifier implements advisory.IntentClassifier.
type Classifier struct{}

var (
	_ advisory.IntentClassifier = (*Classifier)(nil)
	_ advisory.Lookup           = (*Classifier)(nil)
)

// New creates a keyword classifier.
func New() *Classifier {
	return &Classifier{}
}

// Name implements advisory.IntentClassifier.
func (c *Classifier) Name() string { return "keyword" }

// IsLookup implements advisory.Lookup.
func (c *Classifier) IsLookup() bool { return true }

// ClassifyIntent implements advisory.IntentClassifier. Text containing
// Malayalam script is reported as Malayalam regardless of the hint.
func (c *Classifier) ClassifyIntent(ctx context.Context, text, languageHint string) (advisory.Intent, error) {
	if err := ctx.Err(); err != nil {
		return advisory.Intent{}, err
	}

	normalized := strings.Join(strings.Fields(norm.NFC.String(text)), " ")
	folded := cases.Fold().String(normalized)

	lang := DetectLanguage(normalized)
	if lang == "" {
		lang = advisory.NormalizeLanguage(languageHint)
	}
	if lang == "" {
		lang = advisory.LanguageEnglish
	}

	intent := advisory.Intent{
		Tag:            advisory.IntentUnknown,
		Language:       lang,
		NormalizedText: normalized,
		Confidence:     0.5,
		Slots:          map[string]string{},
	}
	if folded == "" {
		intent.Confidence = 0
		return intent, nil
	}

	for _, r := range rules {
		hits := countHits(folded, r.keywords)
		if hits == 0 {
			continue
		}
		intent.Tag = r.tag
		intent.Confidence = min(0.9, 0.6+0.1*float64(hits-1))
		break
	}

	if crop := firstMatch(folded, crops); crop != "" {
		intent.Slots["crop"] = crop
	}
	if intent.Tag == advisory.IntentSchemeQuery {
		if s := firstMatch(folded, schemes); s != "" {
			intent.Slots["scheme"] = s
		}
	}
	if intent.Tag == advisory.IntentCropGuide && countHits(folded, plantingWords) > 0 {
		intent.Slots["topic"] = "planting"
	}
	return intent, nil
}

// DetectLanguage returns "ml" when text contains Malayalam script, "en" when
// it contains Latin letters only, and "" when it has no letters.
func DetectLanguage(text string) string {
	latin := false
	for _, r := range text {
		switch {
		case unicode.Is(unicode.Malayalam, r):
			return advisory.LanguageMalayalam
		case unicode.Is(unicode.Latin, r):
			latin = true
		}
	}
	if latin {
		return language.English.String()
	}
	return ""
}

func firstMatch(folded string, table []struct {
	id       string
	keywords []string
}) string {
	for _, e := range table {
		if countHits(folded, e.keywords) > 0 {
			return e.id
		}
	}
	return ""
}

func countHits(folded string, keywords []string) int {
	n := 0
	for _, k := range keywords {
		if contains(folded, k) {
			n++
		}
	}
	return n
}

// contains matches Latin keywords on word boundaries and Malayalam keywords
// as substrings, since Malayalam words take suffixes.
func contains(folded, keyword string) bool {
	if !isASCII(keyword) {
		return strings.Contains(folded, keyword)
	}
	for i := 0; ; {
		j := strings.Index(folded[i:], keyword)
		if j < 0 {
			return false
		}
		start, end := i+j, i+j+len(keyword)
		if boundary(folded, start-1) && boundary(folded, end) {
			return true
		}
		i = start + 1
	}
}

func boundary(s string, i int) bool {
	if i < 0 || i >= len(s) {
		return true
	}
	b := s[i]
	return !(b >= 'a' && b <= 'z' || b >= '0' && b <= '9')
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}
