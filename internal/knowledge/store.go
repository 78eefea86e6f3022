// Package knowledge serves the static treatment, guide and message tables.
package knowledge

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/asimihsan/advisory_engine/pkg/advisory"
)

//go:embed knowledge.yaml
var defaultKnowledge []byte

//go:embed messages.yaml
var defaultMessages []byte

type knowledgeDoc struct {
	Treatments []advisory.Treatment `yaml:"treatments"`
	Guides     []advisory.Guide     `yaml:"guides"`
}

type treatmentKey struct {
	disease string
	crop    string
}

// Store is an in-memory knowledge and translation table. It is read-only
// after construction and safe for concurrent use.
type Store struct {
	treatments map[treatmentKey]advisory.Treatment
	guides     map[string]advisory.Guide
	messages   map[string]map[string]string
}

var (
	_ advisory.Knowledge  = (*Store)(nil)
	_ advisory.Translator = (*Store)(nil)
)

// Default returns the built-in tables.
func Default() (*Store, error) {
	return Parse(defaultKnowledge, defaultMessages)
}

// LoadFiles reads tables from disk. An empty path selects the built-in
// table for that half.
func LoadFiles(knowledgePath, messagesPath string) (*Store, error) {
	k, m := defaultKnowledge, defaultMessages
	if knowledgePath != "" {
		b, err := os.ReadFile(knowledgePath)
		if err != nil {
			return nil, fmt.Errorf("%w: reading knowledge file %s: %v", advisory.ErrConfigLoad, knowledgePath, err)
		}
		k = b
	}
	if messagesPath != "" {
		b, err := os.ReadFile(messagesPath)
		if err != nil {
			return nil, fmt.Errorf("%w: reading messages file %s: %v", advisory.ErrConfigLoad, messagesPath, err)
		}
		m = b
	}
	return Parse(k, m)
}

// Parse builds a Store from YAML sources.
func Parse(knowledgeSrc, messagesSrc []byte) (*Store, error) {
	var doc knowledgeDoc
	if err := yaml.Unmarshal(knowledgeSrc, &doc); err != nil {
		return nil, fmt.Errorf("%w: parsing knowledge table: %v", advisory.ErrConfigLoad, err)
	}
	var messages map[string]map[string]string
	if err := yaml.Unmarshal(messagesSrc, &messages); err != nil {
		return nil, fmt.Errorf("%w: parsing message table: %v", advisory.ErrConfigLoad, err)
	}

	s := &Store{
		treatments: make(map[treatmentKey]advisory.Treatment, len(doc.Treatments)),
		guides:     make(map[string]advisory.Guide, len(doc.Guides)),
		messages:   make(map[string]map[string]string, len(messages)),
	}
	for i, t := range doc.Treatments {
		t.DiseaseID = NormalizeID(t.DiseaseID)
		t.Crop = NormalizeID(t.Crop)
		if t.DiseaseID == "" || t.MessageKey == "" {
			return nil, fmt.Errorf("%w: treatment %d needs disease and message_key", advisory.ErrConfigLoad, i)
		}
		if t.Severity != "" {
			if _, ok := advisory.ParseSeverity(t.Severity); !ok {
				return nil, fmt.Errorf("%w: treatment %s: unknown severity %q", advisory.ErrConfigLoad, t.DiseaseID, t.Severity)
			}
		}
		k := treatmentKey{disease: t.DiseaseID, crop: t.Crop}
		if _, dup := s.treatments[k]; dup {
			return nil, fmt.Errorf("%w: duplicate treatment %s/%s", advisory.ErrConfigLoad, t.DiseaseID, t.Crop)
		}
		s.treatments[k] = t
	}
	for i, g := range doc.Guides {
		if g.Key == "" || g.MessageKey == "" {
			return nil, fmt.Errorf("%w: guide %d needs key and message_key", advisory.ErrConfigLoad, i)
		}
		s.guides[strings.ToLower(g.Key)] = g
	}
	for lang, table := range messages {
		tag := advisory.NormalizeLanguage(lang)
		if tag == "" {
			return nil, fmt.Errorf("%w: unknown message language %q", advisory.ErrConfigLoad, lang)
		}
		s.messages[tag] = table
	}
	return s, nil
}

// LookupTreatment returns the exact (disease, crop) entry. An empty crop
// selects the crop-agnostic entry.
func (s *Store) LookupTreatment(ctx context.Context, diseaseID, cropID string) (advisory.Treatment, error) {
	if err := ctx.Err(); err != nil {
		return advisory.Treatment{}, err
	}
	t, ok := s.treatments[treatmentKey{disease: NormalizeID(diseaseID), crop: NormalizeID(cropID)}]
	if !ok {
		return advisory.Treatment{}, fmt.Errorf("%w: treatment for %q on %q", advisory.ErrNotFound, diseaseID, cropID)
	}
	t.Steps = append([]string(nil), t.Steps...)
	return t, nil
}

// LookupGuide returns the guide stored under key.
func (s *Store) LookupGuide(ctx context.Context, key string) (advisory.Guide, error) {
	if err := ctx.Err(); err != nil {
		return advisory.Guide{}, err
	}
	g, ok := s.guides[strings.ToLower(key)]
	if !ok {
		return advisory.Guide{}, fmt.Errorf("%w: guide %q", advisory.ErrNotFound, key)
	}
	return g, nil
}

// Resolve returns the text for messageKey in language.
func (s *Store) Resolve(ctx context.Context, messageKey, language string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	text, ok := s.messages[advisory.NormalizeLanguage(language)][messageKey]
	if !ok || text == "" {
		return "", fmt.Errorf("%w: %q in %q", advisory.ErrNotFound, messageKey, language)
	}
	return text, nil
}

// Languages lists the languages that have a message table, sorted.
func (s *Store) Languages() []string {
	out := make([]string, 0, len(s.messages))
	for lang := range s.messages {
		out = append(out, lang)
	}
	sort.Strings(out)
	return out
}

// MessageKeys lists every key used by the treatment and guide tables, sorted
// and deduplicated.
func (s *Store) MessageKeys() []string {
	seen := make(map[string]bool)
	for _, t := range s.treatments {
		seen[t.MessageKey] = true
	}
	for _, g := range s.guides {
		seen[g.MessageKey] = true
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// MissingTranslations returns the keys that have no text in language.
func (s *Store) MissingTranslations(language string, keys []string) []string {
	table := s.messages[advisory.NormalizeLanguage(language)]
	var missing []string
	for _, k := range keys {
		if table[k] == "" {
			missing = append(missing, k)
		}
	}
	return missing
}

// NormalizeID maps classifier labels like "Leaf Blight" to "leaf_blight".
func NormalizeID(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.Join(strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == '-' || r == '_'
	}), "_")
}
