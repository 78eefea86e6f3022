package file

import (
	"context"
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/asimihsan/advisory_engine/internal/engine/opa"
	"github.com/asimihsan/advisory_engine/pkg/advisory"
)

//go:embed default_rules.yaml
var defaultRules []byte

// DefaultSource is the built-in rule table.
func DefaultSource() []byte {
	out := make([]byte, len(defaultRules))
	copy(out, defaultRules)
	return out
}

type tableDoc struct {
	Version int       `yaml:"version"`
	Rules   []ruleDoc `yaml:"rules"`
}

type ruleDoc struct {
	ID         string   `yaml:"id"`
	Scope      string   `yaml:"scope"`
	WithinDays int      `yaml:"within_days"`
	When       string   `yaml:"when"`
	Crops      []string `yaml:"crops"`
	Stages     []string `yaml:"stages"`
	Action     struct {
		Category   string `yaml:"category"`
		Severity   string `yaml:"severity"`
		MessageKey string `yaml:"message_key"`
	} `yaml:"action"`
}

// Table is a compiled rule table.
type Table struct {
	id    string
	rules []advisory.Rule
}

var _ advisory.RuleTable = (*Table)(nil)

// ID implements advisory.RuleTable
func (t *Table) ID() string {
	return t.id
}

// Rules implements advisory.RuleTable. The returned slice is a copy.
func (t *Table) Rules() []advisory.Rule {
	out := make([]advisory.Rule, len(t.rules))
	copy(out, t.rules)
	return out
}

// Provider implements advisory.RuleTableProvider for YAML rule files
type Provider struct {
	RulesPath string // empty selects the built-in table
	engine    *opa.Engine

	mu sync.Mutex
	// caches the compiled table to avoid recompiling every time
	cachedTable advisory.RuleTable
}

var _ advisory.RuleTableProvider = (*Provider)(nil)

// New creates a new file-based rule table provider
func New(rulesPath string) *Provider {
	return &Provider{
		RulesPath: rulesPath,
		engine:    opa.NewEngine(),
	}
}

// GetRuleTable implements advisory.RuleTableProvider
func (p *Provider) GetRuleTable(ctx context.Context) (advisory.RuleTable, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cachedTable != nil {
		return p.cachedTable, nil
	}

	source := defaultRules
	name := "default_rules.yaml"
	if p.RulesPath != "" {
		b, err := os.ReadFile(p.RulesPath)
		if err != nil {
			return nil, fmt.Errorf("%w: reading rule file %s: %v", advisory.ErrRuleLoad, p.RulesPath, err)
		}
		source = b
		name = p.RulesPath
	}

	table, err := Compile(ctx, p.engine, source)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	p.cachedTable = table

	return table, nil
}

// Compile parses and compiles a YAML rule table.
func Compile(ctx context.Context, engine *opa.Engine, source []byte) (*Table, error) {
	var doc tableDoc
	if err := yaml.Unmarshal(source, &doc); err != nil {
		return nil, fmt.Errorf("%w: parsing rule table: %v", advisory.ErrRuleLoad, err)
	}
	if len(doc.Rules) == 0 {
		return nil, fmt.Errorf("%w: rule table is empty", advisory.ErrRuleLoad)
	}

	seen := make(map[string]bool, len(doc.Rules))
	rules := make([]advisory.Rule, 0, len(doc.Rules))
	for i, rd := range doc.Rules {
		rule, err := buildRule(ctx, engine, rd)
		if err != nil {
			return nil, fmt.Errorf("rule %d (%s): %w", i, rd.ID, err)
		}
		if seen[rule.ID] {
			return nil, fmt.Errorf("%w: duplicate rule id %q", advisory.ErrRuleLoad, rule.ID)
		}
		seen[rule.ID] = true
		rules = append(rules, rule)
	}

	hash := sha256.Sum256(source)
	return &Table{id: hex.EncodeToString(hash[:]), rules: rules}, nil
}

func buildRule(ctx context.Context, engine *opa.Engine, rd ruleDoc) (advisory.Rule, error) {
	if strings.TrimSpace(rd.ID) == "" {
		return advisory.Rule{}, fmt.Errorf("%w: missing id", advisory.ErrRuleLoad)
	}

	scope := advisory.RuleScope(rd.Scope)
	if scope == "" {
		scope = advisory.ScopeDay
	}
	if scope != advisory.ScopeDay && scope != advisory.ScopeWindow {
		return advisory.Rule{}, fmt.Errorf("%w: unknown scope %q", advisory.ErrRuleLoad, rd.Scope)
	}
	if rd.WithinDays < 0 {
		return advisory.Rule{}, fmt.Errorf("%w: within_days must not be negative", advisory.ErrRuleLoad)
	}

	category := advisory.Category(rd.Action.Category)
	if !category.Valid() {
		return advisory.Rule{}, fmt.Errorf("%w: unknown category %q", advisory.ErrRuleLoad, rd.Action.Category)
	}
	severity, ok := advisory.ParseSeverity(rd.Action.Severity)
	if !ok {
		return advisory.Rule{}, fmt.Errorf("%w: unknown severity %q", advisory.ErrRuleLoad, rd.Action.Severity)
	}
	if rd.Action.MessageKey == "" {
		return advisory.Rule{}, fmt.Errorf("%w: missing message_key", advisory.ErrRuleLoad)
	}

	cond, err := engine.Compile(ctx, rd.When)
	if err != nil {
		return advisory.Rule{}, err
	}

	return advisory.Rule{
		ID:         rd.ID,
		Scope:      scope,
		Condition:  cond,
		WithinDays: rd.WithinDays,
		Crops:      rd.Crops,
		Stages:     rd.Stages,
		Consequence: advisory.Consequence{
			Category:   category,
			Severity:   severity,
			MessageKey: rd.Action.MessageKey,
		},
	}, nil
}
