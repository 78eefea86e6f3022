package main

import (
	"fmt"
	"sort"

	"github.com/davecgh/go-spew/spew"
	"github.com/spf13/cobra"

	"github.com/asimihsan/advisory_engine/internal/config"
	"github.com/asimihsan/advisory_engine/internal/knowledge"
	"github.com/asimihsan/advisory_engine/internal/policy/file"
	"github.com/asimihsan/advisory_engine/pkg/advisory"
)

var rulesVerbose bool

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Compile the rule table and check its translations",
	Long: `Rules compiles the configured weather rule table, lists the rules in
registration order and reports message keys without a translation in any
configured language. It exits non-zero when a translation is missing.`,
	Args: cobra.NoArgs,
	RunE: runRules,
}

func init() {
	rulesCmd.Flags().BoolVar(&rulesVerbose, "spew", false, "Dump the compiled rules")
}

func runRules(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	table, err := file.New(config.Deref(cfg.RulesPath)).GetRuleTable(ctx)
	if err != nil {
		return err
	}
	store, err := knowledge.LoadFiles(config.Deref(cfg.KnowledgePath), config.Deref(cfg.MessagesPath))
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Rule table %s\n", table.ID())
	keys := advisory.EngineMessageKeys()
	for _, r := range table.Rules() {
		fmt.Fprintf(out, "  %-24s %-6s %-8s %-13s %s\n",
			r.ID, r.Scope, r.Consequence.Severity, r.Consequence.Category, r.Condition.Source())
		keys = append(keys, r.Consequence.MessageKey)
	}
	if rulesVerbose {
		fmt.Fprintln(out, spew.Sdump(table.Rules()))
	}

	missing := map[string][]string{}
	for _, lang := range store.Languages() {
		if m := store.MissingTranslations(lang, keys); len(m) > 0 {
			missing[lang] = m
		}
	}
	if len(missing) == 0 {
		fmt.Fprintf(out, "All %d message keys are translated in %v\n", len(keys), store.Languages())
		return nil
	}
	langs := make([]string, 0, len(missing))
	for l := range missing {
		langs = append(langs, l)
	}
	sort.Strings(langs)
	for _, l := range langs {
		fmt.Fprintf(out, "Missing %s translations: %v\n", l, missing[l])
	}
	return fmt.Errorf("%w: %d languages have missing keys", advisory.ErrLocalizationMissing, len(missing))
}
