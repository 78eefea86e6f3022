//go:build tools
// +build tools

package main

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	rulesFile     = "internal/policy/file/default_rules.yaml"
	knowledgeFile = "internal/knowledge/knowledge.yaml"
	messagesFile  = "internal/knowledge/messages.yaml"
	advisoryDir   = "pkg/advisory"
)

// collectYAMLKeys returns every message_key value anywhere in a YAML file.
func collectYAMLKeys(path string, keys map[string]string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}

	var walk func(n *yaml.Node)
	walk = func(n *yaml.Node) {
		if n.Kind == yaml.MappingNode {
			for i := 0; i+1 < len(n.Content); i += 2 {
				k, v := n.Content[i], n.Content[i+1]
				if k.Value == "message_key" && v.Kind == yaml.ScalarNode {
					keys[v.Value] = fmt.Sprintf("%s:%d", path, v.Line)
				}
			}
		}
		for _, c := range n.Content {
			walk(c)
		}
	}
	walk(&root)
	return nil
}

// collectCodeKeys finds message keys declared as constants in the advisory
// package: Msg* strings, plus the notice and error keys derived from
// NoticeCode and ErrorCode constants.
func collectCodeKeys(dir string, keys map[string]string) error {
	return filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !strings.HasSuffix(path, ".go") || strings.HasSuffix(path, "_test.go") {
			return nil
		}

		fset := token.NewFileSet()
		file, err := parser.ParseFile(fset, path, nil, 0)
		if err != nil {
			return err
		}

		ast.Inspect(file, func(n ast.Node) bool {
			decl, ok := n.(*ast.GenDecl)
			if !ok || decl.Tok != token.CONST {
				return true
			}
			for _, s := range decl.Specs {
				vs := s.(*ast.ValueSpec)
				prefix := ""
				if ident, ok := vs.Type.(*ast.Ident); ok {
					switch ident.Name {
					case "NoticeCode":
						prefix = "notice."
					case "ErrorCode":
						prefix = "error."
					default:
						continue
					}
				}
				for i, name := range vs.Names {
					if i >= len(vs.Values) {
						continue
					}
					lit, ok := vs.Values[i].(*ast.BasicLit)
					if !ok || lit.Kind != token.STRING {
						continue
					}
					if prefix == "" && !strings.HasPrefix(name.Name, "Msg") {
						continue
					}
					value, err := strconv.Unquote(lit.Value)
					if err != nil {
						continue
					}
					keys[prefix+value] = fset.Position(lit.Pos()).String()
				}
			}
			return true
		})
		return nil
	})
}

func main() {
	keys := make(map[string]string)
	for _, f := range []string{rulesFile, knowledgeFile} {
		if err := collectYAMLKeys(f, keys); err != nil {
			fmt.Fprintf(os.Stderr, "Error collecting keys: %v\n", err)
			os.Exit(1)
		}
	}
	if err := collectCodeKeys(advisoryDir, keys); err != nil {
		fmt.Fprintf(os.Stderr, "Error scanning %s: %v\n", advisoryDir, err)
		os.Exit(1)
	}

	data, err := os.ReadFile(messagesFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading messages: %v\n", err)
		os.Exit(1)
	}
	var tables map[string]map[string]string
	if err := yaml.Unmarshal(data, &tables); err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing messages: %v\n", err)
		os.Exit(1)
	}

	var missing []string
	for lang, table := range tables {
		for key, where := range keys {
			if strings.TrimSpace(table[key]) == "" {
				missing = append(missing, fmt.Sprintf("%s: %s (used at %s)", lang, key, where))
			}
		}
	}
	sort.Strings(missing)

	if len(missing) > 0 {
		fmt.Fprintf(os.Stderr, "ERROR: The following message keys have no translation:\n")
		for _, m := range missing {
			fmt.Fprintf(os.Stderr, "  - %s\n", m)
		}
		os.Exit(1)
	}

	fmt.Printf("SUCCESS: All %d message keys are translated in %d languages.\n", len(keys), len(tables))
}
