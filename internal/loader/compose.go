package loader

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"sigs.k8s.io/yaml"
)

const (
	includeSymbol     = "(@)"
	conditionalSymbol = "(?)"
)

// decodeYAMLNode reads path and decodes it into a generic node tree:
// map[string]any, []any, and scalars, the shape 
// include/override/conditional composition operates over before any
// schema-specific decoding happens.
func decodeYAMLNode(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("loader: read %s: %w", path, err)
	}
	var node map[string]any
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, fmt.Errorf("loader: parse %s: %w", path, err)
	}
	return node, nil
}

// resolveIncludes recursively expands `(@) <path>` directives. baseDir anchors relative
// include paths next to the file node was loaded from.
func resolveIncludes(node map[string]any, baseDir string, seen map[string]bool) (map[string]any, error) {
	result := map[string]any{}
	if raw, ok := node[includeSymbol]; ok {
		paths, err := asStringList(raw)
		if err != nil {
			return nil, fmt.Errorf("loader: %s: %w", includeSymbol, err)
		}
		for _, rel := range paths {
			path := rel
			if !filepath.IsAbs(path) {
				path = filepath.Join(baseDir, path)
			}
			if seen[path] {
				return nil, fmt.Errorf("loader: circular include of %s", path)
			}
			included, err := decodeYAMLNode(path)
			if err != nil {
				return nil, err
			}
			seenCopy := cloneSeen(seen)
			seenCopy[path] = true
			included, err = resolveIncludes(included, filepath.Dir(path), seenCopy)
			if err != nil {
				return nil, err
			}
			result = mergeNodes(result, included)
		}
	}
	rest := map[string]any{}
	for k, v := range node {
		if k == includeSymbol {
			continue
		}
		rest[k] = v
	}
	return mergeNodes(result, rest), nil
}

func cloneSeen(m map[string]bool) map[string]bool {
	out := make(map[string]bool, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	return out
}

// mergeNodes field-level merges override on top of base: scalars and lists
// in override replace base's, nested maps merge recursively.
func mergeNodes(base, override map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(override))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range override {
		if baseVal, ok := out[k]; ok {
			if baseMap, ok := asMap(baseVal); ok {
				if overrideMap, ok := asMap(v); ok {
					out[k] = mergeNodes(baseMap, overrideMap)
					continue
				}
			}
		}
		out[k] = v
	}
	return out
}

func asMap(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok
}

func asStringList(raw any) ([]string, error) {
	switch v := raw.(type) {
	case string:
		return []string{v}, nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("expected a string, got %T", item)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected a string or list of strings, got %T", raw)
	}
}

// resolveConditionals evaluates every `(?)` block in node against options
// and merges the then-nodes of matching entries, in declaration order
//: [expr, [then-node]]`).
func resolveConditionals(node map[string]any, options map[string]string) (map[string]any, error) {
	result := map[string]any{}
	for k, v := range node {
		if k == conditionalSymbol {
			continue
		}
		if nested, ok := asMap(v); ok {
			resolved, err := resolveConditionals(nested, options)
			if err != nil {
				return nil, err
			}
			result[k] = resolved
			continue
		}
		result[k] = v
	}

	raw, ok := node[conditionalSymbol]
	if !ok {
		return result, nil
	}
	clauses, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("loader: %s must be a list of [expr, then-node] pairs", conditionalSymbol)
	}
	for _, clauseRaw := range clauses {
		clause, ok := clauseRaw.([]any)
		if !ok || len(clause) != 2 {
			return nil, fmt.Errorf("loader: %s clause must be a 2-element list", conditionalSymbol)
		}
		exprStr, ok := clause[0].(string)
		if !ok {
			return nil, fmt.Errorf("loader: %s expression must be a string", conditionalSymbol)
		}
		thenNode, ok := asMap(clause[1])
		if !ok {
			return nil, fmt.Errorf("loader: %s then-node must be a mapping", conditionalSymbol)
		}
		matched, err := evalExpr(exprStr, options)
		if err != nil {
			return nil, fmt.Errorf("loader: %s expression %q: %w", conditionalSymbol, exprStr, err)
		}
		if !matched {
			continue
		}
		resolvedThen, err := resolveConditionals(thenNode, options)
		if err != nil {
			return nil, err
		}
		result = mergeNodes(result, resolvedThen)
	}
	return result, nil
}

// evalExpr evaluates a small boolean grammar over declared option values:
// bare-name truthiness, `!expr`, `a and b`, `a or b`, `name == "value"`, and
// parenthesization, matching the option-conditional expressions 
// describes plugins composing over.
func evalExpr(expr string, options map[string]string) (bool, error) {
	p := &exprParser{tokens: tokenizeExpr(expr), options: options}
	val, err := p.parseOr()
	if err != nil {
		return false, err
	}
	if p.pos != len(p.tokens) {
		return false, fmt.Errorf("unexpected trailing tokens after %q", strings.Join(p.tokens[p.pos:], " "))
	}
	return val, nil
}

func tokenizeExpr(expr string) []string {
	replacer := strings.NewReplacer("(", " ( ", ")", " ) ", "==", " == ", "!=", " != ", "!", " ! ")
	return strings.Fields(replacer.Replace(expr))
}

type exprParser struct {
	tokens  []string
	pos     int
	options map[string]string
}

func (p *exprParser) peek() string {
	if p.pos >= len(p.tokens) {
		return ""
	}
	return p.tokens[p.pos]
}

func (p *exprParser) next() string {
	t := p.peek()
	p.pos++
	return t
}

func (p *exprParser) parseOr() (bool, error) {
	left, err := p.parseAnd()
	if err != nil {
		return false, err
	}
	for p.peek() == "or" {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return false, err
		}
		left = left || right
	}
	return left, nil
}

func (p *exprParser) parseAnd() (bool, error) {
	left, err := p.parseUnary()
	if err != nil {
		return false, err
	}
	for p.peek() == "and" {
		p.next()
		right, err := p.parseUnary()
		if err != nil {
			return false, err
		}
		left = left && right
	}
	return left, nil
}

func (p *exprParser) parseUnary() (bool, error) {
	if p.peek() == "!" {
		p.next()
		val, err := p.parseUnary()
		return !val, err
	}
	return p.parseComparison()
}

func (p *exprParser) parseComparison() (bool, error) {
	if p.peek() == "(" {
		p.next()
		val, err := p.parseOr()
		if err != nil {
			return false, err
		}
		if p.next() != ")" {
			return false, fmt.Errorf("expected closing ')'")
		}
		return val, nil
	}
	name := p.next()
	if name == "" {
		return false, fmt.Errorf("expected an option name")
	}
	value, declared := p.options[name]
	switch p.peek() {
	case "==":
		p.next()
		want := trimQuotes(p.next())
		return declared && value == want, nil
	case "!=":
		p.next()
		want := trimQuotes(p.next())
		return !declared || value != want, nil
	default:
		return declared && value == "true", nil
	}
}

func trimQuotes(s string) string {
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}
	return s
}
