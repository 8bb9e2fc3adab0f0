package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"sigs.k8s.io/yaml"

	"github.com/thrive-mt/imageapi/pkg/image"
)

// textPrinter is implemented by views with a human readable form
type textPrinter interface {
	printText(w io.Writer) error
}

type resolveResult struct {
	URL      string `json:"url"`
	Category string `json:"category"`
	Strategy string `json:"strategy"`
	CacheHit bool   `json:"cache_hit"`
	Fallback bool   `json:"fallback"`
}

func resolveView(res image.Result) resolveResult {
	return resolveResult{
		URL:      res.URL,
		Category: res.Kind.String(),
		Strategy: res.Strategy.String(),
		CacheHit: res.CacheHit,
		Fallback: res.Fallback,
	}
}

func (v resolveResult) printText(w io.Writer) error {
	_, err := fmt.Fprintln(w, v.URL)
	return err
}

type errorView struct {
	URL     string `json:"url"`
	Outcome string `json:"outcome"`
}

func (v errorView) printText(w io.Writer) error {
	_, err := fmt.Fprintf(w, "%s\t%s\n", v.Outcome, v.URL)
	return err
}

type fallbackView struct {
	URL string `json:"url"`
}

func (v fallbackView) printText(w io.Writer) error {
	_, err := fmt.Fprintln(w, v.URL)
	return err
}

type ruleView struct {
	Category string   `json:"category"`
	Match    []string `json:"match"`
	URL      string   `json:"url"`
	Token    string   `json:"token"`
}

type fallbackTableView struct {
	Rules        []ruleView `json:"rules"`
	Default      string     `json:"default"`
	DefaultToken string     `json:"default_token"`
}

func tableView(t *image.FallbackTable) fallbackTableView {
	v := fallbackTableView{}
	for _, r := range t.Rules() {
		v.Rules = append(v.Rules, ruleView{
			Category: r.Category.String(),
			Match:    r.Match,
			URL:      t.Absolute(r.URL),
			Token:    r.Token.String(),
		})
	}
	def, mode := t.Default()
	v.Default = t.Absolute(def)
	v.DefaultToken = mode.String()
	return v
}

func (v fallbackTableView) printText(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CATEGORY\tMATCH\tTOKEN\tURL")
	for _, r := range v.Rules {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.Category, strings.Join(r.Match, ","), r.Token, r.URL)
	}
	fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", "default", "*", v.DefaultToken, v.Default)
	return tw.Flush()
}

// printResult writes v in the requested format. Values without a text form
// fall back to YAML in text mode.
func printResult(w io.Writer, format string, v interface{}) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "text":
		if tp, ok := v.(textPrinter); ok {
			return tp.printText(w)
		}
		if checks, ok := v.([]image.FallbackCheck); ok {
			return printChecks(w, checks)
		}
	}
	out, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	_, err = w.Write(out)
	return err
}

func printChecks(w io.Writer, checks []image.FallbackCheck) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CATEGORY\tSTATUS\tURL")
	for _, c := range checks {
		status := "ok"
		switch {
		case c.Error != "":
			status = "error: " + c.Error
		case !c.Exists:
			status = "missing"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", c.Category, status, c.URL)
	}
	return tw.Flush()
}
