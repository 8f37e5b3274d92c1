// Package reporter renders a CaseResult to an output surface: json (a
// single deterministic document to stdout) and text (a human-readable
// step-by-step summary). allure and html are named but not implemented,
// per spec's non-goal of full reporter-ecosystem parity.
//
// Grounded on the teacher's runtime/response_handler.go, which renders one
// canonical struct through multiple content-type branches; Render plays the
// same role across output formats instead of content types.
package reporter

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/sisyphus-test/sisyphus/internal/model"
)

// Format names a supported `-O` value.
type Format string

const (
	FormatText   Format = "text"
	FormatJSON   Format = "json"
	FormatAllure Format = "allure"
	FormatHTML   Format = "html"
)

// Render writes cr to w in the given format. allure/html return an error:
// callers needing those write to --allure-dir/--html-dir instead, which
// this package does not implement.
func Render(w io.Writer, cr *model.CaseResult, format Format) error {
	switch format {
	case FormatJSON, "":
		return renderJSON(w, cr)
	case FormatText:
		return renderText(w, cr)
	default:
		return fmt.Errorf("reporter: format %q is not implemented by the core", format)
	}
}

func renderJSON(w io.Writer, cr *model.CaseResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(cr)
}

func renderText(w io.Writer, cr *model.CaseResult) error {
	var b strings.Builder
	fmt.Fprintf(&b, "%s  %s (%s)\n", statusGlyph(cr.Status), cr.ScenarioName, cr.Status)
	fmt.Fprintf(&b, "  duration: %dms  steps: %d  passed: %d  failed: %d  error: %d  skipped: %d\n",
		cr.DurationMs, cr.Summary.TotalSteps, cr.Summary.Passed, cr.Summary.Failed, cr.Summary.Error, cr.Summary.Skipped)
	fmt.Fprintf(&b, "  assertions: %d/%d passed (%.1f%%)\n", cr.Summary.PassedAssertions, cr.Summary.TotalAssertions, cr.Summary.PassRate)

	for _, step := range cr.Steps {
		fmt.Fprintf(&b, "  %s [%d] %s (%s) %dms\n", statusGlyph(step.Status), step.Index, step.Name, step.KeywordType, step.DurationMs)
		if step.Error != nil {
			fmt.Fprintf(&b, "      error: %s: %s\n", step.Error.Code, step.Error.Message)
		}
		for _, a := range step.AssertionResults {
			if a.Status != model.StatusPassed {
				fmt.Fprintf(&b, "      assertion failed: %s %s %v (got %v)\n", a.Target, a.Comparator, a.Expected, a.Actual)
			}
		}
	}

	if cr.DataDriven != nil {
		fmt.Fprintf(&b, "  data-driven: %d/%d rows passed\n", cr.DataDriven.PassedRuns, cr.DataDriven.TotalRuns)
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func statusGlyph(status model.Status) string {
	switch status {
	case model.StatusPassed:
		return "PASS"
	case model.StatusFailed:
		return "FAIL"
	case model.StatusError:
		return "ERR "
	case model.StatusSkipped:
		return "SKIP"
	default:
		return "?"
	}
}
