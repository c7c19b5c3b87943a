// Package tempest extracts failed tests and their tracebacks from Tempest HTML reports.
package tempest

import (
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const (
	tracebackMarker = "Traceback (most recent call last):"
	tracebackEnd    = "}}}"

	UnknownTestName = "Unknown Test Name"
)

var (
	rowID = regexp.MustCompile(`^ft\d+\.\d+`)

	nameBeforeTesttools = regexp.MustCompile(`ft\d+\.\d+:\s*(.*?)\)?testtools`)
	nameAtEnd           = regexp.MustCompile(`ft\d+\.\d+:\s*(.*?)$`)

	squareGroups = regexp.MustCompile(`\[.*?\]`)
	parenGroups  = regexp.MustCompile(`\(.*?\)`)
)

// Failure is one failed test of a report.
type Failure struct {
	TestName  string `json:"test_name"`
	Traceback string `json:"traceback"`
}

// Parse reads a Tempest HTML report and returns one Failure per failed test row
// carrying a traceback, in report order.
func Parse(r io.Reader) ([]Failure, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("tempest: parse html: %w", err)
	}

	failures := []Failure{}
	doc.Find("tr[id]").Each(func(_ int, row *goquery.Selection) {
		id, _ := row.Attr("id")
		if !rowID.MatchString(id) {
			return
		}
		if f, ok := parseRow(strings.TrimSpace(row.Text())); ok {
			failures = append(failures, f)
		}
	})
	return failures, nil
}

func parseRow(text string) (Failure, bool) {
	first := strings.Index(text, tracebackMarker)
	if first == -1 {
		return Failure{}, false
	}

	// the last traceback runs from the last marker to the end of the row
	last := strings.LastIndex(text, tracebackMarker)
	tb := strings.TrimSpace(text[last:])
	if i := strings.Index(tb, tracebackEnd); i != -1 {
		tb = strings.TrimSpace(tb[:i])
	}

	return Failure{
		TestName:  ExtractTestName(strings.TrimSpace(text[:first])),
		Traceback: tb,
	}, true
}

// ExtractTestName finds the test name in the row text preceding a traceback,
// dropping tags in brackets and anything in parentheses.
//
//	ft1.3: tempest.api.compute.test_boot[id-a2e6,slow])testtools...
//
// gives "tempest.api.compute.test_boot".
func ExtractTestName(s string) string {
	var name string
	if m := nameBeforeTesttools.FindStringSubmatch(s); m != nil {
		name = strings.TrimSpace(m[1])
		if strings.HasSuffix(name, "(") {
			name = strings.TrimSpace(strings.TrimSuffix(name, "("))
		}
	} else if m := nameAtEnd.FindStringSubmatch(s); m != nil {
		name = strings.TrimSpace(m[1])
	} else {
		name = UnknownTestName
	}

	name = strings.TrimSpace(squareGroups.ReplaceAllString(name, ""))
	name = strings.TrimSpace(parenGroups.ReplaceAllString(name, ""))
	return name
}

// Unique keeps the first failure of every test name.
func Unique(failures []Failure) []Failure {
	seen := make(map[string]struct{}, len(failures))
	out := make([]Failure, 0, len(failures))
	for _, f := range failures {
		if _, ok := seen[f.TestName]; ok {
			continue
		}
		seen[f.TestName] = struct{}{}
		out = append(out, f)
	}
	return out
}
