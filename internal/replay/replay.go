// Package replay evaluates a JSONL dataset of golden-path requests against the
// engine and reports which cases produced the expected outcome.
package replay

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"meetcast/internal/domain"
	"meetcast/internal/engine"
)

// Case is one dataset line. Now, when set, pins the reference time (RFC3339)
// so relative dates resolve deterministically.
type Case struct {
	ID             string        `json:"id"`
	Description    string        `json:"description,omitempty"`
	Input          string        `json:"input"`
	Answer         *string       `json:"answer,omitempty"`
	Now            string        `json:"now,omitempty"`
	ExpectedStatus domain.Status `json:"expected_status"`
	ExpectedAction domain.Action `json:"expected_action,omitempty"`
}

type Result struct {
	Case     Case                `json:"case"`
	Summary  domain.EventSummary `json:"summary"`
	Passed   bool                `json:"passed"`
	Mismatch []string            `json:"mismatch,omitempty"`
}

type Report struct {
	Results []Result `json:"results"`
	Passed  int      `json:"passed"`
	Failed  int      `json:"failed"`
}

// SuccessRate is the passed share in percent; an empty report scores 0.
func (r Report) SuccessRate() float64 {
	total := r.Passed + r.Failed
	if total == 0 {
		return 0
	}
	return float64(r.Passed) / float64(total) * 100
}

// Load reads cases from JSONL. Blank lines and lines starting with # are skipped.
func Load(r io.Reader) ([]Case, error) {
	var cases []Case
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		var c Case
		if err := json.Unmarshal([]byte(text), &c); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if c.ID == "" {
			c.ID = fmt.Sprintf("case-%d", line)
		}
		if strings.TrimSpace(c.Input) == "" {
			return nil, fmt.Errorf("line %d: input is required", line)
		}
		if c.ExpectedStatus == "" {
			return nil, fmt.Errorf("line %d: expected_status is required", line)
		}
		if c.Now != "" {
			if _, err := time.Parse(time.RFC3339, c.Now); err != nil {
				return nil, fmt.Errorf("line %d: invalid now: %w", line, err)
			}
		}
		cases = append(cases, c)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return cases, nil
}

func LoadFile(path string) ([]Case, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Load(f)
}

// Evaluate runs every case in order. A case fails when the status, or the
// action if one is expected, differs from the summary.
func Evaluate(ctx context.Context, e engine.Engine, cases []Case) Report {
	report := Report{Results: make([]Result, 0, len(cases))}
	for _, c := range cases {
		run := e
		if c.Now != "" {
			now, _ := time.Parse(time.RFC3339, c.Now)
			run.Now = func() time.Time { return now }
		}
		sum := run.Run(ctx, c.Input, c.Answer)

		res := Result{Case: c, Summary: sum}
		if sum.Status != c.ExpectedStatus {
			res.Mismatch = append(res.Mismatch, fmt.Sprintf("status: expected %s, got %s", c.ExpectedStatus, sum.Status))
		}
		if c.ExpectedAction != "" && sum.Action != c.ExpectedAction {
			res.Mismatch = append(res.Mismatch, fmt.Sprintf("action: expected %s, got %s", c.ExpectedAction, sum.Action))
		}
		res.Passed = len(res.Mismatch) == 0
		if res.Passed {
			report.Passed++
		} else {
			report.Failed++
		}
		report.Results = append(report.Results, res)
	}
	return report
}
