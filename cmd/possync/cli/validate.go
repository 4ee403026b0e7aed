package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/odyssey-erp/possync/internal/ingest"
)

// ValidateOptions defines available flags for the validate command.
type ValidateOptions struct {
	Kind       string
	Input      io.Reader
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// ValidateSummary describes the JSON response for validate.
type ValidateSummary struct {
	OK      bool             `json:"ok"`
	Kind    string           `json:"kind"`
	Results []ValidateResult `json:"results"`
}

// ValidateResult reports the dry-run outcome of one submission.
type ValidateResult struct {
	Index      int    `json:"index"`
	OK         bool   `json:"ok"`
	Class      string `json:"class"`
	GlobalID   string `json:"globalId,omitempty"`
	TerminalID string `json:"terminalId,omitempty"`
	Message    string `json:"message,omitempty"`
}

// ValidateCLI runs submissions through the sync pipeline without storage.
type ValidateCLI struct {
	service *ingest.Service
}

// NewValidateCLI constructs the dry-run helper.
func NewValidateCLI(service *ingest.Service) *ValidateCLI {
	if service == nil {
		service = ingest.NewService(ingest.ServiceConfig{})
	}
	return &ValidateCLI{service: service}
}

// ValidateCommand executes the validate workflow and prints the outcome.
// Exit code 0 means every submission would be accepted, 10 that at least
// one would be rejected and 1 a usage or input error.
func (c *ValidateCLI) ValidateCommand(opts ValidateOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	policy, ok := ingest.PolicyFor(opts.Kind)
	if !ok {
		_, _ = fmt.Fprintf(opts.Stderr, "validate: unknown kind %q\n", opts.Kind)
		return 1
	}
	if opts.Input == nil {
		_, _ = fmt.Fprintln(opts.Stderr, "validate: no input")
		return 1
	}
	body, err := io.ReadAll(opts.Input)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "validate: read input: %v\n", err)
		return 1
	}
	subs, _, err := ingest.DecodeSubmissions(body)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "validate: decode input: %v\n", err)
		return 1
	}

	summary := ValidateSummary{OK: true, Kind: string(policy.Kind), Results: make([]ValidateResult, len(subs))}
	for i, sub := range subs {
		draft, err := c.service.Prepare(policy, sub)
		result := ValidateResult{Index: i, OK: err == nil, Class: draft.Class.String()}
		if err != nil {
			summary.OK = false
			result.Message = err.Error()
			result.GlobalID = strings.TrimSpace(string(sub.GlobalID))
		} else {
			result.GlobalID = draft.Identity.GlobalID
			result.TerminalID = draft.Identity.TerminalID
		}
		summary.Results[i] = result
	}

	if opts.JSONOutput {
		if err := json.NewEncoder(opts.Stdout).Encode(summary); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "validate: encode json: %v\n", err)
			return 1
		}
	} else {
		renderValidateHuman(opts.Stdout, summary)
	}
	if !summary.OK {
		return 10
	}
	return 0
}

func renderValidateHuman(out io.Writer, summary ValidateSummary) {
	_, _ = fmt.Fprintf(out, "Dry run of %d %s submission(s)\n", len(summary.Results), summary.Kind)
	for _, r := range summary.Results {
		if r.OK {
			_, _ = fmt.Fprintf(out, " #%d ok (%s) %s\n", r.Index, r.Class, r.GlobalID)
			continue
		}
		_, _ = fmt.Fprintf(out, " #%d rejected (%s): %s\n", r.Index, r.Class, r.Message)
	}
}
