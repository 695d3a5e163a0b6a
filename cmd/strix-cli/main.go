package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/davidahmann/strix/internal/decisionlog"
	"github.com/davidahmann/strix/internal/policy"
	"github.com/davidahmann/strix/pkg/types"
	"github.com/fatih/color"
)

const defaultAddr = "http://localhost:8080"

func main() {
	exitFn(run(os.Args, os.Stdout, os.Stderr))
}

var exitFn = os.Exit

var httpClient = &http.Client{Timeout: 10 * time.Second}

func run(args []string, stdout io.Writer, stderr io.Writer) int {
	if len(args) < 2 {
		usage(stderr)
		return 2
	}

	switch args[1] {
	case "evaluate":
		return handleEvaluate(args[2:], stdout, stderr)
	case "decisions":
		return handleDecisions(args[2:], stdout, stderr)
	case "policy":
		return handlePolicy(args[2:], stdout, stderr)
	default:
		usage(stderr)
		return 2
	}
}

type stringList []string

func (l *stringList) String() string { return strings.Join(*l, ",") }

func (l *stringList) Set(v string) error {
	*l = append(*l, v)
	return nil
}

func handleEvaluate(args []string, stdout io.Writer, stderr io.Writer) int {
	fs := flag.NewFlagSet("evaluate", flag.ContinueOnError)
	fs.SetOutput(stderr)
	addr := fs.String("addr", envOrDefault("STRIX_ADDR", defaultAddr), "strix kernel address")
	artifactType := fs.String("artifact-type", "", "artifact type")
	environment := fs.String("environment", "", "target environment")
	agentID := fs.String("agent-id", "", "agent id recorded in the decision log")
	jsonOut := fs.Bool("json", false, "print raw JSON response")
	var actions stringList
	fs.Var(&actions, "action", "intended action (repeatable)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *artifactType == "" || *environment == "" {
		fmt.Fprintln(stderr, "evaluate requires --artifact-type and --environment")
		fs.Usage()
		return 2
	}

	req := types.NewRequest(*artifactType, *environment, actions...)
	if req.Actions == nil {
		req.Actions = []string{}
	}
	if *agentID != "" {
		req.AgentID = *agentID
	}
	body, err := json.Marshal(req)
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}

	respBody, status, err := httpPost(httpClient, strings.TrimRight(*addr, "/")+"/v1/evaluate", body)
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}
	if status != http.StatusOK {
		fmt.Fprintf(stderr, "evaluate failed: %s\n", strings.TrimSpace(string(respBody)))
		return 1
	}
	if *jsonOut {
		_, _ = stdout.Write(respBody)
		return 0
	}

	var decision types.Decision
	if err := json.Unmarshal(respBody, &decision); err != nil {
		fmt.Fprintln(stderr, "invalid response:", err)
		return 1
	}
	fmt.Fprintf(stdout, "decision=%s risk_level=%s approvals_required=%d policy_version=%s\n",
		verdictLabel(stdout, decision.Decision), decision.RiskLevel, decision.ApprovalsRequired, decision.PolicyVersion)
	fmt.Fprintln(stdout, decision.Reason)
	if decision.Decision == types.VerdictDeny {
		return 3
	}
	return 0
}

func handleDecisions(args []string, stdout io.Writer, stderr io.Writer) int {
	fs := flag.NewFlagSet("decisions", flag.ContinueOnError)
	fs.SetOutput(stderr)
	addr := fs.String("addr", envOrDefault("STRIX_ADDR", defaultAddr), "strix kernel address")
	limit := fs.Int("limit", 20, "number of recent decisions")
	jsonOut := fs.Bool("json", false, "print raw JSON response")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	endpoint := strings.TrimRight(*addr, "/") + "/v1/decisions?" + url.Values{"limit": {strconv.Itoa(*limit)}}.Encode()
	respBody, status, err := httpGet(httpClient, endpoint)
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}
	if status != http.StatusOK {
		fmt.Fprintf(stderr, "decisions failed: %s\n", strings.TrimSpace(string(respBody)))
		return 1
	}
	if *jsonOut {
		_, _ = stdout.Write(respBody)
		return 0
	}

	var payload struct {
		Decisions []decisionlog.Entry `json:"decisions"`
	}
	if err := json.Unmarshal(respBody, &payload); err != nil {
		fmt.Fprintln(stderr, "invalid response:", err)
		return 1
	}
	for _, e := range payload.Decisions {
		fmt.Fprintf(stdout, "%s %s %s/%s %s\n",
			e.LoggedAt.Format(time.RFC3339), verdictLabel(stdout, e.Decision.Decision),
			deref(e.Request.ArtifactType), deref(e.Request.Environment), e.ID)
	}
	return 0
}

func handlePolicy(args []string, stdout io.Writer, stderr io.Writer) int {
	if len(args) == 0 {
		usage(stderr)
		return 2
	}
	switch args[0] {
	case "lint", "version":
		fs := flag.NewFlagSet("policy "+args[0], flag.ContinueOnError)
		fs.SetOutput(stderr)
		if err := fs.Parse(args[1:]); err != nil {
			return 2
		}
		if fs.NArg() != 1 {
			fmt.Fprintf(stderr, "policy %s requires <policy_path>\n", args[0])
			fs.Usage()
			return 2
		}
		loaded, err := policy.LoadTable(fs.Arg(0))
		if err != nil {
			fmt.Fprintln(stderr, err.Error())
			return 1
		}
		if args[0] == "version" {
			fmt.Fprintln(stdout, loaded.Version)
			return 0
		}
		for _, artifact := range loaded.Table.EmptyArtifactTypes() {
			fmt.Fprintf(stderr, "warning: artifact type %q has no environments and never matches\n", artifact)
		}
		fmt.Fprintf(stdout, "ok rules=%d policy_version=%s\n", len(loaded.Table.Keys()), loaded.Version)
		return 0
	default:
		usage(stderr)
		return 2
	}
}

func httpGet(client *http.Client, endpoint string) ([]byte, int, error) {
	req, err := http.NewRequest(http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, 0, err
	}
	return do(client, req)
}

func httpPost(client *http.Client, endpoint string, body []byte) ([]byte, int, error) {
	req, err := http.NewRequest(http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	return do(client, req)
}

func do(client *http.Client, req *http.Request) ([]byte, int, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return body, resp.StatusCode, nil
}

// verdictLabel colors the verdict when writing to a terminal.
func verdictLabel(w io.Writer, v types.Verdict) string {
	if w != io.Writer(os.Stdout) || color.NoColor {
		return string(v)
	}
	switch v {
	case types.VerdictAllow:
		return color.GreenString(string(v))
	case types.VerdictRequireApproval:
		return color.YellowString(string(v))
	default:
		return color.RedString(string(v))
	}
}

func deref(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}

func envOrDefault(key string, fallback string) string {
	value := os.Getenv(key)
	if value != "" {
		return value
	}
	return fallback
}

func usage(w io.Writer) {
	fmt.Fprint(w, `Strix CLI

Usage:
  strix evaluate --artifact-type TYPE --environment ENV [--action A]... [--agent-id ID] [--addr URL] [--json]
  strix decisions [--limit N] [--addr URL] [--json]
  strix policy lint <policy_path>
  strix policy version <policy_path>
`)
}
