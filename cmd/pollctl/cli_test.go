package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	sqliteadapter "agora/contexts/governance/polling-ledger/adapters/sqlite"
	"agora/contexts/governance/polling-ledger/domain/entities"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var cliStart = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

type cliEnv struct {
	t        *testing.T
	db       string
	balances string
	now      time.Time
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	dir := t.TempDir()
	balances := filepath.Join(dir, "balances.yaml")
	book := "alice:\n  AGORA: \"5000\"\nbob:\n  AGORA: \"500\"\ncarol:\n  AGORA: \"12.5\"\n"
	if err := os.WriteFile(balances, []byte(book), 0o600); err != nil {
		t.Fatalf("write balance book: %v", err)
	}
	env := &cliEnv{t: t, db: filepath.Join(dir, "ledger.db"), balances: balances, now: cliStart}
	pinnedNow = func() time.Time { return env.now }
	t.Cleanup(func() { pinnedNow = nil })
	return env
}

// run executes one pollctl invocation as account and returns its stdout.
func (e *cliEnv) run(account string, args ...string) (string, error) {
	e.t.Helper()
	resetFlags(rootCmd)
	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	full := []string{"--db", e.db, "--balances", e.balances}
	if account != "" {
		full = append(full, "--as", account)
	}
	rootCmd.SetArgs(append(full, args...))
	err := rootCmd.ExecuteContext(context.Background())
	return stdout.String(), err
}

func (e *cliEnv) mustRun(account string, args ...string) string {
	e.t.Helper()
	out, err := e.run(account, args...)
	if err != nil {
		e.t.Fatalf("pollctl %s: %v", strings.Join(args, " "), err)
	}
	return out
}

// resetFlags puts every flag back to its default so invocations stay independent.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if slice, ok := f.Value.(pflag.SliceValue); ok {
			_ = slice.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.PersistentFlags().VisitAll(reset)
	cmd.Flags().VisitAll(reset)
	for _, child := range cmd.Commands() {
		resetFlags(child)
	}
}

func TestCreateVoteAndResultsPersistAcrossInvocations(t *testing.T) {
	env := newCLIEnv(t)

	out := env.mustRun("alice", "create", "--question", "Ship v2?", "--option", "yes", "--option", "no", "--tag", "release")
	if strings.TrimSpace(out) != "created poll 0" {
		t.Fatalf("unexpected create output %q", out)
	}
	out = env.mustRun("bob", "vote", "0", "1")
	if !strings.Contains(out, "bob voted [1] with weight 1") {
		t.Fatalf("unexpected vote output %q", out)
	}
	if _, err := env.run("bob", "vote", "0", "0"); err == nil || !strings.Contains(err.Error(), "already") {
		t.Fatalf("expected duplicate vote rejection, got %v", err)
	}

	out = env.mustRun("", "results", "0")
	if !strings.Contains(out, "1 votes, weight 1") || !strings.Contains(out, "no") {
		t.Fatalf("unexpected results %q", out)
	}

	out = env.mustRun("alice", "my-polls")
	if !strings.Contains(out, "Ship v2?") {
		t.Fatalf("my-polls missing poll: %q", out)
	}
	out = env.mustRun("bob", "my-votes")
	if !strings.Contains(out, "Ship v2?") {
		t.Fatalf("my-votes missing poll: %q", out)
	}
}

func TestMutationsRequireAccount(t *testing.T) {
	env := newCLIEnv(t)
	_, err := env.run("", "create", "--question", "q", "--option", "a", "--option", "b")
	if err == nil || !strings.Contains(err.Error(), "--as") {
		t.Fatalf("expected missing account error, got %v", err)
	}
}

func TestWeightedPollUsesBalanceBook(t *testing.T) {
	env := newCLIEnv(t)
	gate := entities.Tokens(1000).String()
	env.mustRun("alice", "create", "--question", "Treasury?", "--option", "a", "--option", "b",
		"--type", "weighted", "--asset", "AGORA", "--min-balance", gate)

	out := env.mustRun("alice", "vote", "0", "0")
	if !strings.Contains(out, "with weight 5") {
		t.Fatalf("expected weight 5 for 5000 tokens, got %q", out)
	}
	if _, err := env.run("bob", "vote", "0", "1"); err == nil {
		t.Fatal("expected bob to fall below the asset gate")
	}

	out = env.mustRun("", "token-balance", "carol")
	if strings.TrimSpace(out) != "carol holds 12.5 AGORA" {
		t.Fatalf("unexpected balance output %q", out)
	}
}

func TestDelegationCommands(t *testing.T) {
	env := newCLIEnv(t)
	env.mustRun("alice", "create", "--question", "Delegated?", "--option", "a", "--option", "b")
	env.mustRun("carol", "set-delegate", "bob")

	out := env.mustRun("bob", "vote-delegate", "0", "1", "--for", "carol")
	if !strings.Contains(out, "bob voted [1] for carol") {
		t.Fatalf("unexpected delegate vote output %q", out)
	}
	out = env.mustRun("", "delegation", "carol")
	if !strings.Contains(out, `"delegate": "bob"`) {
		t.Fatalf("delegation missing delegate: %q", out)
	}

	env.mustRun("carol", "remove-delegate")
	out = env.mustRun("", "delegation", "bob")
	if strings.Contains(out, "carol") {
		t.Fatalf("bob still lists carol as delegator: %q", out)
	}
}

func TestLifecycleCommands(t *testing.T) {
	env := newCLIEnv(t)
	env.mustRun("alice", "create", "--question", "Close me", "--option", "a", "--option", "b", "--duration", "48h")

	out := env.mustRun("alice", "extend", "0", "--by", "24h")
	want := cliStart.Add(72 * time.Hour).Format(time.RFC3339)
	if !strings.Contains(out, want) {
		t.Fatalf("extend output %q does not mention %s", out, want)
	}
	if _, err := env.run("bob", "close", "0"); err == nil {
		t.Fatal("expected non-creator close to fail")
	}
	out = env.mustRun("alice", "close", "0")
	if strings.TrimSpace(out) != "poll 0 is now closed" {
		t.Fatalf("unexpected close output %q", out)
	}
	if _, err := env.run("alice", "archive", "0"); err == nil {
		t.Fatal("expected archive before the delay to fail")
	}

	env.now = cliStart.Add(11 * 24 * time.Hour)
	out = env.mustRun("alice", "archive", "0")
	if strings.TrimSpace(out) != "poll 0 is now archived" {
		t.Fatalf("unexpected archive output %q", out)
	}
}

func TestTemplatesExportAndAnalytics(t *testing.T) {
	env := newCLIEnv(t)

	out := env.mustRun("", "templates")
	for _, name := range []string{"governance", "community", "technical"} {
		if !strings.Contains(out, name) {
			t.Fatalf("templates output missing %s: %q", name, out)
		}
	}

	env.mustRun("alice", "create", "--template", "1", "--question", "Meetup day?", "--option", "sat", "--option", "sun")
	env.mustRun("bob", "vote", "0", "1")

	out = env.mustRun("", "export", "0", "--format", "csv")
	if !strings.HasPrefix(out, "poll_id,question") || !strings.Contains(out, "1,sun,1,100.00") {
		t.Fatalf("unexpected csv export %q", out)
	}
	if _, err := env.run("", "export", "0", "--format", "xml"); err == nil {
		t.Fatal("expected unsupported export format to fail")
	}

	out = env.mustRun("", "analytics", "0")
	if !strings.Contains(out, `"leading_label": "sun"`) {
		t.Fatalf("poll analytics missing leader: %q", out)
	}
	out = env.mustRun("", "analytics")
	if !strings.Contains(out, `"total_polls": 1`) {
		t.Fatalf("ledger analytics missing poll count: %q", out)
	}

	out = env.mustRun("", "list", "--category", "community")
	if !strings.Contains(out, "Meetup day?") {
		t.Fatalf("filtered list missing poll: %q", out)
	}
}

func TestEventsAreJournaled(t *testing.T) {
	env := newCLIEnv(t)
	env.mustRun("alice", "create", "--question", "Journal?", "--option", "a", "--option", "b")
	env.mustRun("bob", "vote", "0", "0")
	// A failed command leaves nothing behind.
	if _, err := env.run("bob", "vote", "0", "1"); err == nil {
		t.Fatal("expected duplicate vote to fail")
	}

	local, err := sqliteadapter.Open(env.db, nil)
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	defer local.Close()
	events, err := local.ListEvents(context.Background(), "", 10)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	var types []string
	for _, event := range events {
		types = append(types, event.EventType)
	}
	if diff := cmp.Diff([]string{"poll.created", "poll.vote_cast"}, types); diff != "" {
		t.Fatalf("journal mismatch (-want +got):\n%s", diff)
	}
}

func TestTokenAmounts(t *testing.T) {
	cases := []struct {
		raw  string
		want string
	}{
		{"0", "0"},
		{"12", "12"},
		{"12.5", "12.5"},
		{"0.000000000000000001", "0.000000000000000001"},
	}
	for _, tc := range cases {
		value, err := parseTokens(tc.raw)
		if err != nil {
			t.Fatalf("parseTokens(%q): %v", tc.raw, err)
		}
		if got := formatTokens(value); got != tc.want {
			t.Fatalf("formatTokens(parseTokens(%q)) = %q, want %q", tc.raw, got, tc.want)
		}
	}
	for _, raw := range []string{"-1", "abc", "0.0000000000000000001"} {
		if _, err := parseTokens(raw); err == nil {
			t.Fatalf("expected parseTokens(%q) to fail", raw)
		}
	}
}
