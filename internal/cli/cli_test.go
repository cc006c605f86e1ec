package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const memoryConfig = `env: test
log:
  level: error
quiz:
  mode: balanced
  modules_count: 4
ranking:
  batch_pause: 1ms
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	for _, key := range []string{"REDIS_ADDR", "POSTGRES_URL", "RABBITMQ_URL", "DIRECTORY_SEED_FILE"} {
		t.Setenv(key, "")
	}
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestValidateAcceptsShippedBank(t *testing.T) {
	out, err := runCLI(t, "validate", "--bank", "../../config/banks/avaliacao-antropometrica.yaml")
	if err != nil {
		t.Fatalf("validate: %v\n%s", err, out)
	}
	var got struct {
		File   string `json:"file"`
		Report struct {
			Overall struct {
				Valid bool `json:"isValid"`
			} `json:"overall"`
		} `json:"report"`
	}
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decode output: %v\n%s", err, out)
	}
	if !got.Report.Overall.Valid {
		t.Fatalf("expected valid report, got %s", out)
	}
}

func TestValidateRejectsSmallBank(t *testing.T) {
	path := writeFile(t, "small.yaml", `id: b1
moduleId: m1
title: Small
questionsPerQuiz: 2
passingScore: 70
totalPoints: 10
questions:
  - {id: q1, text: One, options: [a, b], correctAnswer: a, difficulty: easy}
  - {id: q2, text: Two, options: [a, b], correctAnswer: b, difficulty: medium}
  - {id: q3, text: Three, options: [a, b], correctAnswer: a, difficulty: hard}
`)
	_, err := runCLI(t, "validate", path)
	if err == nil || !strings.Contains(err.Error(), "1 of 1 banks failed") {
		t.Fatalf("expected validation failure, got %v", err)
	}
}

func TestValidateReportsSingleOptionBank(t *testing.T) {
	var b strings.Builder
	b.WriteString("id: b1\nmoduleId: m1\ntitle: Single\nquestionsPerQuiz: 7\npassingScore: 70\ntotalPoints: 10\nquestions:\n")
	for i := 1; i <= 7; i++ {
		fmt.Fprintf(&b, "  - {id: q%d, text: Q%d, options: [A], correctAnswer: A, explanation: x, difficulty: easy}\n", i, i)
	}
	path := writeFile(t, "single.yaml", b.String())

	out, err := runCLI(t, "validate", path)
	if err == nil {
		t.Fatalf("expected validation failure")
	}
	if !strings.Contains(out, "needs a wrong option") {
		t.Fatalf("expected scoring error in report, got %s", out)
	}
}

func TestValidateRequiresFiles(t *testing.T) {
	if _, err := runCLI(t, "validate"); err == nil {
		t.Fatalf("expected error without bank files")
	}
}

func TestRankingsStatsInMemory(t *testing.T) {
	cfg := writeFile(t, "config.yaml", memoryConfig)
	out, err := runCLI(t, "--config", cfg, "rankings", "stats")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	var st struct {
		TotalRankings int `json:"totalRankings"`
	}
	if err := json.Unmarshal([]byte(out), &st); err != nil {
		t.Fatalf("decode stats: %v\n%s", err, out)
	}
	if st.TotalRankings != 0 {
		t.Fatalf("expected no rankings, got %d", st.TotalRankings)
	}
}

func TestRankingsRebuildAllWithoutClasses(t *testing.T) {
	cfg := writeFile(t, "config.yaml", memoryConfig)
	out, err := runCLI(t, "--config", cfg, "rankings", "rebuild")
	if err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	if !strings.Contains(out, `"totalClasses": 0`) {
		t.Fatalf("unexpected rebuild output: %s", out)
	}
}

func TestRankingsRebuildWithDirectorySeed(t *testing.T) {
	cfg := writeFile(t, "config.yaml", memoryConfig+"directory:\n  seed_file: ../../config/directory.yaml\n")
	out, err := runCLI(t, "--config", cfg, "rankings", "rebuild", "--class", "nutricao-a")
	if err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	var doc struct {
		StudentsCount int `json:"studentsCount"`
	}
	if err := json.Unmarshal([]byte(out), &doc); err != nil {
		t.Fatalf("decode ranking: %v\n%s", err, out)
	}
	if doc.StudentsCount != 3 {
		t.Fatalf("expected 3 seeded students ranked, got %d", doc.StudentsCount)
	}
}

func TestRankingsVerifyRequiresClass(t *testing.T) {
	cfg := writeFile(t, "config.yaml", memoryConfig)
	if _, err := runCLI(t, "--config", cfg, "rankings", "verify"); err == nil {
		t.Fatalf("expected missing --class error")
	}
}

func TestMigrateRequiresPostgres(t *testing.T) {
	cfg := writeFile(t, "config.yaml", memoryConfig)
	_, err := runCLI(t, "--config", cfg, "migrate")
	if err == nil || !strings.Contains(err.Error(), "postgres url not configured") {
		t.Fatalf("expected postgres error, got %v", err)
	}
}
