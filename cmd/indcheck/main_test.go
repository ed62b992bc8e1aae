package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func runCheck(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := run(context.Background(), args, &out)
	return out.String(), err
}

func writeFile(t *testing.T, name, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestCheckFile(t *testing.T) {
	out, err := runCheck(t, "--file", "../../config/indicators.yaml")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	for _, want := range []string{"coppock ", "coppock_fast", "coppock_curve", "ma1=WMA:10", "source=hl2"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestCheckRejectsInvalid(t *testing.T) {
	path := writeFile(t, "bad.yaml", "indicators:\n  - name: c\n    kind: coppock_curve\n    params:\n      s2_left: \"0\"\n")
	if _, err := runCheck(t, "--file", path); err == nil {
		t.Error("invalid set should fail")
	}
	if _, err := runCheck(t); err == nil {
		t.Error("no input should fail")
	}
}

func TestCheckCanonical(t *testing.T) {
	path := writeFile(t, "ind.yaml", "indicators:\n  - name: c\n    kind: coppock_curve\n")
	out, err := runCheck(t, "--file", path, "--canonical")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"name: c", "s3_ma:", "EMA:5", "period2:", "source: close"} {
		if !strings.Contains(out, want) {
			t.Errorf("canonical output missing %q:\n%s", want, out)
		}
	}
}

func TestKinds(t *testing.T) {
	out, err := runCheck(t, "--kinds")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "coppock_curve") || !strings.Contains(out, "s2_right=2") {
		t.Errorf("kinds output:\n%s", out)
	}
}

func TestImportExportBars(t *testing.T) {
	db := filepath.Join(t.TempDir(), "bars.db")
	csv := writeFile(t, "bars.csv", "ts,open,high,low,close\n60,1,1,1,1\n120,2,2,2,2\n")

	if _, err := runCheck(t, "--db", db, "--import", csv); err == nil {
		t.Error("import without series should fail")
	}
	out, err := runCheck(t, "--db", db, "--import", csv, "--exchange", "NSE", "--token", "1", "--tf", "60")
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if !strings.Contains(out, "imported 2 bars") {
		t.Errorf("import output: %s", out)
	}

	pq := filepath.Join(t.TempDir(), "out.parquet")
	out, err = runCheck(t, "--db", db, "--export", pq, "--tf", "60")
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if !strings.Contains(out, "exported 2 bars") {
		t.Errorf("export output: %s", out)
	}

	db2 := filepath.Join(t.TempDir(), "copy.db")
	if out, err = runCheck(t, "--db", db2, "--import", pq); err != nil {
		t.Fatalf("re-import parquet: %v", err)
	}
	if !strings.Contains(out, "imported 2 bars") {
		t.Errorf("parquet import output: %s", out)
	}
}

func TestImportNeedsTarget(t *testing.T) {
	csv := writeFile(t, "bars.csv", "ts,open,high,low,close\n60,1,1,1,1\n")
	if _, err := runCheck(t, "--import", csv); err == nil || !strings.Contains(err.Error(), "--db or --redis") {
		t.Errorf("import without target: %v", err)
	}
	txt := writeFile(t, "bars.txt", "x")
	db := filepath.Join(t.TempDir(), "bars.db")
	if _, err := runCheck(t, "--db", db, "--import", txt); err == nil || !strings.Contains(err.Error(), "unsupported bar file") {
		t.Errorf("import of .txt: %v", err)
	}
}
