package summary

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestGenerateFile_Overwrites(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "out", "diagnosis_summary.txt")
	tool := Tool(path)

	for _, text := range []string{"Likely tension headache.", "Likely migraine."} {
		res := tool.Handler(context.Background(), `{"diagnosis_summary":"`+text+`"}`)
		if res.Failed() {
			t.Fatalf("unexpected failure: %v", res.Err)
		}
		if res.Output != "Diagnosis summary saved to "+path {
			t.Errorf("output = %q", res.Output)
		}
		got, err := os.ReadFile(path)
		if err != nil {
			t.Fatal(err)
		}
		if string(got) != text {
			t.Errorf("file = %q, want %q", got, text)
		}
	}

	fi, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if fi.Mode().Perm()&0o600 != 0o600 {
		t.Errorf("mode = %v", fi.Mode())
	}
}

func TestGenerateFile_Failures(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	tests := []struct {
		name string
		path string
		args string
	}{
		{"bad json", filepath.Join(dir, "a.txt"), `{"diagnosis_summary":`},
		{"path is a directory", dir, `{"diagnosis_summary":"x"}`},
	}
	for _, tc := range tests {
		res := Tool(tc.path).Handler(context.Background(), tc.args)
		if !res.Failed() || res.Output != Sentinel {
			t.Errorf("%s: result = %+v", tc.name, res)
		}
	}
}

func TestDefaultPath(t *testing.T) {
	t.Parallel()

	if def := Tool("").Definition; def.Name != Name {
		t.Errorf("name = %q", def.Name)
	}
}
