package testsupport

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

// LoadFixture reads a fixture file. The path is relative to the test package
// directory.
func LoadFixture(tb testing.TB, path string) []byte {
	tb.Helper()

	data, err := os.ReadFile(path)
	if err != nil {
		tb.Fatalf("failed to load fixture from %s: %v", path, err)
	}
	return data
}

// LoadFixtureJSON unmarshals a JSON fixture into dest.
func LoadFixtureJSON(tb testing.TB, path string, dest any) {
	tb.Helper()

	if err := json.Unmarshal(LoadFixture(tb, path), dest); err != nil {
		tb.Fatalf("failed to unmarshal JSON fixture from %s: %v", path, err)
	}
}

// CompareGoldenJSON marshals actual and compares it with the golden file at
// path. A missing golden file is created from actual.
func CompareGoldenJSON(tb testing.TB, path string, actual any) {
	tb.Helper()

	got, err := json.MarshalIndent(actual, "", "  ")
	if err != nil {
		tb.Fatalf("failed to marshal JSON for golden file %s: %v", path, err)
	}
	got = append(got, '\n')

	want, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		tb.Logf("golden file %s does not exist, creating it", path)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			tb.Fatalf("failed to create directory for %s: %v", path, err)
		}
		if err := os.WriteFile(path, got, 0o644); err != nil {
			tb.Fatalf("failed to write golden file %s: %v", path, err)
		}
		return
	}
	if err != nil {
		tb.Fatalf("failed to read golden file %s: %v", path, err)
	}
	if string(got) != string(want) {
		tb.Errorf("output mismatch for %s:\nExpected:\n%s\nActual:\n%s", path, want, got)
	}
}

// FixturePath joins filename onto the testdata directory.
func FixturePath(filename string) string {
	return filepath.Join("testdata", filename)
}

// GoldenPath joins filename onto testdata/golden.
func GoldenPath(filename string) string {
	return filepath.Join("testdata", "golden", filename)
}
