package enumerate

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/gobwas/glob"
)

func writeFile(t *testing.T, root string, pathname string) {
	t.Helper()
	target := filepath.Join(root, filepath.FromSlash(pathname))
	if err := os.MkdirAll(filepath.Dir(target), 0700); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}
	if err := os.WriteFile(target, []byte(pathname), 0600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
}

func TestScan(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "b.jpg")
	writeFile(t, root, "a.jpg")
	writeFile(t, root, "2021/c.jpg")
	if err := os.MkdirAll(filepath.Join(root, "empty"), 0700); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}

	set, err := Scan(root, nil)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	want := []string{"2021/c.jpg", "a.jpg", "b.jpg"}
	if !reflect.DeepEqual(set, want) {
		t.Errorf("expected %v, got %v", want, set)
	}
}

func TestScanExcludes(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.jpg")
	writeFile(t, root, "a.jpg.marker")
	writeFile(t, root, "2021/b.jpg.marker")

	set, err := Scan(root, []glob.Glob{glob.MustCompile("*.marker")})
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	want := []string{"a.jpg"}
	if !reflect.DeepEqual(set, want) {
		t.Errorf("expected %v, got %v", want, set)
	}
}

func TestScanForbiddenPathIsFatal(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "ok.jpg")
	writeFile(t, root, "bad$name.jpg")

	_, err := Scan(root, nil)
	if err == nil {
		t.Fatalf("expected forbidden path to fail the scan")
	}
	var pathErr *PathError
	if !errors.As(err, &pathErr) {
		t.Errorf("expected *PathError, got %T", err)
	}
}

func TestScanMissingRoot(t *testing.T) {
	if _, err := Scan(filepath.Join(t.TempDir(), "nonexistent"), nil); err == nil {
		t.Fatalf("expected error for missing root")
	}
}

func TestValidatePath(t *testing.T) {
	for _, pathname := range []string{"a.jpg", "2021/summer/a b.jpg", "weird-but-ok_().jpg"} {
		if err := ValidatePath(pathname); err != nil {
			t.Errorf("expected %q to validate, got %v", pathname, err)
		}
	}
	for _, pathname := range []string{`a"b.jpg`, `a'b.jpg`, `a\b.jpg`, `a*b.jpg`, `a>b.jpg`, `a$b.jpg`} {
		if err := ValidatePath(pathname); err == nil {
			t.Errorf("expected %q to be rejected", pathname)
		}
	}
}

func TestDifference(t *testing.T) {
	a := []string{"a.jpg", "b.jpg", "c.jpg"}
	b := []string{"b.jpg"}
	want := []string{"a.jpg", "c.jpg"}
	if got := Difference(a, b); !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
	if got := Difference(b, a); got != nil {
		t.Errorf("expected empty difference, got %v", got)
	}
}

func TestSaveRemove(t *testing.T) {
	pathname := filepath.Join(t.TempDir(), "fileset")
	if err := Save(pathname, []string{"a.jpg", "b.jpg"}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	data, err := os.ReadFile(pathname)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(data) != "a.jpg\nb.jpg\n" {
		t.Errorf("unexpected fileset content: %q", string(data))
	}
	if err := Remove(pathname); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if err := Remove(pathname); err != nil {
		t.Errorf("Remove of missing fileset should not fail: %v", err)
	}
}
