package architecture_test

import (
	"bufio"
	"fmt"
	"go/parser"
	"go/token"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

// clientPackages make up the client library; they take their settings as
// arguments and never reach for process wiring.
var clientPackages = []string{"account", "apiclient", "auth", "catalog", "generation", "notify", "progress"}

func TestImportBoundaries(t *testing.T) {
	root, modulePath := moduleRoot(t)
	internalDir := filepath.Join(root, "internal")
	fset := token.NewFileSet()

	type violation struct {
		file string
		imp  string
		rule string
	}
	var violations []violation

	walkErr := filepath.WalkDir(internalDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			switch d.Name() {
			case ".git", "vendor", "node_modules", ".gocache":
				return filepath.SkipDir
			default:
				return nil
			}
		}
		if !strings.HasSuffix(path, ".go") {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		disallowed := disallowedImports(modulePath, layerFor(rel), strings.HasSuffix(rel, "_test.go"))
		if len(disallowed) == 0 {
			return nil
		}

		f, err := parser.ParseFile(fset, path, nil, parser.ImportsOnly)
		if err != nil {
			return err
		}
		for _, spec := range f.Imports {
			if spec == nil || spec.Path == nil {
				continue
			}
			imp, err := strconv.Unquote(spec.Path.Value)
			if err != nil {
				continue
			}
			for _, bad := range disallowed {
				if imp == bad || strings.HasPrefix(imp, bad+"/") {
					violations = append(violations, violation{file: rel, imp: imp, rule: bad})
					break
				}
			}
		}
		return nil
	})
	if walkErr != nil {
		t.Fatalf("walk internal/: %v", walkErr)
	}

	if len(violations) > 0 {
		var b strings.Builder
		b.WriteString("import boundary violations:\n")
		for _, v := range violations {
			fmt.Fprintf(&b, "- %s imports %q (disallowed: %q)\n", v.file, v.imp, v.rule)
		}
		t.Fatal(b.String())
	}
}

func TestLayerFor(t *testing.T) {
	cases := map[string]string{
		"internal/platform/logger/logger.go":  "platform",
		"internal/generation/batch.go":        "client",
		"internal/progress/websocket_test.go": "client",
		"internal/devserver/jobs.go":          "devserver",
		"internal/app/app.go":                 "",
		"internal/cli/execute.go":             "",
		"internal/config/load.go":             "",
	}
	for rel, want := range cases {
		if got := layerFor(rel); got != want {
			t.Fatalf("layerFor(%q)=%q want %q", rel, got, want)
		}
	}
}

func layerFor(rel string) string {
	if strings.HasPrefix(rel, "internal/platform/") {
		return "platform"
	}
	if strings.HasPrefix(rel, "internal/devserver/") {
		return "devserver"
	}
	for _, p := range clientPackages {
		if strings.HasPrefix(rel, "internal/"+p+"/") {
			return "client"
		}
	}
	return ""
}

func disallowedImports(modulePath, layer string, isTest bool) []string {
	internal := modulePath + "/internal/"
	switch layer {
	case "platform":
		out := []string{internal + "app", internal + "cli", internal + "config", internal + "devserver", internal + "observability"}
		for _, p := range clientPackages {
			out = append(out, internal+p)
		}
		return out
	case "client":
		return []string{internal + "app", internal + "cli", internal + "config", internal + "devserver", internal + "observability"}
	case "devserver":
		// Tests drive the server through the real client.
		if isTest {
			return []string{internal + "app", internal + "cli"}
		}
		return []string{internal + "app", internal + "cli", internal + "apiclient", internal + "account"}
	default:
		return nil
	}
}

func moduleRoot(t *testing.T) (string, string) {
	t.Helper()
	start, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	root, err := findModuleRoot(start)
	if err != nil {
		t.Fatalf("find module root: %v", err)
	}
	modulePath, err := readModulePath(filepath.Join(root, "go.mod"))
	if err != nil {
		t.Fatalf("read module path: %v", err)
	}
	return root, modulePath
}

func findModuleRoot(start string) (string, error) {
	dir := start
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("go.mod not found from %s", start)
		}
		dir = parent
	}
}

func readModulePath(goModPath string) (string, error) {
	f, err := os.Open(goModPath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "module ") {
			continue
		}
		mp := strings.TrimSpace(strings.TrimPrefix(line, "module "))
		if mp == "" {
			return "", fmt.Errorf("empty module path in %s", goModPath)
		}
		return mp, nil
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return "", fmt.Errorf("module path not found in %s", goModPath)
}
