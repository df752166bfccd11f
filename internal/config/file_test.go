package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, src string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pagepatch.yaml")
	if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadFile(t *testing.T) {
	cfg, err := LoadFile(writeConfig(t, `
browser:
  headful: true
  resource_blocking: [images, fonts]
pages:
  - url: https://example.com/article
    patches:
      - name: set-attr
        args: ["video", "muted", "true", "asap stay"]
      - name: click-sequence
        args: ["#consent .accept, #close", "url=example.com"]
sinks:
  - type: webhook
    url: https://hooks.internal/pagepatch
api:
  listen: ":8080"
`))
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Browser.Headful || len(cfg.Browser.ResourceBlocking) != 2 {
		t.Errorf("browser: %+v", cfg.Browser)
	}
	if len(cfg.Pages) != 1 || len(cfg.Pages[0].Patches) != 2 {
		t.Fatalf("pages: %+v", cfg.Pages)
	}
	if cfg.Pages[0].ID != "page-1" {
		t.Errorf("default page id: got %q", cfg.Pages[0].ID)
	}
	if cfg.Pages[0].Patches[1].Args[1] != "url=example.com" {
		t.Errorf("patch args: %v", cfg.Pages[0].Patches[1].Args)
	}
	if cfg.API.Listen != ":8080" {
		t.Errorf("api listen: %q", cfg.API.Listen)
	}
}

func TestLoadFile_DefaultSink(t *testing.T) {
	cfg, err := LoadFile(writeConfig(t, `
pages:
  - url: https://example.com
`))
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.Sinks) != 1 || cfg.Sinks[0].Type != "stdout" {
		t.Errorf("sinks: %+v", cfg.Sinks)
	}
}

func TestLoadFile_Validation(t *testing.T) {
	bad := []string{
		"pages:\n  - id: x\n",                          // page without url
		"sinks:\n  - type: webhook\n",                  // webhook without url
		"sinks:\n  - type: store\n",                    // store without path
		"sinks:\n  - type: nats\n",                     // unknown sink
		"pages:\n  - url: https://x\n    patches:\n      - args: [a]\n", // unnamed patch
	}
	for _, src := range bad {
		if _, err := LoadFile(writeConfig(t, src)); err == nil {
			t.Errorf("no error for:\n%s", src)
		}
	}
}
