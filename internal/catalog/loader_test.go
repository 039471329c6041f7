package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"gend/pkg/types"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func TestLoadFileYAML(t *testing.T) {
	p := writeFile(t, t.TempDir(), "catalog.yaml", `
engines:
  - id: sdxl-cloud
    kind: remote
    modality: image
    provider: examplecorp
    tier: premium
    max_concurrency: 8
  - id: tinyllama
    kind: local
    artifact_path: /models/tinyllama.gguf
    streaming: true
`)
	hs, err := LoadFile(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(hs) != 2 {
		t.Fatalf("got %d handles, want 2", len(hs))
	}
	if hs[0].ID != "sdxl-cloud" || hs[0].Tier != types.TierPremium || hs[0].MaxConcurrency != 8 {
		t.Fatalf("yaml handle wrong: %+v", hs[0])
	}
	if hs[1].Kind != types.KindLocal || !hs[1].Streaming {
		t.Fatalf("yaml local handle wrong: %+v", hs[1])
	}
}

func TestLoadFileJSON(t *testing.T) {
	p := writeFile(t, t.TempDir(), "catalog.json",
		`{"engines":[{"id":"gpt-text","kind":"remote","modality":"text","tier":"standard"}]}`)
	hs, err := LoadFile(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(hs) != 1 || hs[0].ID != "gpt-text" {
		t.Fatalf("json handles wrong: %+v", hs)
	}
}

func TestLoadFileTOML(t *testing.T) {
	p := writeFile(t, t.TempDir(), "catalog.toml", `
[[engines]]
id = "mesh-cloud"
kind = "remote"
modality = "3d"
`)
	hs, err := LoadFile(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(hs) != 1 || hs[0].Modality != types.Modality3D {
		t.Fatalf("toml handles wrong: %+v", hs)
	}
}

func TestLoadFileUnsupportedExtension(t *testing.T) {
	p := writeFile(t, t.TempDir(), "catalog.ini", "nope")
	if _, err := LoadFile(p); err == nil {
		t.Fatalf("expected error for unsupported extension")
	}
}

func TestScanDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "tinyllama-q4.gguf", "weights")
	writeFile(t, dir, "notes.txt", "skip me")
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}

	hs, err := ScanDir(dir)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(hs) != 1 {
		t.Fatalf("got %d handles, want 1", len(hs))
	}
	h := hs[0]
	if h.ID != "tinyllama-q4" || h.Kind != types.KindLocal || h.Tier != types.TierFree {
		t.Fatalf("scanned handle wrong: %+v", h)
	}
	if h.CapacityCost < 1 {
		t.Fatalf("cost=%d, want at least 1", h.CapacityCost)
	}
	if !h.Streaming {
		t.Fatalf("local gguf engines stream")
	}
}

func TestEstimateCostMinimum(t *testing.T) {
	if c := EstimateCost("/does/not/exist"); c != 1 {
		t.Fatalf("missing file cost=%d, want 1", c)
	}
	p := writeFile(t, t.TempDir(), "small.gguf", "tiny")
	if c := EstimateCost(p); c != 1 {
		t.Fatalf("small file cost=%d, want 1", c)
	}
}
