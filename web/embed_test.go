package web

import (
	"io/fs"
	"strings"
	"testing"
)

func TestDistFSServesIndex(t *testing.T) {
	site, err := DistFS()
	if err != nil {
		t.Fatalf("DistFS: %v", err)
	}
	data, err := fs.ReadFile(site, "index.html")
	if err != nil {
		t.Fatalf("read index.html: %v", err)
	}
	page := string(data)
	for _, want := range []string{"/api/v1/progress", "/api/v1/ws"} {
		if !strings.Contains(page, want) {
			t.Errorf("index.html should reference %s", want)
		}
	}
}
