package menu

import (
	"strings"
	"testing"

	"github.com/your-org/cmtl/internal/registry"
)

func testRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg, err := registry.New("192.168.1.1", []registry.ToolDescriptor{
		{ID: "nmap", DisplayName: "Nmap", Category: "network-scanners", Command: []string{"nmap"}, Mode: registry.RunAndCapture},
		{ID: "wireshark", DisplayName: "Wireshark", Category: "forensics", Command: []string{"wireshark"}, Mode: registry.LaunchOnly},
		{ID: "zenmap", DisplayName: "Zenmap", Category: "network-scanners", Command: []string{"zenmap"}, Mode: registry.LaunchOnly},
		{ID: "oddball", Command: []string{"oddball"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	return reg
}

func TestBuildItemsRunAllFirst(t *testing.T) {
	items := buildItems(testRegistry(t))

	if len(items) != 5 {
		t.Fatalf("Expected run-all plus 4 tools, got %d items", len(items))
	}

	first, ok := items[0].(item)
	if !ok || first.id != runAllID {
		t.Errorf("First item should be run-all, got %+v", items[0])
	}
	if !strings.Contains(first.desc, "4") {
		t.Errorf("Run-all description should carry the tool count, got %q", first.desc)
	}
}

func TestBuildItemsGroupsByCategory(t *testing.T) {
	items := buildItems(testRegistry(t))

	ids := make([]string, 0, len(items))
	for _, it := range items[1:] {
		ids = append(ids, it.(item).id)
	}

	// Categories in first-seen order, uncategorized tools last.
	want := []string{"nmap", "zenmap", "wireshark", "oddball"}
	for i, id := range want {
		if ids[i] != id {
			t.Errorf("position %d: expected %s, got %s", i, id, ids[i])
		}
	}
}

func TestToolItemDescribesMode(t *testing.T) {
	launch := toolItem(registry.ToolDescriptor{ID: "w", Category: "forensics", Mode: registry.LaunchOnly})
	if !strings.Contains(launch.desc, "detached") {
		t.Errorf("Launch-only description: %q", launch.desc)
	}

	capture := toolItem(registry.ToolDescriptor{ID: "n", Mode: registry.RunAndCapture})
	if !strings.Contains(capture.desc, "captured") {
		t.Errorf("Capture description: %q", capture.desc)
	}
}

func TestItemFilterValue(t *testing.T) {
	it := item{title: "Nmap", category: "network-scanners"}
	fv := it.FilterValue()
	if !strings.Contains(fv, "Nmap") || !strings.Contains(fv, "network-scanners") {
		t.Errorf("Filter value should include title and category, got %q", fv)
	}
}
