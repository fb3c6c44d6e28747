package resolve

import "testing"

func viewOf(m map[string]string) View {
	return func(tag string) (string, bool) {
		v, ok := m[tag]
		return v, ok
	}
}

func TestName(t *testing.T) {
	tests := []struct {
		name     string
		template string
		layers   map[string]string
		want     string
	}{
		{"literal untouched", "/a/b", nil, "/a/b"},
		{"unbound tag degrades", "/%id%/key", nil, "/%/key"},
		{"bound tag substitutes", "/%id%/key", map[string]string{"id": "my"}, "/my/key"},
		{"anonymous stays wildcard", "/%/key", map[string]string{"id": "my"}, "/%/key"},
		{"multiple tags", "/%a%/%b%/x", map[string]string{"a": "1", "b": "2"}, "/1/2/x"},
		{"partial binding", "/%a%/%b%/x", map[string]string{"a": "1"}, "/1/%/x"},
		{"namespace preserved", "user:/%id%/key", map[string]string{"id": "my"}, "user:/my/key"},
		{"empty view total", "/%a%/%/%b%", map[string]string{}, "/%/%/%"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Name(tt.template, viewOf(tt.layers))
			if got != tt.want {
				t.Errorf("Name(%q) = %q, want %q", tt.template, got, tt.want)
			}
		})
	}
}

func TestNameNilView(t *testing.T) {
	if got := Name("/%id%/key", nil); got != "/%/key" {
		t.Errorf("Name with nil view = %q, want /%%/key", got)
	}
}

func TestIsTemplated(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"/a/b", false},
		{"/%id%/key", true},
		{"/%/key", true},
		{"user:/plain", false},
	}

	for _, tt := range tests {
		if got := IsTemplated(tt.name); got != tt.want {
			t.Errorf("IsTemplated(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestTags(t *testing.T) {
	got := Tags("/%a%/x/%b%/%/y")
	want := []string{"a", "b"}
	if len(got) != len(want) {
		t.Fatalf("Tags() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Tags()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
