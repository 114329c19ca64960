package window

import "testing"

func TestHandleIdentity(t *testing.T) {
	a := NewHandle(7, 1)
	b := NewHandle(7, 2)
	if a == b {
		t.Fatalf("handles with reused id but different serial compare equal")
	}
	if a != NewHandle(7, 1) {
		t.Fatalf("identical handles compare unequal")
	}

	seen := map[Handle]bool{a: true}
	if seen[b] {
		t.Fatalf("recycled object id aliased an old map key")
	}
	if !(Handle{}).IsZero() || a.IsZero() {
		t.Fatalf("IsZero mismatch")
	}
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{0, "normal"},
		{StateMinimized, "minimized"},
		{StateActivated | StateFullscreen, "activated|fullscreen"},
		{StateMaximized | StateSticky, "maximized|sticky"},
	}

	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}

func TestInfoCloneIsDeep(t *testing.T) {
	orig := Info{
		Title:      "Terminal",
		Outputs:    []string{"DP-1"},
		Workspaces: []WorkspaceHandle{NewWorkspaceHandle(3, 1)},
	}
	c := orig.Clone()
	c.Outputs[0] = "HDMI-A-1"
	c.Workspaces[0] = NewWorkspaceHandle(4, 2)

	if orig.Outputs[0] != "DP-1" {
		t.Errorf("clone shares outputs slice")
	}
	if orig.Workspaces[0] != NewWorkspaceHandle(3, 1) {
		t.Errorf("clone shares workspaces slice")
	}
}

func TestMatcher(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		info    Info
		want    bool
	}{
		{"exact app id ignores case", "Firefox", Info{AppID: "firefox"}, true},
		{"regex on app id", "^org\\.gnome\\.", Info{AppID: "org.gnome.Nautilus"}, true},
		{"regex on title", "Inbox", Info{AppID: "thunderbird", Title: "Inbox - Mail"}, true},
		{"no match", "^code$", Info{AppID: "firefox", Title: "code review"}, false},
		{"empty fields never match", ".*", Info{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := NewMatcher(tt.pattern)
			if err != nil {
				t.Fatalf("NewMatcher(%q) error = %v", tt.pattern, err)
			}
			if got := m.Match(tt.info); got != tt.want {
				t.Errorf("Match(%+v) = %v, want %v", tt.info, got, tt.want)
			}
		})
	}
}

func TestMatcherRejectsBadPatterns(t *testing.T) {
	for _, p := range []string{"", "   ", "("} {
		if _, err := NewMatcher(p); err == nil {
			t.Errorf("NewMatcher(%q) succeeded, want error", p)
		}
	}
}
