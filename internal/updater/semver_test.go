package updater

import "testing"

func TestParseSemver(t *testing.T) {
	tests := []struct {
		in      string
		want    Semver
		wantErr bool
	}{
		{in: "1.2.3", want: Semver{1, 2, 3}},
		{in: "v0.4.0", want: Semver{0, 4, 0}},
		{in: "dev", wantErr: true},
		{in: "1.2", wantErr: true},
		{in: "1.2.x", wantErr: true},
		{in: "1.-2.3", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseSemver(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseSemver(%q): expected error, got %v", tt.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseSemver(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseSemver(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestSemverOrdering(t *testing.T) {
	tests := []struct {
		a, b string
		less bool
	}{
		{"1.0.0", "2.0.0", true},
		{"1.9.9", "2.0.0", true},
		{"1.2.3", "1.3.0", true},
		{"1.2.3", "1.2.4", true},
		{"1.2.3", "1.2.3", false},
		{"2.0.0", "1.9.9", false},
	}
	for _, tt := range tests {
		a, _ := ParseSemver(tt.a)
		b, _ := ParseSemver(tt.b)
		if got := a.LessThan(b); got != tt.less {
			t.Errorf("%s < %s = %v, want %v", tt.a, tt.b, got, tt.less)
		}
	}
}

func TestFindAsset(t *testing.T) {
	release := &ReleaseInfo{Assets: []Asset{
		{Name: "forgeline-darwin-arm64"},
		{Name: "forgelined-darwin-arm64"},
	}}

	if a := FindAsset(release, "forgelined-darwin-arm64"); a == nil || a.Name != "forgelined-darwin-arm64" {
		t.Errorf("FindAsset returned %v, want the daemon asset", a)
	}
	if a := FindAsset(release, "forgeline-windows-amd64"); a != nil {
		t.Errorf("FindAsset returned %v for an absent name, want nil", a)
	}
}
