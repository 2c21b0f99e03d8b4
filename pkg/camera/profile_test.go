package camera

import "testing"

func TestGetProfile(t *testing.T) {
	for _, name := range ProfileNames() {
		if GetProfile(name) == nil {
			t.Errorf("GetProfile(%q) = nil, want profile", name)
		}
	}
	if GetProfile("nope") != nil {
		t.Error("GetProfile(nope) should be nil")
	}
}

func TestShotCount(t *testing.T) {
	tests := []struct {
		name    string
		profile Profile
		want    int
	}{
		{"standard", StandardProfile(), 1},
		{"best of 3", BestOf3Profile(), 3},
		{"bracketed", BracketedProfile(), 3},
		{"multishot without count", Profile{Kind: MultiShot}, 1},
		{"bracketed without exposures", Profile{Kind: Bracketed}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.profile.ShotCount(); got != tt.want {
				t.Errorf("ShotCount() = %d, want %d", got, tt.want)
			}
		})
	}
}
