package lighting

import (
	"errors"
	"testing"
)

type fakePort struct {
	writes []byte
	err    error
	closed bool
}

func (f *fakePort) Write(p []byte) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.writes = append(f.writes, p...)
	return len(p), nil
}

func (f *fakePort) Close() error {
	f.closed = true
	return nil
}

func TestSetModeWritesCommandBytes(t *testing.T) {
	p := &fakePort{}
	c := &Controller{port: p, portName: "fake"}

	for _, m := range []Mode{White, UV, Off} {
		if err := c.SetMode(m); err != nil {
			t.Fatalf("SetMode(%s) error = %v", m, err)
		}
		if c.Mode() != m {
			t.Errorf("Mode() = %s after SetMode(%s)", c.Mode(), m)
		}
	}

	want := []byte{cmdWhite, cmdUV, cmdOff}
	if len(p.writes) != len(want) {
		t.Fatalf("wrote %v, want %v", p.writes, want)
	}
	for i := range want {
		if p.writes[i] != want[i] {
			t.Errorf("write[%d] = %#x, want %#x", i, p.writes[i], want[i])
		}
	}
}

func TestSetModeSurfacesWriteError(t *testing.T) {
	p := &fakePort{err: errors.New("unplugged")}
	c := &Controller{port: p, portName: "fake", mode: White}

	if err := c.SetMode(UV); err == nil {
		t.Fatal("SetMode() succeeded on a dead port")
	}
	if c.Mode() != White {
		t.Errorf("Mode() = %s, want unchanged White after failed write", c.Mode())
	}
}

func TestCloseTurnsLampsOff(t *testing.T) {
	p := &fakePort{}
	c := &Controller{port: p, portName: "fake", mode: UV}

	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !p.closed {
		t.Error("port not closed")
	}
	if len(p.writes) != 1 || p.writes[0] != cmdOff {
		t.Errorf("writes on close = %v, want single off command", p.writes)
	}
	// Idempotent.
	if err := c.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestParseMode(t *testing.T) {
	for _, ok := range []string{"off", "white", "uv"} {
		if _, err := ParseMode(ok); err != nil {
			t.Errorf("ParseMode(%q) error = %v", ok, err)
		}
	}
	if _, err := ParseMode("strobe"); err == nil {
		t.Error("ParseMode accepted unknown mode")
	}
}
