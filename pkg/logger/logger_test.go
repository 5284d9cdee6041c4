package logger

import "testing"

func TestInitValidatesInputs(t *testing.T) {
	if _, err := Init("loud", "json"); err == nil {
		t.Fatal("unknown level accepted")
	}
	if _, err := Init("info", "xml"); err == nil {
		t.Fatal("unknown format accepted")
	}
}

func TestInitInstallsGlobal(t *testing.T) {
	l, err := Init("error", "console")
	if err != nil {
		t.Fatalf("init failed: %v", err)
	}
	if L() != l {
		t.Fatal("L() does not return the initialized logger")
	}
	Sync()
}
