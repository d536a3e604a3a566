package workflow

import "testing"

func TestBumpVersion_IncrementsPatch(t *testing.T) {
	got := bumpVersion("1.2.3")
	if got != "1.2.4" {
		t.Fatalf("bumpVersion(1.2.3) = %s", got)
	}
}

func TestBumpVersion_MalformedInputGetsSourceSuffix(t *testing.T) {
	got := bumpVersion("custom-import")
	if got != "custom-import.1" {
		t.Fatalf("bumpVersion(custom-import) = %s", got)
	}
}

func TestBumpVersion_NonNumericComponentGetsSourceSuffix(t *testing.T) {
	got := bumpVersion("1.x.3")
	if got != "1.x.3.1" {
		t.Fatalf("bumpVersion(1.x.3) = %s", got)
	}
}
