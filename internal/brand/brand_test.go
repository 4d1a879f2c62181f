package brand

import "testing"

func TestGet(t *testing.T) {
	b := Get()
	if b.Name == "" {
		t.Error("Brand name should not be empty")
	}
	// Version is a global variable, not in the struct
	if Version == "" {
		t.Error("Global Version should be initialized (to dev default)")
	}
	if Name == "" {
		t.Error("Global Name should be initialized")
	}
}

func TestNftIdentity(t *testing.T) {
	if TableName == "" {
		t.Error("TableName should not be empty")
	}
	if DropLogPrefix == "" {
		t.Error("DropLogPrefix should not be empty")
	}
}
