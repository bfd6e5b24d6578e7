package main

import (
	"encoding/hex"
	"testing"
)

func TestGenerateKey(t *testing.T) {
	key, err := generateKey()
	if err != nil {
		t.Fatal(err)
	}
	raw, err := hex.DecodeString(key)
	if err != nil {
		t.Fatalf("key is not hex: %v", err)
	}
	if len(raw) != 32 {
		t.Errorf("key length = %d bytes, want 32", len(raw))
	}

	other, err := generateKey()
	if err != nil {
		t.Fatal(err)
	}
	if key == other {
		t.Error("two generated keys are identical")
	}
}

func TestRootCmd_Subcommands(t *testing.T) {
	cmd := rootCmd()
	want := map[string]bool{"serve": false, "migrate": false, "keygen": false}
	for _, sub := range cmd.Commands() {
		if _, ok := want[sub.Name()]; ok {
			want[sub.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("missing %q subcommand", name)
		}
	}
}
