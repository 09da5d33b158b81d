package firewall

import "testing"

func TestConfigApplyDefaults(t *testing.T) {
	var c Config
	c.ApplyDefaults()
	if c.TableName != DefaultTableName {
		t.Fatalf("TableName = %q, want %q", c.TableName, DefaultTableName)
	}
}

func TestConfigValidate(t *testing.T) {
	c := Config{TableName: "tunnelkeep"}
	if err := c.Validate(); err != nil {
		t.Fatalf("Validate() = %v, want nil", err)
	}

	var empty Config
	if err := empty.Validate(); err == nil {
		t.Fatal("Validate() on empty config = nil, want error")
	}
}
