package config

import (
	"path/filepath"
	"testing"
)

type testConf struct {
	Name string `split_words:"true"`
}

func TestLoadReportsEnvFileErrorOnEveryCall(t *testing.T) {
	t.Setenv(envFileVar, filepath.Join(t.TempDir(), "missing.env"))

	if _, err := Load[testConf]("TESTCONF"); err == nil {
		t.Fatal("expected an error for a missing env file")
	}
	if _, err := Load[testConf]("TESTCONF"); err == nil {
		t.Fatal("expected the env file error on repeated loads")
	}
}
