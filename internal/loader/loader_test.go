package loader

import (
	"testing"

	"github.com/sisyphus-test/sisyphus/internal/errs"
)

func TestLoadValidCase(t *testing.T) {
	data := []byte(`
config:
  name: ping case
  scenarioId: s1
  priority: P1
teststeps:
  - name: ping
    keywordType: request
    request:
      method: GET
      url: /health
      validate:
        - target: status_code
          comparator: eq
          expected: 200
`)
	c, err := Load(data, "ping.yaml")
	if err != nil {
		t.Fatal(err)
	}
	if c.Steps[0].Index != 0 {
		t.Fatalf("expected index 0, got %d", c.Steps[0].Index)
	}
}

func TestLoadMalformedYAML(t *testing.T) {
	_, err := Load([]byte("config: [this is not"), "bad.yaml")
	if err == nil || err.Code != errs.CodeYAMLParse {
		t.Fatalf("expected YAML_PARSE_ERROR, got %v", err)
	}
}

func TestLoadMissingName(t *testing.T) {
	data := []byte(`
config: {}
teststeps: []
`)
	_, err := Load(data, "x.yaml")
	if err == nil || err.Code != errs.CodeYAMLValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestLoadFileNotFound(t *testing.T) {
	_, err := LoadFile("/nonexistent/path.yaml")
	if err == nil || err.Code != errs.CodeFileNotFound {
		t.Fatalf("expected FILE_NOT_FOUND, got %v", err)
	}
}

func TestValidateDependsOnMustReferenceEarlierStep(t *testing.T) {
	data := []byte(`
config:
  name: c
teststeps:
  - name: a
    keywordType: assertion
    dependsOn: ["b"]
    assertion:
      target: status_code
      comparator: eq
      expected: 200
  - name: b
    keywordType: assertion
    assertion:
      target: status_code
      comparator: eq
      expected: 200
`)
	_, err := Load(data, "x.yaml")
	if err == nil || err.Code != errs.CodeYAMLValidation {
		t.Fatalf("expected dependsOn ordering violation, got %v", err)
	}
}

func TestValidateCSVAndDdtsMutuallyExclusive(t *testing.T) {
	data := []byte(`
config:
  name: c
  csvDatasource: rows.csv
ddts:
  name: d
  parameters:
    - a: "1"
teststeps: []
`)
	_, err := Load(data, "x.yaml")
	if err == nil || err.Code != errs.CodeYAMLValidation {
		t.Fatalf("expected mutual exclusion error, got %v", err)
	}
}
