// Package loader implements Scenario Model loading (C1's load path):
// parsing a case file into model.Case, then running the structural
// validation spec §3 requires before any step executes.
//
// Grounded on the teacher's runtime/yaml config loading (runtime/engine/yaml),
// generalized from flow-definition YAML to the spec's case/config/teststeps
// shape, with validation errors carrying the teacher's dotted-path style
// (e.g. teststeps[2].request.body).
package loader

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/sisyphus-test/sisyphus/internal/errs"
	"github.com/sisyphus-test/sisyphus/internal/model"
)

// LoadFile reads path, parses it as YAML into a model.Case, assigns stable
// step indices, and validates the result.
func LoadFile(path string) (*model.Case, *errs.CaseError) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errs.New(errs.ClassEngine, errs.CodeFileNotFound, err.Error()).WithPath(path)
		}
		return nil, errs.New(errs.ClassEngine, errs.CodeFileNotFound, err.Error()).WithPath(path)
	}
	return Load(data, path)
}

// Load parses raw YAML bytes into a model.Case and validates it. path is
// used only to annotate error messages (typically the source file name).
func Load(data []byte, path string) (*model.Case, *errs.CaseError) {
	var c model.Case
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, errs.New(errs.ClassEngine, errs.CodeYAMLParse, err.Error()).WithPath(path)
	}

	assignIndices(c.Steps)

	if ve := Validate(c); ve != nil {
		return nil, ve.WithPath(path)
	}
	return &c, nil
}

func assignIndices(steps []model.Step) {
	for i := range steps {
		steps[i].Index = i
		assignIndices(steps[i].Setup)
		assignIndices(steps[i].Teardown)
		if steps[i].Loop != nil {
			assignIndices(steps[i].Loop.Steps)
		}
		if steps[i].Concurrent != nil {
			assignIndices(steps[i].Concurrent.Steps)
		}
	}
}

var validKeywordTypes = map[model.KeywordType]bool{
	model.KeywordRequest: true, model.KeywordAssertion: true, model.KeywordExtract: true,
	model.KeywordDB: true, model.KeywordCustom: true,
}

var validMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "DELETE": true, "PATCH": true, "HEAD": true, "OPTIONS": true,
}

var validPriorities = map[model.Priority]bool{
	model.PriorityP0: true, model.PriorityP1: true, model.PriorityP2: true, model.PriorityP3: true,
}

// Validate checks the structural invariants from spec §3: required fields,
// enum ranges, mutual exclusions, and dependsOn ordering. It returns the
// first violation found.
func Validate(c model.Case) *errs.CaseError {
	if c.Config.Name == "" {
		return validationErr("config.name", "name is required")
	}
	if c.Config.Priority != "" && !validPriorities[c.Config.Priority] {
		return validationErr("config.priority", fmt.Sprintf("invalid priority %q", c.Config.Priority))
	}
	if c.Config.CSVDatasource != "" && c.Ddts != nil {
		return validationErr("config.csvDatasource", "csvDatasource and ddts are mutually exclusive")
	}
	if c.Ddts != nil {
		if ve := validateDdts(*c.Ddts); ve != nil {
			return ve
		}
	}

	seen := map[string]bool{}
	for i, step := range c.Steps {
		path := fmt.Sprintf("teststeps[%d]", i)
		if ve := validateStep(step, path, seen); ve != nil {
			return ve
		}
		if step.Name != "" {
			seen[step.Name] = true
		}
	}
	return nil
}

func validateStep(step model.Step, path string, priorNames map[string]bool) *errs.CaseError {
	if !validKeywordTypes[step.KeywordType] {
		return validationErr(path+".keywordType", fmt.Sprintf("invalid keywordType %q", step.KeywordType))
	}
	for _, dep := range step.DependsOn {
		if !priorNames[dep] {
			return validationErr(path+".dependsOn", fmt.Sprintf("dependsOn %q must reference an earlier step", dep))
		}
	}

	switch step.KeywordType {
	case model.KeywordRequest:
		if step.Request == nil {
			return validationErr(path+".request", "request body is required for keywordType=request")
		}
		if ve := validateRequest(*step.Request, path+".request"); ve != nil {
			return ve
		}
	case model.KeywordAssertion:
		if step.Assertion == nil {
			return validationErr(path+".assertion", "assertion body is required for keywordType=assertion")
		}
	case model.KeywordExtract:
		if step.Extract == nil || len(step.Extract.Rules) == 0 {
			return validationErr(path+".extract", "extract requires at least one rule")
		}
	case model.KeywordDB:
		if step.DB == nil || step.DB.SQL == "" {
			return validationErr(path+".db", "db requires sql")
		}
	case model.KeywordCustom:
		if step.Custom == nil || step.Custom.KeywordName == "" {
			return validationErr(path+".custom", "custom requires keywordName")
		}
	}

	for j, sub := range step.Setup {
		if ve := validateStep(sub, fmt.Sprintf("%s.setup[%d]", path, j), priorNames); ve != nil {
			return ve
		}
	}
	for j, sub := range step.Teardown {
		if ve := validateStep(sub, fmt.Sprintf("%s.teardown[%d]", path, j), priorNames); ve != nil {
			return ve
		}
	}
	return nil
}

func validateRequest(r model.RequestStep, path string) *errs.CaseError {
	if !validMethods[r.Method] {
		return validationErr(path+".method", fmt.Sprintf("invalid method %q", r.Method))
	}
	if r.URL == "" {
		return validationErr(path+".url", "url is required")
	}
	switch r.BodyKind {
	case "", model.BodyNone, model.BodyJSON, model.BodyForm, model.BodyMultipart, model.BodyRaw:
	default:
		return validationErr(path+".bodyKind", fmt.Sprintf("invalid bodyKind %q", r.BodyKind))
	}
	return nil
}

func validateDdts(d model.Ddts) *errs.CaseError {
	if len(d.Parameters) == 0 {
		return nil
	}
	keys := rowKeys(d.Parameters[0])
	for i, row := range d.Parameters {
		if !sameKeys(keys, rowKeys(row)) {
			return validationErr(fmt.Sprintf("ddts.parameters[%d]", i), "all rows must share the same key set")
		}
	}
	return nil
}

func rowKeys(row map[string]any) map[string]bool {
	keys := make(map[string]bool, len(row))
	for k := range row {
		keys[k] = true
	}
	return keys
}

func sameKeys(a, b map[string]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if !b[k] {
			return false
		}
	}
	return true
}

func validationErr(path, msg string) *errs.CaseError {
	return errs.New(errs.ClassEngine, errs.CodeYAMLValidation, msg).WithPath(path)
}
