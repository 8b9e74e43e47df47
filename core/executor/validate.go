package executor

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclparse"

	"costplan/internal/errors"
)

// Violation is one forbidden construct found during static validation
type Violation struct {
	// File is the offending file, relative to the workspace
	File string `json:"file"`

	// Line is the location of the construct
	Line int `json:"line"`

	// Rule names the violated rule
	Rule string `json:"rule"`

	// Detail describes what was found
	Detail string `json:"detail"`
}

// Validator scans IaC sources for constructs the sandbox forbids.
type Validator struct {
	allowedProviders  map[string]bool
	blockLocalExec    bool
	blockExternalData bool
}

// NewValidator creates a validator with a provider allowlist.
func NewValidator(allowedProviders []string, blockLocalExec, blockExternalData bool) *Validator {
	allowed := make(map[string]bool, len(allowedProviders))
	for _, p := range allowedProviders {
		allowed[p] = true
	}
	return &Validator{
		allowedProviders:  allowed,
		blockLocalExec:    blockLocalExec,
		blockExternalData: blockExternalData,
	}
}

var sourceSchema = &hcl.BodySchema{
	Blocks: []hcl.BlockHeaderSchema{
		{Type: "resource", LabelNames: []string{"type", "name"}},
		{Type: "data", LabelNames: []string{"type", "name"}},
		{Type: "provider", LabelNames: []string{"name"}},
		{Type: "terraform"},
	},
}

var resourceSchema = &hcl.BodySchema{
	Blocks: []hcl.BlockHeaderSchema{
		{Type: "provisioner", LabelNames: []string{"type"}},
	},
}

var terraformSchema = &hcl.BodySchema{
	Blocks: []hcl.BlockHeaderSchema{
		{Type: "backend", LabelNames: []string{"type"}},
		{Type: "cloud"},
	},
}

// ValidateDir scans every .tf file under root. A non-empty violation
// list means the workspace must not be executed.
func (v *Validator) ValidateDir(root string) ([]Violation, error) {
	var violations []Violation
	parser := hclparse.NewParser()

	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !strings.HasSuffix(path, ".tf") {
			return nil
		}

		src, err := os.ReadFile(path)
		if err != nil {
			return err
		}

		rel, _ := filepath.Rel(root, path)
		found, err := v.validateFile(parser, src, rel)
		if err != nil {
			return err
		}
		violations = append(violations, found...)
		return nil
	})
	if err != nil {
		return nil, errors.Internal("walking workspace", err)
	}
	return violations, nil
}

func (v *Validator) validateFile(parser *hclparse.Parser, src []byte, name string) ([]Violation, error) {
	file, diags := parser.ParseHCL(src, name)
	if diags.HasErrors() {
		return []Violation{{
			File:   name,
			Rule:   "parse",
			Detail: diags.Error(),
		}}, nil
	}

	var violations []Violation
	content, _, _ := file.Body.PartialContent(sourceSchema)
	for _, block := range content.Blocks {
		switch block.Type {
		case "resource":
			violations = append(violations, v.checkResource(block, name)...)
		case "data":
			violations = append(violations, v.checkData(block, name)...)
		case "provider":
			violations = append(violations, v.checkProvider(block, name)...)
		case "terraform":
			violations = append(violations, v.checkTerraform(block, name)...)
		}
	}
	return violations, nil
}

func (v *Validator) checkResource(block *hcl.Block, file string) []Violation {
	if !v.blockLocalExec {
		return nil
	}

	var violations []Violation
	content, _, _ := block.Body.PartialContent(resourceSchema)
	for _, inner := range content.Blocks {
		if inner.Type != "provisioner" || len(inner.Labels) == 0 {
			continue
		}
		kind := inner.Labels[0]
		if kind == "local-exec" || kind == "remote-exec" {
			violations = append(violations, Violation{
				File:   file,
				Line:   inner.DefRange.Start.Line,
				Rule:   "forbidden_provisioner",
				Detail: fmt.Sprintf("provisioner %q executes arbitrary commands", kind),
			})
		}
	}
	return violations
}

func (v *Validator) checkData(block *hcl.Block, file string) []Violation {
	if !v.blockExternalData || len(block.Labels) == 0 || block.Labels[0] != "external" {
		return nil
	}
	return []Violation{{
		File:   file,
		Line:   block.DefRange.Start.Line,
		Rule:   "forbidden_data_source",
		Detail: "external data sources execute arbitrary programs",
	}}
}

func (v *Validator) checkProvider(block *hcl.Block, file string) []Violation {
	if len(block.Labels) == 0 {
		return nil
	}
	name := block.Labels[0]
	if v.allowedProviders[name] {
		return nil
	}
	return []Violation{{
		File:   file,
		Line:   block.DefRange.Start.Line,
		Rule:   "provider_not_allowed",
		Detail: fmt.Sprintf("provider %q is not in the allowlist", name),
	}}
}

func (v *Validator) checkTerraform(block *hcl.Block, file string) []Violation {
	var violations []Violation
	content, _, _ := block.Body.PartialContent(terraformSchema)
	for _, inner := range content.Blocks {
		if inner.Type == "backend" || inner.Type == "cloud" {
			violations = append(violations, Violation{
				File:   file,
				Line:   inner.DefRange.Start.Line,
				Rule:   "backend_not_allowed",
				Detail: "state backends are disabled in the sandbox",
			})
		}
	}
	return violations
}
