package rules

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"cdss/domain/clinical"
)

const (
	dirDeclarative = "declarative_knowledge"
	dirProcedural  = "procedural_knowledge"
)

var requiredSubdirs = []string{dirDeclarative, dirProcedural}

// Repository implements ports.RuleRepository over a directory of two
// subdirectories of *.json structured rule documents.
type Repository struct{}

// New builds a Repository.
func New() *Repository {
	return &Repository{}
}

// Validate ensures the repository layout at dir satisfies section
// 4.6's structural invariants, creating missing required
// subdirectories. It returns every violation found, not just the
// first, mirroring rule_processor.py:_validate_rules.
func (r *Repository) Validate(dir string) []string {
	var errs []string

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return []string{fmt.Sprintf("cannot create rules folder %s: %v", dir, err)}
	}

	for _, sub := range requiredSubdirs {
		full := filepath.Join(dir, sub)
		if _, err := os.Stat(full); os.IsNotExist(err) {
			if err := os.MkdirAll(full, 0o755); err != nil {
				errs = append(errs, fmt.Sprintf("cannot create required subdirectory %s: %v", sub, err))
			}
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		errs = append(errs, fmt.Sprintf("cannot read rules folder %s: %v", dir, err))
		return errs
	}
	required := map[string]bool{dirDeclarative: true, dirProcedural: true}
	for _, e := range entries {
		if e.IsDir() && !required[e.Name()] {
			errs = append(errs, fmt.Sprintf("unexpected subdirectory in rules folder: %s", e.Name()))
		}
	}

	var declarativeOrders, proceduralOrders []int

	for _, sub := range requiredSubdirs {
		full := filepath.Join(dir, sub)
		files, err := os.ReadDir(full)
		if err != nil {
			continue
		}
		for _, f := range files {
			if f.IsDir() || filepath.Ext(f.Name()) != ".json" {
				continue
			}
			path := filepath.Join(full, f.Name())
			data, err := os.ReadFile(path)
			if err != nil {
				errs = append(errs, fmt.Sprintf("failed to read %s/%s: %v", sub, f.Name(), err))
				continue
			}
			raw, p, perr := parseDocument(data)
			if perr != nil {
				errs = append(errs, fmt.Sprintf("failed to parse %s/%s: %v", sub, f.Name(), perr))
				continue
			}
			if missing := raw.missingKeys(); len(missing) > 0 {
				errs = append(errs, fmt.Sprintf("%s/%s missing required keys: %v", sub, f.Name(), missing))
				continue
			}

			if sub == dirDeclarative {
				declarativeOrders = append(declarativeOrders, p.ExecutionOrder)
			} else {
				proceduralOrders = append(proceduralOrders, p.ExecutionOrder)
			}

			if p.LogicType != string(clinical.LogicAND) && p.LogicType != string(clinical.LogicOR) {
				errs = append(errs, fmt.Sprintf("%s is not a valid logic_type in %s/%s. Allowed values are AND / OR", p.LogicType, sub, f.Name()))
			}

			if len(p.DuplicateIDs) > 0 {
				errs = append(errs, fmt.Sprintf("%s/%s has duplicate condition IDs: %v", sub, f.Name(), p.DuplicateIDs))
			}

			var missingValues []string
			for _, cid := range p.ConditionOrder {
				if _, ok := p.RawValues[cid]; !ok {
					missingValues = append(missingValues, cid)
				}
			}
			if len(missingValues) > 0 {
				errs = append(errs, fmt.Sprintf("%s/%s is missing 'values' entries for: %v", sub, f.Name(), missingValues))
			}

			isDeclarative := sub == dirDeclarative
			if isDeclarative {
				if _, _, err := p.declarativeValues(); err != nil {
					errs = append(errs, fmt.Sprintf("%s/%s: %v", sub, f.Name(), err))
				}
			} else {
				if _, _, err := p.proceduralValues(); err != nil {
					errs = append(errs, fmt.Sprintf("%s/%s: %v", sub, f.Name(), err))
				}
			}
		}
	}

	if len(declarativeOrders) > 0 && len(proceduralOrders) > 0 {
		maxDecl := maxInt(declarativeOrders)
		minProc := minInt(proceduralOrders)
		if minProc <= maxDecl {
			errs = append(errs, fmt.Sprintf(
				"execution order constraint violated: procedural min (%d) must be > declarative max (%d)", minProc, maxDecl))
		}
	}

	return errs
}

// Discover returns the rules of both tiers, each sorted by
// ExecutionOrder ascending, declarative first.
func (r *Repository) Discover(dir string) ([]clinical.StructuredRule, []clinical.StructuredRule, error) {
	declarative, err := r.discoverTier(dir, dirDeclarative, clinical.HierarchyDeclarative)
	if err != nil {
		return nil, nil, err
	}
	procedural, err := r.discoverTier(dir, dirProcedural, clinical.HierarchyProcedural)
	if err != nil {
		return nil, nil, err
	}
	return declarative, procedural, nil
}

func (r *Repository) discoverTier(dir, subdir string, level clinical.HierarchyLevel) ([]clinical.StructuredRule, error) {
	full := filepath.Join(dir, subdir)
	files, err := os.ReadDir(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s: %w", full, err)
	}

	var out []clinical.StructuredRule
	for _, f := range files {
		if f.IsDir() || filepath.Ext(f.Name()) != ".json" {
			continue
		}
		path := filepath.Join(full, f.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		_, p, err := parseDocument(data)
		if err != nil || p == nil {
			return nil, fmt.Errorf("parse %s: %v", path, err)
		}

		var values map[string][]string
		var fallback []string
		if level == clinical.HierarchyDeclarative {
			values, fallback, err = p.declarativeValues()
		} else {
			values, fallback, err = p.proceduralValues()
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}

		out = append(out, clinical.StructuredRule{
			RuleName:        p.RuleName,
			HierarchyLevel:  level,
			ExecutionOrder:  p.ExecutionOrder,
			SyntheticLoinc:  p.SyntheticLoinc,
			InputParameters: p.InputParameters,
			LogicType:       clinical.LogicType(p.LogicType),
			ConditionOrder:  p.ConditionOrder,
			Rules:           p.Rules,
			Values:          values,
			FallbackValue:   fallback,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ExecutionOrder < out[j].ExecutionOrder
	})
	return out, nil
}

func maxInt(values []int) int {
	m := values[0]
	for _, v := range values[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

func minInt(values []int) int {
	m := values[0]
	for _, v := range values[1:] {
		if v < m {
			m = v
		}
	}
	return m
}
