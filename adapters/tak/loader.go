// Package tak loads Temporal Abstraction Knowledge documents from a
// directory of XML files into clinical.TAKRule values, grounded on
// mediator.py:TAKParser.load_all_taks's xml.etree.ElementTree walk,
// translated to encoding/xml struct tags.
package tak

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"cdss/domain/clinical"
	"cdss/internal/errors"
)

// document is the root element of one TAK XML file: one concept,
// identified by name and LOINC code, with one or more condition
// branches for different patient demographics.
type document struct {
	XMLName    xml.Name    `xml:"abstraction"`
	Name       string      `xml:"name,attr"`
	Loinc      string      `xml:"loinc,attr"`
	Conditions []condition `xml:"condition"`
}

// condition carries arbitrary patient-attribute filters as attributes
// (besides none reserved), plus a persistence window and an ordered
// list of thresholds.
type condition struct {
	Attrs       []xml.Attr    `xml:",any,attr"`
	Persistence persistence   `xml:"persistence"`
	Rules       []ruleElement `xml:"rule"`
}

type persistence struct {
	Before string `xml:"good-before,attr"`
	After  string `xml:"good-after,attr"`
}

type ruleElement struct {
	Value string  `xml:"value,attr"`
	Min   *string `xml:"min,attr"`
	Max   *string `xml:"max,attr"`
}

// Loader implements ports.TAKRepository over a directory of *.xml
// files, one per concept.
type Loader struct{}

// New builds a Loader.
func New() *Loader {
	return &Loader{}
}

// LoadAll scans dir for *.xml TAK documents and parses each into one
// or more TAKRule values, one per condition branch.
func (l *Loader) LoadAll(dir string) ([]clinical.TAKRule, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.xml"))
	if err != nil {
		return nil, errors.Wrap(err, "glob TAK directory failed")
	}

	var rules []clinical.TAKRule
	for _, path := range matches {
		parsed, err := l.loadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "load TAK file %s failed", path)
		}
		rules = append(rules, parsed...)
	}
	return rules, nil
}

func (l *Loader) loadFile(path string) ([]clinical.TAKRule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var doc document
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse xml: %w", err)
	}

	var rules []clinical.TAKRule
	for _, cond := range doc.Conditions {
		filters := make(map[string]string, len(cond.Attrs))
		for _, a := range cond.Attrs {
			filters[a.Name.Local] = a.Value
		}

		goodBefore, err := parseDuration(cond.Persistence.Before)
		if err != nil {
			return nil, fmt.Errorf("good-before: %w", err)
		}
		goodAfter, err := parseDuration(cond.Persistence.After)
		if err != nil {
			return nil, fmt.Errorf("good-after: %w", err)
		}

		thresholds := make([]clinical.Threshold, 0, len(cond.Rules))
		for _, r := range cond.Rules {
			th := clinical.Threshold{Label: r.Value}
			if r.Min != nil {
				v, err := strconv.ParseFloat(*r.Min, 64)
				if err != nil {
					return nil, fmt.Errorf("rule %q min: %w", r.Value, err)
				}
				th.MinInclusive = &v
			}
			if r.Max != nil {
				v, err := strconv.ParseFloat(*r.Max, 64)
				if err != nil {
					return nil, fmt.Errorf("rule %q max: %w", r.Value, err)
				}
				th.MaxExclusive = &v
			}
			thresholds = append(thresholds, th)
		}

		rules = append(rules, clinical.TAKRule{
			AbstractionName: doc.Name,
			LoincCode:       doc.Loinc,
			Filters:         filters,
			GoodBefore:      goodBefore,
			GoodAfter:       goodAfter,
			Thresholds:      thresholds,
		})
	}
	return rules, nil
}

// parseDuration parses a compact duration string (e.g. "72h", "2d",
// "15m") into a time.Duration, grounded on mediator.py:parse_duration.
func parseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty duration")
	}
	unit := s[len(s)-1]
	amountStr := s[:len(s)-1]
	amount, err := strconv.Atoi(amountStr)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	switch unit {
	case 'm':
		return time.Duration(amount) * time.Minute, nil
	case 'h':
		return time.Duration(amount) * time.Hour, nil
	case 'd':
		return time.Duration(amount) * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("unsupported duration unit %q in %q", string(unit), s)
	}
}
