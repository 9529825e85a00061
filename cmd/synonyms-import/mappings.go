package main

import (
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kirillkom/invoice-ingest/internal/core/domain"
)

type entry struct {
	Term      string `yaml:"term"`
	Canonical string `yaml:"canonical"`
}

// parseMappings accepts either a canonical-to-terms map:
//
//	Invoice Number: [Inv No, Bill #]
//
// or a list of {term, canonical} entries. Later duplicates of a term win.
func parseMappings(ownerID string, raw []byte) ([]domain.SynonymMapping, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, errors.New("owner is required")
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	if len(doc.Content) == 0 {
		return nil, nil
	}

	var entries []entry
	root := doc.Content[0]
	switch root.Kind {
	case yaml.MappingNode:
		var byCanonical map[string][]string
		if err := root.Decode(&byCanonical); err != nil {
			return nil, fmt.Errorf("decode canonical map: %w", err)
		}
		for i := 0; i < len(root.Content); i += 2 {
			canonical := root.Content[i].Value
			for _, term := range byCanonical[canonical] {
				entries = append(entries, entry{Term: term, Canonical: canonical})
			}
		}
	case yaml.SequenceNode:
		if err := root.Decode(&entries); err != nil {
			return nil, fmt.Errorf("decode entry list: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported yaml document at line %d", root.Line)
	}

	index := make(map[string]int, len(entries))
	out := make([]domain.SynonymMapping, 0, len(entries))
	for i, e := range entries {
		term := strings.TrimSpace(e.Term)
		canonical := strings.TrimSpace(e.Canonical)
		if term == "" || canonical == "" {
			return nil, fmt.Errorf("entry %d: term and canonical are required", i+1)
		}
		mapping := domain.SynonymMapping{OwnerID: ownerID, Term: term, Canonical: canonical}
		key := domain.NormalizeTerm(term)
		if at, ok := index[key]; ok {
			out[at] = mapping
			continue
		}
		index[key] = len(out)
		out = append(out, mapping)
	}
	return out, nil
}
