package recognition

import (
	"errors"
	"testing"
)

func TestParseItemsRecoversFencedOutput(t *testing.T) {
	text := "Here you go:\n```json\n{\"items\":[{\"page\":2,\"term\":\" Total \",\"value\":1250.50,\"confidence\":87.6,\"evidence\":\"Total 1250.50\"}]}\n```"

	items, err := ParseItems(text, 1)
	if err != nil {
		t.Fatalf("ParseItems() error = %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
	item := items[0]
	if item.Page != 2 || item.Term != "Total" {
		t.Fatalf("unexpected item %#v", item)
	}
	if item.Value != "1250.50" {
		t.Fatalf("expected literal number text, got %q", item.Value)
	}
	if item.Confidence != 88 {
		t.Fatalf("expected rounded confidence 88, got %d", item.Confidence)
	}
	if item.Evidence == nil || *item.Evidence != "Total 1250.50" {
		t.Fatalf("unexpected evidence %v", item.Evidence)
	}
}

func TestParseItemsDefaultsAndClamps(t *testing.T) {
	text := `{"items":[
		{"term":"VAT","value":"€ 12,00","confidence":140,"evidence":"  "},
		{"term":"Due","value":"2026-01-31","confidence":-3,"evidence":null,"page":0},
		{"term":"   ","value":"skipped"}
	]}`

	items, err := ParseItems(text, 3)
	if err != nil {
		t.Fatalf("ParseItems() error = %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected blank term to be dropped, got %d items", len(items))
	}
	if items[0].Page != 3 || items[1].Page != 3 {
		t.Fatalf("expected default page 3, got %d and %d", items[0].Page, items[1].Page)
	}
	if items[0].Value != "€ 12,00" {
		t.Fatalf("expected literal value, got %q", items[0].Value)
	}
	if items[0].Confidence != 100 || items[1].Confidence != 0 {
		t.Fatalf("expected clamped confidences, got %d and %d", items[0].Confidence, items[1].Confidence)
	}
	if items[0].Evidence != nil || items[1].Evidence != nil {
		t.Fatalf("expected blank evidence to become nil")
	}
}

func TestParseItemsEmptyList(t *testing.T) {
	items, err := ParseItems(`{"items": []}`, 1)
	if err != nil {
		t.Fatalf("ParseItems() error = %v", err)
	}
	if len(items) != 0 {
		t.Fatalf("expected no items, got %d", len(items))
	}
}

func TestParseItemsRejectsMalformedOutput(t *testing.T) {
	cases := map[string]string{
		"no json":        "I could not read this document.",
		"broken json":    `{"items": [ {"term": "Total", `,
		"missing items":  `{"total": "12.00"}`,
		"wrong value":    `{"items":[{"term":"Total","value":{"amount":1}}]}`,
		"missing value":  `{"items":[{"term":"Total"}]}`,
		"evidence type":  `{"items":[{"term":"Total","value":"1","evidence":5}]}`,
		"items not list": `{"items": "none"}`,
	}
	for name, text := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseItems(text, 1)
			if !errors.Is(err, ErrMalformedOutput) {
				t.Fatalf("expected ErrMalformedOutput, got %v", err)
			}
		})
	}
}

func TestParseItemsKeepsValidItemsAmongInvalid(t *testing.T) {
	text := `{"items":[
		{"term":"Total","value":"1,250.00","confidence":90},
		{"term":"Discount","value":null},
		{"term":"Tax"},
		{"term":"Address","value":{"street":"Main"}},
		"stray"
	]}`

	items, err := ParseItems(text, 1)
	if err != nil {
		t.Fatalf("ParseItems() error = %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected only the valid item, got %#v", items)
	}
	if items[0].Term != "Total" || items[0].Value != "1,250.00" {
		t.Fatalf("unexpected item %#v", items[0])
	}
}

func TestParsePageItemsForcesPage(t *testing.T) {
	text := `{"items":[{"page":1,"term":"Total","value":"10"},{"term":"VAT","value":"2"}]}`

	items, err := ParsePageItems(text, 3)
	if err != nil {
		t.Fatalf("ParsePageItems() error = %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	for _, item := range items {
		if item.Page != 3 {
			t.Fatalf("expected page 3 for %q, got %d", item.Term, item.Page)
		}
	}

	items, err = ParseItems(text, 3)
	if err != nil {
		t.Fatalf("ParseItems() error = %v", err)
	}
	if items[0].Page != 1 || items[1].Page != 3 {
		t.Fatalf("expected model page kept for whole documents, got %d and %d", items[0].Page, items[1].Page)
	}
}
