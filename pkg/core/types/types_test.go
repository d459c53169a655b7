package types

import (
	"encoding/json"
	"testing"
)

func validReport() *AnalysisReport {
	return &AnalysisReport{
		Summary:                    "Spending diverges sharply after separation.",
		StandardOfLivingAssessment: "Comfortable, travel-heavy lifestyle.",
		LegalReferences:            []string{"Family Code 4320"},
		ChartRows: []CategoryComparison{
			{Category: "Housing", PartyAAmount: 4200, PartyBAmount: 4100, Discrepancy: 100},
		},
	}
}

func TestReportValidate(t *testing.T) {
	if err := validReport().Validate(); err != nil {
		t.Fatalf("valid report rejected: %v", err)
	}

	r := validReport()
	r.Summary = "  "
	if err := r.Validate(); err == nil {
		t.Fatal("blank summary accepted")
	}

	r = validReport()
	r.LegalReferences = nil
	if err := r.Validate(); err == nil {
		t.Fatal("missing code references accepted")
	}

	r = validReport()
	r.ChartRows = nil
	if err := r.Validate(); err == nil {
		t.Fatal("missing chart data accepted")
	}

	r = validReport()
	r.ChartRows[0].Category = ""
	if err := r.Validate(); err == nil {
		t.Fatal("unnamed chart row accepted")
	}

	// Empty (but present) collections are fine.
	r = validReport()
	r.LegalReferences = []string{}
	r.ChartRows = []CategoryComparison{}
	if err := r.Validate(); err != nil {
		t.Fatalf("empty collections rejected: %v", err)
	}

	var nilReport *AnalysisReport
	if err := nilReport.Validate(); err == nil {
		t.Fatal("nil report accepted")
	}
}

func TestReportJSONFieldNames(t *testing.T) {
	data, err := json.Marshal(validReport())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{"summary", "standardOfLivingAssessment", "californiaCodeReferences", "chartData"} {
		if _, ok := m[key]; !ok {
			t.Fatalf("missing wire field %q in %s", key, data)
		}
	}
	if _, ok := m["lifestyleMetaphorPrompt"]; ok {
		t.Fatal("empty visual prompt serialized")
	}
}

func TestDiscrepancyTotal(t *testing.T) {
	rows := []CategoryComparison{
		{Category: "Housing", Discrepancy: 100},
		{Category: "Travel", Discrepancy: 1500},
		{Category: "Dining", Discrepancy: -50},
	}
	if got := DiscrepancyTotal(rows); got != 1550 {
		t.Fatalf("DiscrepancyTotal() = %v, want 1550", got)
	}
	if got := DiscrepancyTotal(nil); got != 0 {
		t.Fatalf("DiscrepancyTotal(nil) = %v, want 0", got)
	}
}
