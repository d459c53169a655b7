// Package types defines the data model shared by the analysis, chat and live
// consultation components.
package types

import (
	"fmt"
	"strings"
)

// Role identifies the author of a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ChatMessage is one entry in an append-only conversation history.
type ChatMessage struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// Attachment is an uploaded case document held in memory for one analysis.
type Attachment struct {
	MIMEType string `json:"mimeType"`
	Data     []byte `json:"data"`
	Name     string `json:"name,omitempty"`
}

// CategoryComparison is one chart row comparing spending between parties.
//
// Discrepancy is supplied by the analyst model and is not recomputed from the
// amounts; it may legitimately differ from PartyAAmount-PartyBAmount when the
// model adjusts for context noted in Notes.
type CategoryComparison struct {
	Category     string  `json:"category"`
	PartyAAmount float64 `json:"partyAAmount"`
	PartyBAmount float64 `json:"partyBAmount"`
	Discrepancy  float64 `json:"discrepancy"`
	Notes        string  `json:"notes"`
}

// AnalysisReport is the structured result of one document analysis request.
// Immutable after creation.
type AnalysisReport struct {
	Summary                    string               `json:"summary"`
	StandardOfLivingAssessment string               `json:"standardOfLivingAssessment"`
	LegalReferences            []string             `json:"californiaCodeReferences"`
	ChartRows                  []CategoryComparison `json:"chartData"`
	VisualPrompt               string               `json:"lifestyleMetaphorPrompt,omitempty"`
}

// Validate reports whether the report carries every required field.
// VisualPrompt is optional; everything else must be present.
func (r *AnalysisReport) Validate() error {
	if r == nil {
		return fmt.Errorf("report is nil")
	}
	if strings.TrimSpace(r.Summary) == "" {
		return fmt.Errorf("missing summary")
	}
	if strings.TrimSpace(r.StandardOfLivingAssessment) == "" {
		return fmt.Errorf("missing standardOfLivingAssessment")
	}
	if r.LegalReferences == nil {
		return fmt.Errorf("missing californiaCodeReferences")
	}
	if r.ChartRows == nil {
		return fmt.Errorf("missing chartData")
	}
	for i, row := range r.ChartRows {
		if strings.TrimSpace(row.Category) == "" {
			return fmt.Errorf("chartData[%d]: missing category", i)
		}
	}
	return nil
}

// DiscrepancyTotal sums the caller-supplied discrepancy across chart rows.
// This is the figure the UI surfaces; it deliberately trusts the per-row value.
func DiscrepancyTotal(rows []CategoryComparison) float64 {
	var total float64
	for _, row := range rows {
		total += row.Discrepancy
	}
	return total
}
