package normalize

import (
	"strings"

	"github.com/bookleaf/tracker/internal/models"
)

var (
	trackerEmailCols   = []string{"Email ID", "Email", "email id", "E-mail"}
	trackerNameCols    = []string{"Name", "Author", "Author Name"}
	trackerRemarksCols = []string{"Remarks", "Remark"}
	trackerStatusCols  = []string{"Status"}

	trackerStageCols = map[string][]string{
		models.StageIntroEmail:        {"Intro Email"},
		models.StageAuthorResponse:    {"Author Response"},
		models.StageFollowUp:          {"Follow-up Mail", "Follow-up", "Follow up Mail"},
		models.StageMarkedYes:         {`Marked "yes" for 5`, "Marked Yes", "Marked yes for 5"},
		models.StageFilesGenerated:    {"Files Generated"},
		models.StageAddressMarketing:  {"Address and Marketing", "Address & Marketing", "Addr & Mktg"},
		models.StagePrimePlacement:    {"Prime Placement"},
		models.StageConfirmationEmail: {"Confirmation Email"},
	}
)

// Truthy is the tracker sheet's boolean coercion.
func Truthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "yes", "done", "true", "✓", "✔":
		return true
	}
	return false
}

// ParseTrackerStatus maps a free-form status cell. ok is false for an empty cell.
func ParseTrackerStatus(v string) (models.Status, bool) {
	s := strings.ToLower(strings.TrimSpace(v))
	if s == "" {
		return "", false
	}
	if Truthy(s) || strings.Contains(s, "good") {
		return models.StatusGoodToGo, true
	}
	switch strings.ReplaceAll(s, " ", "-") {
	case "completed", "complete":
		return models.StatusCompleted, true
	case "in-progress", "inprogress", "wip":
		return models.StatusInProgress, true
	}
	return models.StatusAssigned, true
}

// TrackerToOverride converts one tracker sheet row into an override patch for
// the given consultant. Rows without an email are ErrMalformedRow.
func TrackerToOverride(row Row, consultant string) (string, models.OverridePatch, error) {
	email := NormalizeEmail(row.Get(trackerEmailCols...))
	if email == "" {
		return "", models.OverridePatch{}, ErrMalformedRow
	}

	patch := models.OverridePatch{Stages: models.StagePatch{}}
	if c := strings.TrimSpace(consultant); c != "" {
		patch.Consultant = &c
	}
	if name := row.Get(trackerNameCols...); name != "" {
		patch.Name = &name
	}
	if row.Has(trackerRemarksCols...) {
		remarks := row.Get(trackerRemarksCols...)
		patch.Remarks = &remarks
	}
	if st, ok := ParseTrackerStatus(row.Get(trackerStatusCols...)); ok {
		patch.Status = &st
	}
	for stage, cols := range trackerStageCols {
		patch.Stages[stage] = Truthy(row.Get(cols...))
	}
	return email, patch, nil
}
