package service

import (
	"sort"

	"golang.org/x/text/cases"

	"github.com/noah-isme/program-enrollment-api/internal/models"
)

// SyncStateReader answers point-in-time download questions for a program.
type SyncStateReader interface {
	IsDownloading(programUID string) bool
	IsDownloaded(programUID string) bool
}

// ResolveDownloadState applies DOWNLOADING > DOWNLOADED > carried ERROR > NONE.
func ResolveDownloadState(entry models.ProgramCatalogEntry, sync SyncStateReader) models.DownloadState {
	switch {
	case sync != nil && sync.IsDownloading(entry.UID):
		return models.DownloadStateDownloading
	case sync != nil && sync.IsDownloaded(entry.UID):
		return models.DownloadStateDownloaded
	case entry.DownloadState == models.DownloadStateError:
		return models.DownloadStateError
	default:
		return models.DownloadStateNone
	}
}

// MergeCatalog annotates raw entries with sync state, drops programs the person may enroll
// into only once and already has, then sorts by title. The input slice is not modified.
func MergeCatalog(raw []models.ProgramCatalogEntry, sync SyncStateReader, alreadyEnrolled []models.Program) []models.ProgramCatalogEntry {
	onceOnly := make(map[string]bool, len(alreadyEnrolled))
	for _, program := range alreadyEnrolled {
		// the last record for a uid wins
		onceOnly[program.UID] = program.OnlyEnrollOnce
	}

	merged := make([]models.ProgramCatalogEntry, 0, len(raw))
	for _, entry := range raw {
		annotated := entry
		annotated.DownloadState = ResolveDownloadState(entry, sync)
		if once, enrolled := onceOnly[entry.UID]; enrolled && once {
			continue
		}
		merged = append(merged, annotated)
	}

	sortByFoldedLabel(merged, func(e models.ProgramCatalogEntry) string { return e.Title })
	return merged
}

// SortEnrollmentSummaries orders summaries by program name, case-insensitively and stably.
func SortEnrollmentSummaries(summaries []models.EnrollmentSummary) []models.EnrollmentSummary {
	sorted := make([]models.EnrollmentSummary, len(summaries))
	copy(sorted, summaries)
	sortByFoldedLabel(sorted, func(s models.EnrollmentSummary) string { return s.ProgramName })
	return sorted
}

// RetainPrograms keeps, in order, the entries whose uid is in allowed.
func RetainPrograms(entries []models.ProgramCatalogEntry, allowed []string) []models.ProgramCatalogEntry {
	keep := make(map[string]struct{}, len(allowed))
	for _, uid := range allowed {
		keep[uid] = struct{}{}
	}
	retained := make([]models.ProgramCatalogEntry, 0, len(entries))
	for _, entry := range entries {
		if _, ok := keep[entry.UID]; ok {
			retained = append(retained, entry)
		}
	}
	return retained
}

type foldedItem[T any] struct {
	key  string
	item T
}

func sortByFoldedLabel[T any](items []T, label func(T) string) {
	caser := cases.Fold()
	keyed := make([]foldedItem[T], len(items))
	for i, item := range items {
		keyed[i] = foldedItem[T]{key: caser.String(label(item)), item: item}
	}
	sort.SliceStable(keyed, func(i, j int) bool { return keyed[i].key < keyed[j].key })
	for i := range keyed {
		items[i] = keyed[i].item
	}
}
