package models

// DownloadState describes whether a program's supporting data is present on this node.
type DownloadState string

// Possible download states.
const (
	DownloadStateNone        DownloadState = "NONE"
	DownloadStateDownloading DownloadState = "DOWNLOADING"
	DownloadStateDownloaded  DownloadState = "DOWNLOADED"
	DownloadStateError       DownloadState = "ERROR"
)

// Program is read-only reference data for a health-tracking workflow.
type Program struct {
	UID                       string `db:"uid" json:"uid"`
	Name                      string `db:"name" json:"name"`
	EnrollmentDateLabel       string `db:"enrollment_date_label" json:"enrollment_date_label"`
	AllowFutureEnrollmentDate bool   `db:"allow_future_enrollment_date" json:"allow_future_enrollment_date"`
	OnlyEnrollOnce            bool   `db:"only_enroll_once" json:"only_enroll_once"`
	Color                     string `db:"color" json:"color,omitempty"`
}

// ProgramCatalogEntry is one offerable program as shown to the person.
type ProgramCatalogEntry struct {
	UID           string        `db:"uid" json:"uid"`
	Title         string        `db:"title" json:"title"`
	DownloadState DownloadState `db:"download_state" json:"download_state"`
}

// SyncStateSnapshot is a point-in-time copy of the download subsystem's state.
type SyncStateSnapshot struct {
	Downloading map[string]struct{}
	Downloaded  map[string]struct{}
}

// NewSyncStateSnapshot builds a snapshot from uid lists.
func NewSyncStateSnapshot(downloading, downloaded []string) SyncStateSnapshot {
	snap := SyncStateSnapshot{
		Downloading: make(map[string]struct{}, len(downloading)),
		Downloaded:  make(map[string]struct{}, len(downloaded)),
	}
	for _, uid := range downloading {
		snap.Downloading[uid] = struct{}{}
	}
	for _, uid := range downloaded {
		snap.Downloaded[uid] = struct{}{}
	}
	return snap
}

// IsDownloading reports an in-flight download for the program.
func (s SyncStateSnapshot) IsDownloading(programUID string) bool {
	_, ok := s.Downloading[programUID]
	return ok
}

// IsDownloaded reports a completed download for the program.
func (s SyncStateSnapshot) IsDownloaded(programUID string) bool {
	_, ok := s.Downloaded[programUID]
	return ok
}
