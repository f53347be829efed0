package domain

import "time"

// InstallPhase is a state of the artifact installer state machine.
type InstallPhase string

const (
	PhaseIdle       InstallPhase = "idle"
	PhasePreparing  InstallPhase = "preparing"
	PhaseRetrieving InstallPhase = "retrieving"
	PhaseVerifying  InstallPhase = "verifying"
	PhaseFinalizing InstallPhase = "finalizing"
	PhaseRemoving   InstallPhase = "removing"

	// Terminal phases
	PhaseInstalled            InstallPhase = "installed"
	PhaseInstalledUnprotected InstallPhase = "installed_unprotected"
	PhaseFailed               InstallPhase = "failed"
	PhaseInvalidKey           InstallPhase = "invalid_key"
	PhaseRemoved              InstallPhase = "removed"
	PhaseNotFound             InstallPhase = "not_found"
)

// IsTerminal reports whether no further transitions follow this phase.
func (p InstallPhase) IsTerminal() bool {
	switch p {
	case PhaseInstalled, PhaseInstalledUnprotected, PhaseFailed,
		PhaseInvalidKey, PhaseRemoved, PhaseNotFound:
		return true
	}
	return false
}

// SessionKind distinguishes install sessions from uninstall sessions.
type SessionKind string

const (
	SessionInstall   SessionKind = "install"
	SessionUninstall SessionKind = "uninstall"
)

// SessionEvent is emitted by the session coordinator for every progress step
// and exactly once with Terminal set when a session ends.
type SessionEvent struct {
	SessionID string       `json:"session_id"`
	Kind      SessionKind  `json:"kind"`
	Email     string       `json:"email,omitempty"`
	Target    string       `json:"target"`
	Phase     InstallPhase `json:"phase"`
	Progress  int          `json:"progress"` // 0-100
	Status    string       `json:"status"`
	Path      string       `json:"path,omitempty"`
	Error     string       `json:"error,omitempty"`
	Terminal  bool         `json:"terminal"`
	Timestamp time.Time    `json:"timestamp"`
}

// SessionSnapshot describes an in-flight session.
type SessionSnapshot struct {
	SessionID string       `json:"session_id"`
	Kind      SessionKind  `json:"kind"`
	Email     string       `json:"email"`
	Target    string       `json:"target"`
	Phase     InstallPhase `json:"phase"`
	Progress  int          `json:"progress"`
	Status    string       `json:"status"`
	StartedAt time.Time    `json:"started_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}
