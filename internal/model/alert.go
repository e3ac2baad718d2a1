package model

// AlertKind enumerates the modal alerts the UI arbiter can stack.
// Priority order (highest first) is fixed by alertPriority below; it is
// deliberately separate from declaration order so the list can grow
// without reshuffling meaning.
type AlertKind int

const (
	AlertSetup AlertKind = iota
	AlertRebootConfirm
	AlertUpdateInstallation
	AlertUpdateAvailable
	AlertHelp
	AlertLocator
	AlertScreenSaver
)

var alertNames = [...]string{
	"Setup", "RebootConfirm", "UpdateInstallation", "UpdateAvailable",
	"Help", "Locator", "ScreenSaver",
}

func (a AlertKind) String() string {
	if int(a) < 0 || int(a) >= len(alertNames) {
		return "Unknown"
	}
	return alertNames[a]
}

// Screen maps an AlertKind to the modal Screen that renders it.
func (a AlertKind) Screen() Screen {
	switch a {
	case AlertSetup:
		return ScreenSetup
	case AlertRebootConfirm:
		return ScreenRebootConfirm
	case AlertUpdateInstallation:
		return ScreenUpdateInstallation
	case AlertUpdateAvailable:
		return ScreenUpdateAvailable
	case AlertHelp:
		return ScreenHelp
	case AlertLocator:
		return ScreenLocator
	default:
		return ScreenSaver
	}
}

// alertPriority ranks alerts from highest to lowest; index 0 wins ties.
var alertPriority = []AlertKind{
	AlertRebootConfirm,
	AlertUpdateInstallation,
	AlertSetup,
	AlertUpdateAvailable,
	AlertLocator,
	AlertHelp,
	AlertScreenSaver,
}

func priorityRank(a AlertKind) int {
	for i, k := range alertPriority {
		if k == a {
			return i
		}
	}
	return len(alertPriority)
}

// HighestPriority returns the highest-priority alert among pending, and
// true if pending is non-empty.
func HighestPriority(pending []AlertKind) (AlertKind, bool) {
	if len(pending) == 0 {
		return 0, false
	}
	best := pending[0]
	bestRank := priorityRank(best)
	for _, a := range pending[1:] {
		if r := priorityRank(a); r < bestRank {
			best = a
			bestRank = r
		}
	}
	return best, true
}
