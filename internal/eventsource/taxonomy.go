package eventsource

import (
	"fmt"

	"github.com/goodtune/screentime/internal/storage"
	"github.com/goodtune/screentime/internal/usage"
)

// RawType is a platform usage event type code.
type RawType int

// Platform event codes. Only the foreground transitions reach the fold; the
// rest are recorded by the platform agent and dropped here.
const (
	TypeActivityResumed        RawType = 1
	TypeActivityPaused         RawType = 2
	TypeConfigurationChange    RawType = 5
	TypeUserInteraction        RawType = 7
	TypeShortcutInvocation     RawType = 8
	TypeScreenInteractive      RawType = 15
	TypeScreenNonInteractive   RawType = 16
	TypeKeyguardShown          RawType = 17
	TypeKeyguardHidden         RawType = 18
	TypeForegroundServiceStart RawType = 19
	TypeForegroundServiceStop  RawType = 20
	TypeActivityStopped        RawType = 23
	TypeDeviceShutdown         RawType = 26
	TypeDeviceStartup          RawType = 27
)

var typeNames = map[RawType]string{
	TypeActivityResumed:        "ACTIVITY_RESUMED",
	TypeActivityPaused:         "ACTIVITY_PAUSED",
	TypeConfigurationChange:    "CONFIGURATION_CHANGE",
	TypeUserInteraction:        "USER_INTERACTION",
	TypeShortcutInvocation:     "SHORTCUT_INVOCATION",
	TypeScreenInteractive:      "SCREEN_INTERACTIVE",
	TypeScreenNonInteractive:   "SCREEN_NON_INTERACTIVE",
	TypeKeyguardShown:          "KEYGUARD_SHOWN",
	TypeKeyguardHidden:         "KEYGUARD_HIDDEN",
	TypeForegroundServiceStart: "FOREGROUND_SERVICE_START",
	TypeForegroundServiceStop:  "FOREGROUND_SERVICE_STOP",
	TypeActivityStopped:        "ACTIVITY_STOPPED",
	TypeDeviceShutdown:         "DEVICE_SHUTDOWN",
	TypeDeviceStartup:          "DEVICE_STARTUP",
}

// String returns the platform name of the type.
func (t RawType) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN(%d)", int(t))
}

// ParseRawType accepts a platform type name.
func ParseRawType(name string) (RawType, bool) {
	for t, n := range typeNames {
		if n == name {
			return t, true
		}
	}
	return 0, false
}

// Translate narrows a platform event to a foreground transition. A stopped
// activity counts as leaving the foreground. Every other kind is dropped.
func Translate(raw storage.RawEvent) (usage.UsageEvent, bool) {
	if raw.AppKey == "" {
		return usage.UsageEvent{}, false
	}
	switch RawType(raw.Type) {
	case TypeActivityResumed:
		return usage.Resumed(raw.AppKey, raw.Timestamp), true
	case TypeActivityPaused, TypeActivityStopped:
		return usage.Paused(raw.AppKey, raw.Timestamp), true
	default:
		return usage.UsageEvent{}, false
	}
}

// TranslateAll translates a batch, preserving order.
func TranslateAll(raw []storage.RawEvent) []usage.UsageEvent {
	events := make([]usage.UsageEvent, 0, len(raw))
	for _, r := range raw {
		if event, ok := Translate(r); ok {
			events = append(events, event)
		}
	}
	return events
}
