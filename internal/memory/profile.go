package memory

import (
	"os"
	"strconv"
	"strings"
)

// CollectorFamily classifies how capable the runtime's collector pacing is.
type CollectorFamily int

const (
	// Unknown means the environment could not be classified.
	Unknown CollectorFamily = iota
	// LowPause is a collector that paces itself purely against a memory
	// limit (GOGC=off with GOMEMLIMIT).
	LowPause
	// RegionalGenerational is a limit-aware collector that still runs
	// proportional cycles (GOMEMLIMIT with GOGC enabled).
	RegionalGenerational
	// Standard is the default proportional pacer without a memory limit.
	Standard
)

// String returns the family's canonical name.
func (f CollectorFamily) String() string {
	switch f {
	case LowPause:
		return "low-pause"
	case RegionalGenerational:
		return "regional-generational"
	case Standard:
		return "standard"
	default:
		return "unknown"
	}
}

// ParseFamily converts a hint such as "low-pause" or "regional" into a
// family. The second result is false when the hint is not recognised.
func ParseFamily(s string) (CollectorFamily, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "lowpause", "low-pause", "low_pause":
		return LowPause, true
	case "regional", "regional-generational", "regionalgenerational", "generational":
		return RegionalGenerational, true
	case "standard", "default":
		return Standard, true
	case "unknown":
		return Unknown, true
	default:
		return Unknown, false
	}
}

// FixedCapacityRatio is the committed/ceiling ratio above which the runtime
// is treated as unable to shrink its footprint.
const FixedCapacityRatio = 0.95

// HintEnvVar names the environment variable carrying an explicit collector
// family hint.
const HintEnvVar = "GENPAUSE_GC_FAMILY"

// Profile describes the runtime environment. It is computed once at startup
// and never recomputed during a session.
type Profile struct {
	Family        CollectorFamily
	FixedCapacity bool
}

// String renders the profile for status output.
func (p Profile) String() string {
	capacity := "elastic"
	if p.FixedCapacity {
		capacity = "fixed"
	}
	return p.Family.String() + "/" + capacity
}

// Env holds the launch-time tuning inputs used for detection.
type Env struct {
	GOGC       string
	GOMEMLIMIT string
	// Hint is an explicit family override from a flag, config or HintEnvVar.
	Hint string
}

// EnvFromOS reads detection inputs from the process environment. A non-empty
// hint takes precedence over HintEnvVar.
func EnvFromOS(hint string) Env {
	if hint == "" {
		hint = os.Getenv(HintEnvVar)
	}
	return Env{
		GOGC:       os.Getenv("GOGC"),
		GOMEMLIMIT: os.Getenv("GOMEMLIMIT"),
		Hint:       hint,
	}
}

// DetectFamily classifies the collector from launch-time inputs. Anything it
// cannot parse yields Unknown, which the reclaimer treats like Standard.
func DetectFamily(env Env) CollectorFamily {
	if env.Hint != "" {
		f, _ := ParseFamily(env.Hint)
		return f
	}

	gogc := strings.ToLower(strings.TrimSpace(env.GOGC))
	gcOff := gogc == "off"
	if gogc != "" && !gcOff {
		if _, err := strconv.Atoi(gogc); err != nil {
			return Unknown
		}
	}

	hasLimit := strings.TrimSpace(env.GOMEMLIMIT) != "" && !strings.EqualFold(env.GOMEMLIMIT, "off")
	switch {
	case gcOff && hasLimit:
		return LowPause
	case hasLimit:
		return RegionalGenerational
	default:
		return Standard
	}
}

// DetectFixedCapacity reports whether committed memory is already within
// 5% of the ceiling. An unknown ceiling is treated as elastic.
func DetectFixedCapacity(s Snapshot) bool {
	if s.MaxBytes == 0 {
		return false
	}
	return s.AllocatedRatio() > FixedCapacityRatio
}

// DetectProfile combines family and capacity detection.
func DetectProfile(env Env, s Snapshot) Profile {
	return Profile{
		Family:        DetectFamily(env),
		FixedCapacity: DetectFixedCapacity(s),
	}
}
