package txserver

// FHIRVersion represents a FHIR specification major release.
type FHIRVersion int

// Supported FHIR versions.
const (
	// R3 is FHIR STU3 (3.0.2)
	R3 FHIRVersion = 3
	// R4 is FHIR Release 4 (4.0.1)
	R4 FHIRVersion = 4
	// R5 is FHIR Release 5 (5.0.0)
	R5 FHIRVersion = 5
	// R6 is FHIR Release 6 (ballot)
	R6 FHIRVersion = 6
)

// String returns the conventional short name ("R4").
func (v FHIRVersion) String() string {
	switch v {
	case R3:
		return "R3"
	case R4:
		return "R4"
	case R5:
		return "R5"
	case R6:
		return "R6"
	default:
		return "R?"
	}
}

// Semver returns the published version string for the release.
func (v FHIRVersion) Semver() string {
	switch v {
	case R3:
		return "3.0.2"
	case R4:
		return "4.0.1"
	case R5:
		return "5.0.0"
	case R6:
		return "6.0.0"
	default:
		return ""
	}
}

// IsValid returns true if this is a supported FHIR version.
func (v FHIRVersion) IsValid() bool {
	switch v {
	case R3, R4, R5, R6:
		return true
	default:
		return false
	}
}

// CorePackage returns the FHIR core package id for the release.
func (v FHIRVersion) CorePackage() string {
	switch v {
	case R3:
		return "hl7.fhir.r3.core"
	case R4:
		return "hl7.fhir.r4.core"
	case R5:
		return "hl7.fhir.r5.core"
	case R6:
		return "hl7.fhir.r6.core"
	default:
		return ""
	}
}

// ParseFHIRVersion maps a mount name or version string to a FHIRVersion.
// Accepts "r4"/"R4" style names and "4.0.1" style semvers.
func ParseFHIRVersion(s string) (FHIRVersion, bool) {
	switch s {
	case "r3", "R3", "3.0", "3.0.1", "3.0.2", "stu3":
		return R3, true
	case "r4", "R4", "4.0", "4.0.0", "4.0.1":
		return R4, true
	case "r5", "R5", "5.0", "5.0.0":
		return R5, true
	case "r6", "R6", "6.0", "6.0.0":
		return R6, true
	default:
		return 0, false
	}
}
