package policy

// ScanType is the closed set of scan action types. Unrecognized strings map
// to ScanUnknown; the raw value stays on the Action for diagnostics.
type ScanType int

const (
	ScanUnknown ScanType = iota
	ScanSast
	ScanSastIAC
	ScanSecretDetection
	ScanContainerScanning
	ScanDependencyScanning
	ScanDAST
	ScanCustom
)

// ParseScanType maps the wire value of an action's scan field.
func ParseScanType(raw string) ScanType {
	switch raw {
	case "sast":
		return ScanSast
	case "sast_iac":
		return ScanSastIAC
	case "secret_detection":
		return ScanSecretDetection
	case "container_scanning":
		return ScanContainerScanning
	case "dependency_scanning":
		return ScanDependencyScanning
	case "dast":
		return ScanDAST
	case "custom":
		return ScanCustom
	}
	return ScanUnknown
}

func (t ScanType) String() string {
	switch t {
	case ScanSast:
		return "sast"
	case ScanSastIAC:
		return "sast_iac"
	case ScanSecretDetection:
		return "secret_detection"
	case ScanContainerScanning:
		return "container_scanning"
	case ScanDependencyScanning:
		return "dependency_scanning"
	case ScanDAST:
		return "dast"
	case ScanCustom:
		return "custom"
	case ScanUnknown:
		return "unknown"
	}
	return "unknown"
}

// Templated reports whether the scan expands from an embedded job template.
func (t ScanType) Templated() bool {
	switch t {
	case ScanSast, ScanSastIAC, ScanSecretDetection, ScanContainerScanning, ScanDependencyScanning:
		return true
	case ScanDAST, ScanCustom, ScanUnknown:
		return false
	}
	return false
}

// OnDemand reports whether the scan runs outside the normal pipeline flow
// and is configured through the on-demand path.
func (t ScanType) OnDemand() bool {
	return t == ScanDAST
}
