package config

// ExportProfile selects the parameter set used by archive exporters.
// Full writes everything (materials, normals, uv layers, animation),
// Compat drops parameters that older engine importers reject, Minimal
// is the last-resort fallback used after a failed export attempt.
type ExportProfile int

const (
	ProfileAuto ExportProfile = iota
	ProfileFull
	ProfileCompat
	ProfileMinimal
)

var exportProfile ExportProfile

func GetExportProfile() ExportProfile {
	return exportProfile
}

func SetExportProfile(p ExportProfile) {
	exportProfile = p
}
