// internal/models/system_models.go
package models

// SystemContext is the fingerprint of a target host, used to parameterize
// plan generation. The approval/execution engine itself never consults it.
type SystemContext struct {
	OSName         string   `json:"os_name"`
	OSVersion      string   `json:"os_version"`
	OSFamily       string   `json:"os_family"`
	PackageManager string   `json:"package_manager"`
	ServiceManager string   `json:"service_manager"`
	AvailableTools []string `json:"available_tools"`
}
