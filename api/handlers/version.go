package handlers

import (
	"encoding/json"
	"net/http"
)

// VersionResponse contains the API build info.
type VersionResponse struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
}

var buildInfo = VersionResponse{Version: "dev", Commit: "none", Date: "unknown"}

// SetVersion records the build info reported by GetVersion. Called once at
// startup with the ldflags values.
func SetVersion(version, commit, date string) {
	buildInfo = VersionResponse{Version: version, Commit: commit, Date: date}
}

// GetVersion returns the running API build version.
func GetVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(buildInfo)
}
