// Package version reads the build's version.json so the bbbrecorder usage
// banner reports a real version string instead of a hardcoded literal.
package version

import (
	"encoding/json"
	"log"
	"os"
)

type Info struct {
	Version string `json:"version"`
}

func Load() Info {
	data, err := os.ReadFile("version.json")
	if err != nil {
		log.Printf("version: could not read version.json, using dev version: %v", err)
		return Info{Version: "dev"}
	}
	var info Info
	if err := json.Unmarshal(data, &info); err != nil {
		log.Printf("version: could not parse version.json, using dev version: %v", err)
		return Info{Version: "dev"}
	}
	return info
}
