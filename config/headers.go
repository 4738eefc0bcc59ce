package config

import (
	"fmt"
	"maps"
	"os"
	"strings"

	"hlsgrab/models"

	"gopkg.in/yaml.v3"
)

var headerProfiles = make(map[string]*models.HeaderProfile)

// LoadHeaderProfiles reads per-host header profiles, keyed by host name:
//
//	cdn.example.com:
//	  referer: https://www.example.com/
//	  headers:
//	    X-Requested-With: XMLHttpRequest
//
// A missing file is not an error.
func LoadHeaderProfiles(path string) error {
	headerProfiles = make(map[string]*models.HeaderProfile)
	if path == "" {
		return nil
	}

	_, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed reading headers file: %w", err)
	}

	var rawProfiles map[string]*models.HeaderProfile

	if err := yaml.Unmarshal(data, &rawProfiles); err != nil {
		return fmt.Errorf("failed parsing headers file: %w", err)
	}
	for host, profile := range rawProfiles {
		if profile == nil {
			continue
		}
		headerProfiles[strings.ToLower(host)] = profile
	}

	return nil
}

// HeaderProfiles returns a copy of the loaded profiles.
func HeaderProfiles() map[string]*models.HeaderProfile {
	return maps.Clone(headerProfiles)
}
