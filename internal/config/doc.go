// Package config provides configuration loading for the mod installer and
// its local agent.
//
// # Configuration Sources
//
// Configuration is assembled in order of increasing precedence:
//
//	1. Default values (Default)
//	2. A YAML file named by MODS_CONFIG_FILE, or config.yaml next to the
//	   executable or in the working directory
//	3. Environment variables with the MODS_ prefix
//
// # Environment Variables
//
// Variables follow the section layout of Config:
//
//	MODS_STORE_DRIVER=sheets
//	MODS_STORE_SHEET_ID=1AbC...
//	MODS_INSTALL_INSTALL_ROOT=/home/me/Documents/Euro Truck Simulator 2/mod
//	MODS_INSTALL_MIN_ARTIFACT_SIZE=500000
//	MODS_AUTH_TOKEN_SECRET=change-me
//
// # Usage
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
package config
