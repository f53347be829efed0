package config

import "time"

// Application constants
const (
	// ConfigDirName is the directory created under the user config dir
	ConfigDirName = "ets2-mods"

	// SessionFileName holds the CLI session token inside ConfigDirName
	SessionFileName = "session.jwt"

	// DefaultConfigFile is looked up next to the executable and in the working directory
	DefaultConfigFile = "config.yaml"

	// EnvPrefix namespaces every environment variable
	EnvPrefix = "MODS"
)

// Log formats
const (
	LogFormatJSON = "json"
	LogFormatText = "text"
)

// Record store drivers
const (
	StoreDriverSheets = "sheets"
	StoreDriverXLSX   = "xlsx"
	StoreDriverMemory = "memory"
)

// Remote fetchers
const (
	FetcherHTTP  = "http"
	FetcherDrive = "drive"
)

// Installer defaults
const (
	DefaultArtifactExtension = ".scs"
	DefaultMinArtifactSize   = 500000
	DefaultDownloadTimeout   = 10 * time.Minute
	DefaultDownloadBaseURL   = "https://drive.google.com/uc"
	DefaultProgressInterval  = 250 * time.Millisecond
)

// Sheet defaults. Accounts and catalog share one sheet unless configured otherwise.
const (
	DefaultAccountsSheet = "Sheet1"
	DefaultCatalogSheet  = "Sheet1"
)
