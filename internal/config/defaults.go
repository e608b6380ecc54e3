package config

const (
	// Filesystem paths, as mounted into the stack-ops container
	DefaultConfigPath    = "/etc/stackops/config.yml"
	DefaultSource        = "/source/"
	DefaultDestination   = "/destination/"
	DefaultLogFile       = "/var/log/backup.log"
	DefaultFstabTemplate = "/source/fstab.example"
	DefaultFstabTarget   = "/host/fstab"

	// Log retention
	DefaultLogMaxLines  = 5000
	DefaultLogTailLines = 200

	// Service defaults
	DefaultBindAddress = "0.0.0.0"
	DefaultPort        = 8000

	// Docker / stacks
	DefaultSelfContainer = "backup"
	DefaultSelfStack     = "stack-ops"
	DefaultSharedNetwork = "traefik-proxy"
	DefaultStackPattern  = "stack-*"
	DefaultComposeFile   = "docker-compose.yml"
	DefaultStackPriority = 99

	// Fstab managed block
	DefaultMarkerStart = "# BEGIN nfs-mounts (managed by backup-ops)"
	DefaultMarkerEnd   = "# END nfs-mounts (managed by backup-ops)"
	DefaultHelperImage = "alpine"
	DefaultMountRoot   = "/mnt"

	// Fstab host execution modes
	HostExecDocker = "docker"
	HostExecLocal  = "local"

	// Auth modes
	AuthModeNone     = "none"
	AuthModePassword = "password"
)

// DefaultExcludes is applied to every transfer, in both directions.
var DefaultExcludes = []string{".git/", "temp/", "downloads/", ".DS_Store", "._*", "@eaDir"}
