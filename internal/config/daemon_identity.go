package config

import (
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	// DaemonConfFileName is the name of the daemon identity file.
	DaemonConfFileName = "daemon.conf"

	// DaemonNameLength is the length of the generated daemon name.
	DaemonNameLength = 6
)

// DaemonIdentity represents the daemon's unique identity.
//
// The identity is persisted in daemon.conf so that containers created by
// this daemon can be distinguished from those of other daemons sharing the
// same Docker host. The name ends up in the mula.server_name container
// label and is matched when existing containers are re-adopted on startup.
type DaemonIdentity struct {
	// Name is the unique identifier for this daemon instance.
	// Generated randomly on first start if not present.
	Name string `json:"name"`

	// CreatedAt records when the identity was first generated (RFC3339).
	CreatedAt string `json:"created_at"`
}

// GenerateDaemonName generates a random 6-character daemon name
// consisting of uppercase, lowercase letters and numbers.
func GenerateDaemonName() string {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, DaemonNameLength)
	rand.Read(b)

	for i := range b {
		b[i] = charset[int(b[i])%len(charset)]
	}

	return string(b)
}

// GetOrCreateDaemonIdentity retrieves the daemon identity from daemon.conf
// or creates a new one if it doesn't exist.
//
// Returns the daemon identity or an error if reading/writing fails.
func (c *Config) GetOrCreateDaemonIdentity() (*DaemonIdentity, error) {
	confPath := filepath.Join(c.Storage.DataDir, DaemonConfFileName)

	if _, err := os.Stat(confPath); err == nil {
		return c.readDaemonIdentity(confPath)
	}

	identity := &DaemonIdentity{
		Name:      GenerateDaemonName(),
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	}

	if err := c.writeDaemonIdentity(confPath, identity); err != nil {
		return nil, fmt.Errorf("failed to write daemon identity: %w", err)
	}

	return identity, nil
}

// readDaemonIdentity reads the daemon identity from a key=value file.
func (c *Config) readDaemonIdentity(path string) (*DaemonIdentity, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read daemon.conf: %w", err)
	}

	identity := &DaemonIdentity{}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		switch key {
		case "name":
			identity.Name = value
		case "created_at":
			identity.CreatedAt = value
		}
	}

	if identity.Name == "" {
		return nil, fmt.Errorf("daemon.conf does not contain 'name' field")
	}

	return identity, nil
}

// writeDaemonIdentity writes the daemon identity in key=value format.
func (c *Config) writeDaemonIdentity(path string, identity *DaemonIdentity) error {
	content := fmt.Sprintf(`# Mula Daemon Configuration
# Do not modify this file unless you know what you are doing

# Daemon instance unique identifier (used in container labels)
name=%s

# Identity creation timestamp
created_at=%s
`, identity.Name, identity.CreatedAt)

	return os.WriteFile(path, []byte(content), 0644)
}

// LoadDaemonIdentity loads the daemon name into the server configuration,
// generating an identity first if necessary.
func (c *Config) LoadDaemonIdentity() error {
	identity, err := c.GetOrCreateDaemonIdentity()
	if err != nil {
		return err
	}

	c.Server.Name = identity.Name
	return nil
}
