package server

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/thrive-mt/imageapi/pkg/logging"
)

const (
	instanceIDFile = "instance-id"
)

// GetOrCreateInstanceID retrieves or creates a unique instance ID for this API.
// The ID is stored in stateDir to persist across restarts.
func GetOrCreateInstanceID(stateDir string) (string, error) {
	path := filepath.Join(stateDir, instanceIDFile)

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if id, perr := uuid.Parse(strings.TrimSpace(string(data))); perr == nil {
			logging.Logger.Info("Loaded existing API instance ID", zap.String("id", id.String()))
			return id.String(), nil
		}
		logging.Logger.Warn("Instance ID file is corrupt, generating a new one", zap.String("path", path))
	case !errors.Is(err, fs.ErrNotExist):
		return "", fmt.Errorf("failed to read instance ID: %w", err)
	}

	// Generate new instance ID
	instanceID := uuid.New().String()
	logging.Logger.Info("Generated new API instance ID", zap.String("id", instanceID))

	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create state dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(instanceID+"\n"), 0o644); err != nil {
		return "", fmt.Errorf("failed to save instance ID: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", fmt.Errorf("failed to save instance ID: %w", err)
	}

	logging.Logger.Info("Saved instance ID", zap.String("path", path))

	return instanceID, nil
}
