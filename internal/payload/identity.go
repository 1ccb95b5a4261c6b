package payload

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	models "github.com/Schera-ole/fleetagent/internal/model"
)

const identityFile = "identity.yaml"

type identityRecord struct {
	InstanceID string `yaml:"instance_id"`
}

// LoadOrCreateIdentity returns the identity stored in dir, generating and
// persisting a new instance id on first start. name and version are not
// persisted; they come from configuration on every start.
func LoadOrCreateIdentity(dir, name, version string) (models.Identity, error) {
	identity := models.Identity{InstanceName: name, AgentVersion: version}
	path := filepath.Join(dir, identityFile)

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		var rec identityRecord
		if err := yaml.Unmarshal(data, &rec); err != nil {
			return models.Identity{}, fmt.Errorf("parse %s: %w", path, err)
		}
		if _, err := uuid.Parse(rec.InstanceID); err != nil {
			return models.Identity{}, fmt.Errorf("invalid instance id in %s: %w", path, err)
		}
		identity.InstanceID = rec.InstanceID
		return identity, nil
	case !errors.Is(err, fs.ErrNotExist):
		return models.Identity{}, fmt.Errorf("read %s: %w", path, err)
	}

	identity.InstanceID = uuid.NewString()
	out, err := yaml.Marshal(identityRecord{InstanceID: identity.InstanceID})
	if err != nil {
		return models.Identity{}, err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return models.Identity{}, fmt.Errorf("create state dir: %w", err)
	}
	// Write then rename so a crash never leaves a truncated file
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, out, 0o600); err != nil {
		return models.Identity{}, fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return models.Identity{}, fmt.Errorf("persist identity: %w", err)
	}
	return identity, nil
}
