package session

import (
	"strings"

	v1 "github.com/f9-o/agentdeck/api/v1"
	"github.com/f9-o/agentdeck/pkg/errs"
	"github.com/f9-o/agentdeck/pkg/netutil"
)

// Validate checks a normalised deployment configuration and returns the
// per-field problems, or nil when it can be persisted.
func Validate(cfg v1.DeploymentConfig) errs.FieldErrors {
	fe := errs.FieldErrors{}

	switch cfg.Mode {
	case v1.ModeCloud:
		if strings.TrimSpace(cfg.Credential) == "" {
			fe[FieldToken] = "is required in cloud mode"
		}
		switch {
		case cfg.NodeID == "":
			fe[FieldNodeID] = "is required in cloud mode"
		case !netutil.IsValidNodeID(cfg.NodeID):
			fe[FieldNodeID] = "may only contain letters, digits, '-' and '_'"
		}
	case v1.ModeStandalone:
		if !netutil.IsValidPort(cfg.APIPort) {
			fe[FieldAPIPort] = "must be a number between 1024 and 65535"
		}
		if !netutil.IsValidPort(cfg.MeshPort) {
			fe[FieldMeshPort] = "must be a number between 1024 and 65535"
		} else if cfg.MeshPort == cfg.APIPort {
			fe[FieldMeshPort] = "must differ from apiPort"
		}
	default:
		fe[FieldMode] = "must be cloud or standalone"
	}

	if len(fe) == 0 {
		return nil
	}
	return fe
}
