// Package v1 defines the public data types shared across all agentdeck layers.
package v1

import (
	"encoding/json"
	"time"
)

// ─────────────────────────────────────────────────────────────────────────────
// Enumerations
// ─────────────────────────────────────────────────────────────────────────────

// Mode is the deployment topology chosen during onboarding.
type Mode string

const (
	ModeUnset      Mode = ""
	ModeCloud      Mode = "cloud"
	ModeStandalone Mode = "standalone"
)

// ParseMode maps user input to a Mode. Unknown values yield ModeUnset.
func ParseMode(s string) Mode {
	switch Mode(s) {
	case ModeCloud:
		return ModeCloud
	case ModeStandalone:
		return ModeStandalone
	default:
		return ModeUnset
	}
}

// Phase is the controller's configuration state.
type Phase string

const (
	PhaseUnconfigured Phase = "unconfigured"
	PhaseConfigured   Phase = "configured"
)

// UIMode routes the view layer to a screen.
type UIMode string

const (
	UIOnboarding UIMode = "onboarding"
	UIDashboard  UIMode = "dashboard"
	UISettings   UIMode = "settings"
)

// Tunnel providers understood by the agent.
const (
	ProviderCloudflare = "cloudflare"
	ProviderPangolin   = "pangolin"
)

// Standalone port defaults.
const (
	DefaultAPIPort  = 8080
	DefaultMeshPort = 8081
)

// ─────────────────────────────────────────────────────────────────────────────
// Deployment configuration (persisted)
// ─────────────────────────────────────────────────────────────────────────────

// DeploymentConfig is the user's persisted deployment choice.
type DeploymentConfig struct {
	Mode       Mode   `json:"mode"               yaml:"mode"`
	Credential string `json:"token,omitempty"    yaml:"token,omitempty"`
	NodeID     string `json:"nodeId,omitempty"   yaml:"nodeId,omitempty"`
	APIPort    int    `json:"apiPort,omitempty"  yaml:"apiPort,omitempty"`
	MeshPort   int    `json:"meshPort,omitempty" yaml:"meshPort,omitempty"`
}

// UnmarshalJSON accepts the onboarding key "workerId" as an alias for "nodeId".
func (c *DeploymentConfig) UnmarshalJSON(data []byte) error {
	type plain DeploymentConfig
	var raw struct {
		plain
		WorkerID string `json:"workerId,omitempty"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*c = DeploymentConfig(raw.plain)
	if c.NodeID == "" {
		c.NodeID = raw.WorkerID
	}
	return nil
}

// Configured reports whether onboarding has produced a terminal mode.
func (c DeploymentConfig) Configured() bool {
	return c.Mode == ModeCloud || c.Mode == ModeStandalone
}

// HasUsableCredential reports whether a tunnel start can be attempted.
// Standalone needs no credential; Cloud needs both credential and node ID.
func (c DeploymentConfig) HasUsableCredential() bool {
	switch c.Mode {
	case ModeStandalone:
		return true
	case ModeCloud:
		return c.Credential != "" && c.NodeID != ""
	default:
		return false
	}
}

// Normalize drops fields that are meaningless for the mode and fills port defaults.
func (c DeploymentConfig) Normalize() DeploymentConfig {
	switch c.Mode {
	case ModeStandalone:
		c.Credential = ""
		c.NodeID = ""
		if c.APIPort == 0 {
			c.APIPort = DefaultAPIPort
		}
		if c.MeshPort == 0 {
			c.MeshPort = DefaultMeshPort
		}
	case ModeCloud:
		c.APIPort = 0
		c.MeshPort = 0
	}
	return c
}

// EffectiveMeshPort returns the mesh port with the default applied.
func (c DeploymentConfig) EffectiveMeshPort() int {
	if c.MeshPort == 0 {
		return DefaultMeshPort
	}
	return c.MeshPort
}

// ─────────────────────────────────────────────────────────────────────────────
// Telemetry
// ─────────────────────────────────────────────────────────────────────────────

// SystemStats is a point-in-time resource snapshot reported by the agent.
type SystemStats struct {
	CPUUsagePercent   float64        `json:"cpu_usage"`
	MemoryUsedBytes   uint64         `json:"memory_used"`
	MemoryTotalBytes  uint64         `json:"memory_total"`
	MemoryUsedPercent float64        `json:"memory_percent"`
	DiskUsedBytes     uint64         `json:"disk_used"`
	DiskTotalBytes    uint64         `json:"disk_total"`
	DiskUsedPercent   float64        `json:"disk_percent"`
	Managed           *ManagedCounts `json:"managed,omitempty"`
}

// ManagedCounts holds Cloud-mode resource counts by status.
type ManagedCounts struct {
	Apps     StatusCounts `json:"apps"`
	Services StatusCounts `json:"services"`
	Addons   AddonCounts  `json:"addons"`
}

// StatusCounts groups managed resources by run status.
type StatusCounts struct {
	Active  int `json:"active"`
	Stopped int `json:"stopped"`
	Crashed int `json:"crashed"`
}

// AddonCounts groups addons by installation state.
type AddonCounts struct {
	Enabled   int `json:"enabled"`
	Installed int `json:"installed"`
}

// Normalize recomputes percentages from used/total so they are always consistent.
func (s SystemStats) Normalize() SystemStats {
	s.CPUUsagePercent = clampPercent(s.CPUUsagePercent)
	s.MemoryUsedPercent = Percent(s.MemoryUsedBytes, s.MemoryTotalBytes)
	s.DiskUsedPercent = Percent(s.DiskUsedBytes, s.DiskTotalBytes)
	return s
}

// Percent returns used/total×100 clamped to [0,100]; total=0 yields 0.
func Percent(used, total uint64) float64 {
	if total == 0 {
		return 0
	}
	return clampPercent(float64(used) / float64(total) * 100)
}

func clampPercent(p float64) float64 {
	switch {
	case p != p: // NaN
		return 0
	case p < 0:
		return 0
	case p > 100:
		return 100
	}
	return p
}

// ─────────────────────────────────────────────────────────────────────────────
// Session state (in-memory only)
// ─────────────────────────────────────────────────────────────────────────────

// SessionState is the snapshot the controller publishes to the view layer.
type SessionState struct {
	SessionID      string            `json:"session_id"`
	Phase          Phase             `json:"phase"`
	UIMode         UIMode            `json:"ui_mode"`
	AgentOnline    bool              `json:"agent_online"`
	LastError      string            `json:"last_error,omitempty"`
	TunnelActive   bool              `json:"tunnel_active"`
	TunnelError    string            `json:"tunnel_error,omitempty"`
	Stats          *SystemStats      `json:"stats,omitempty"`
	StatsUpdatedAt time.Time         `json:"stats_updated_at"`
	LastPollAt     time.Time         `json:"last_poll_at"`
	Config         DeploymentConfig  `json:"config"`
	Draft          *DeploymentConfig `json:"draft,omitempty"`
	FieldErrors    map[string]string `json:"field_errors,omitempty"`
}

// Clone returns a deep copy safe to hand to other goroutines.
func (s SessionState) Clone() SessionState {
	out := s
	if s.Stats != nil {
		st := *s.Stats
		if s.Stats.Managed != nil {
			m := *s.Stats.Managed
			st.Managed = &m
		}
		out.Stats = &st
	}
	if s.Draft != nil {
		d := *s.Draft
		out.Draft = &d
	}
	if s.FieldErrors != nil {
		out.FieldErrors = make(map[string]string, len(s.FieldErrors))
		for k, v := range s.FieldErrors {
			out.FieldErrors[k] = v
		}
	}
	return out
}

// ─────────────────────────────────────────────────────────────────────────────
// Tunnel history (persisted in BoltDB)
// ─────────────────────────────────────────────────────────────────────────────

// TunnelEvent is an immutable record of a tunnel start/stop attempt.
type TunnelEvent struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Action    string    `json:"action"` // start | stop
	Provider  string    `json:"provider,omitempty"`
	Mode      Mode      `json:"mode"`
	Result    string    `json:"result"` // success | failure
	Error     string    `json:"error,omitempty"`
	At        time.Time `json:"at"`
}
