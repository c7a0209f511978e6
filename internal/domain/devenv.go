package domain

import "time"

// EnvType classifies a DevEnv.
type EnvType string

const (
	EnvTypeDev   EnvType = "dev"
	EnvTypeStage EnvType = "stage"
)

// DevEnv represents a development or staging environment slot.
type DevEnv struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Owner     string     `json:"owner"`
	Group     string     `json:"group"`
	Duration  int32      `json:"duration"`
	EnvType   EnvType    `json:"env_type"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// DevEnvPatch carries a sparse update. Nil fields are left untouched.
type DevEnvPatch struct {
	Name     *string
	Owner    *string
	Group    *string
	Duration *int32
	EnvType  *EnvType
}

// Empty reports whether the patch names no fields.
func (p DevEnvPatch) Empty() bool {
	return p.Name == nil && p.Owner == nil && p.Group == nil && p.Duration == nil && p.EnvType == nil
}
