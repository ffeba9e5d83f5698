package acl

import (
	"fmt"
	"time"
)

// ResourceType classifies the resources access control applies to
type ResourceType string

const (
	ResourceAgent     ResourceType = "agent"
	ResourceModel     ResourceType = "model"
	ResourceTool      ResourceType = "tool"
	ResourceDataset   ResourceType = "dataset"
	ResourceFile      ResourceType = "file"
	ResourceWorkspace ResourceType = "workspace"
	ResourceProject   ResourceType = "project"
	ResourceTeam      ResourceType = "team"
	ResourceCustom    ResourceType = "custom"
)

// String returns the resource type name
func (r ResourceType) String() string {
	return string(r)
}

// ParseResourceType converts a resource type name to a ResourceType.
// Callers deserializing external input must go through this; internal
// APIs accept only the typed value.
func ParseResourceType(s string) (ResourceType, error) {
	switch ResourceType(s) {
	case ResourceAgent, ResourceModel, ResourceTool, ResourceDataset,
		ResourceFile, ResourceWorkspace, ResourceProject, ResourceTeam,
		ResourceCustom:
		return ResourceType(s), nil
	}
	return "", fmt.Errorf("unknown resource type %q", s)
}

// AccessLevel is the ranked access enumeration. Comparisons are by
// numeric rank; "has at least level L" means the actual rank is >= L.
type AccessLevel int

const (
	AccessNone  AccessLevel = 0
	AccessRead  AccessLevel = 1
	AccessWrite AccessLevel = 2
	AccessOwner AccessLevel = 3
	AccessAdmin AccessLevel = 4
)

// String returns the access level name
func (l AccessLevel) String() string {
	switch l {
	case AccessNone:
		return "none"
	case AccessRead:
		return "read"
	case AccessWrite:
		return "write"
	case AccessOwner:
		return "owner"
	case AccessAdmin:
		return "admin"
	default:
		return fmt.Sprintf("access_level(%d)", int(l))
	}
}

// ParseAccessLevel validates a persisted numeric access level
func ParseAccessLevel(v int) (AccessLevel, error) {
	if v < int(AccessNone) || v > int(AccessAdmin) {
		return AccessNone, fmt.Errorf("unknown access level %d", v)
	}
	return AccessLevel(v), nil
}

// ParseAccessLevelName converts an access level name, the form external
// requests use
func ParseAccessLevelName(s string) (AccessLevel, error) {
	switch s {
	case "none":
		return AccessNone, nil
	case "read":
		return AccessRead, nil
	case "write":
		return AccessWrite, nil
	case "owner":
		return AccessOwner, nil
	case "admin":
		return AccessAdmin, nil
	}
	return AccessNone, fmt.Errorf("unknown access level %q", s)
}

// Entry is the ACL record for one (resource type, resource id) pair. The
// owner always has an explicit owner-level entry in UserLevels.
type Entry struct {
	EntryID      string
	ResourceType ResourceType
	ResourceID   string

	OwnerID      string
	DefaultLevel AccessLevel
	UserLevels   map[string]AccessLevel
	TeamLevels   map[string]AccessLevel

	IsPublic    bool
	PublicLevel AccessLevel

	CreatedAt time.Time
	UpdatedAt time.Time
	Metadata  map[string]string
}

// clone returns a deep copy so callers cannot mutate engine state
func (e *Entry) clone() *Entry {
	out := *e
	out.UserLevels = make(map[string]AccessLevel, len(e.UserLevels))
	for k, v := range e.UserLevels {
		out.UserLevels[k] = v
	}
	out.TeamLevels = make(map[string]AccessLevel, len(e.TeamLevels))
	for k, v := range e.TeamLevels {
		out.TeamLevels[k] = v
	}
	out.Metadata = make(map[string]string, len(e.Metadata))
	for k, v := range e.Metadata {
		out.Metadata[k] = v
	}
	return &out
}

// entryRecord is the persisted form; enum fields use their underlying
// string/int values
type entryRecord struct {
	EntryID      string            `json:"entry_id"`
	ResourceType string            `json:"resource_type"`
	ResourceID   string            `json:"resource_id"`
	OwnerID      string            `json:"owner_id"`
	DefaultLevel int               `json:"access_level_default"`
	UserLevels   map[string]int    `json:"access_level_users"`
	TeamLevels   map[string]int    `json:"access_level_teams"`
	IsPublic     bool              `json:"is_public"`
	PublicLevel  int               `json:"public_access_level"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

func recordFromEntry(e *Entry) entryRecord {
	users := make(map[string]int, len(e.UserLevels))
	for id, level := range e.UserLevels {
		users[id] = int(level)
	}
	teams := make(map[string]int, len(e.TeamLevels))
	for id, level := range e.TeamLevels {
		teams[id] = int(level)
	}
	return entryRecord{
		EntryID:      e.EntryID,
		ResourceType: string(e.ResourceType),
		ResourceID:   e.ResourceID,
		OwnerID:      e.OwnerID,
		DefaultLevel: int(e.DefaultLevel),
		UserLevels:   users,
		TeamLevels:   teams,
		IsPublic:     e.IsPublic,
		PublicLevel:  int(e.PublicLevel),
		CreatedAt:    e.CreatedAt,
		UpdatedAt:    e.UpdatedAt,
		Metadata:     e.Metadata,
	}
}

// toEntry validates the record; any unknown enum value fails the whole
// record so a corrupt object never enters the engine
func (r entryRecord) toEntry() (*Entry, error) {
	resourceType, err := ParseResourceType(r.ResourceType)
	if err != nil {
		return nil, err
	}
	defaultLevel, err := ParseAccessLevel(r.DefaultLevel)
	if err != nil {
		return nil, fmt.Errorf("default level: %w", err)
	}
	publicLevel, err := ParseAccessLevel(r.PublicLevel)
	if err != nil {
		return nil, fmt.Errorf("public level: %w", err)
	}

	users := make(map[string]AccessLevel, len(r.UserLevels))
	for id, v := range r.UserLevels {
		level, err := ParseAccessLevel(v)
		if err != nil {
			return nil, fmt.Errorf("user %s: %w", id, err)
		}
		users[id] = level
	}
	teams := make(map[string]AccessLevel, len(r.TeamLevels))
	for id, v := range r.TeamLevels {
		level, err := ParseAccessLevel(v)
		if err != nil {
			return nil, fmt.Errorf("team %s: %w", id, err)
		}
		teams[id] = level
	}

	metadata := r.Metadata
	if metadata == nil {
		metadata = make(map[string]string)
	}

	return &Entry{
		EntryID:      r.EntryID,
		ResourceType: resourceType,
		ResourceID:   r.ResourceID,
		OwnerID:      r.OwnerID,
		DefaultLevel: defaultLevel,
		UserLevels:   users,
		TeamLevels:   teams,
		IsPublic:     r.IsPublic,
		PublicLevel:  publicLevel,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
		Metadata:     metadata,
	}, nil
}

// ResourceAccess pairs a resource id with the caller's effective level
type ResourceAccess struct {
	ResourceID string      `json:"resource_id"`
	Level      AccessLevel `json:"level"`
}

// UserAccess pairs a user id with their directly granted level
type UserAccess struct {
	UserID string      `json:"user_id"`
	Level  AccessLevel `json:"level"`
}
