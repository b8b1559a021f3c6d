package voice

import "context"

// MemberGrant is a per-member access override on a provisioned channel.
type MemberGrant struct {
	MemberID   string
	CanConnect bool
	CanSpeak   bool
	IsPriority bool
}

// ChannelSpec describes a voice channel to create. With no grants the
// channel inherits the parent's (open) permissions.
type ChannelSpec struct {
	Name     string
	ParentID string
	Grants   []MemberGrant
}

// Channel is the handle of a created channel.
type Channel struct {
	ID   string
	Name string
}

// Provisioner wraps the voice platform's channel API.
type Provisioner interface {
	CreateVoiceChannel(ctx context.Context, spec ChannelSpec) (*Channel, error)
	// DeleteVoiceChannel returns nil when the channel no longer exists.
	DeleteVoiceChannel(ctx context.Context, channelID string) error
	// MoveMember reports moved=false without error for members not in voice.
	MoveMember(ctx context.Context, memberID, channelID string) (bool, error)
}

// Errors
var (
	ErrEmptyName      = errf("channel name is required")
	ErrEmptyChannelID = errf("channel id is required")
)

type staticErr string

func (e staticErr) Error() string { return string(e) }
func errf(s string) error         { return staticErr(s) }
