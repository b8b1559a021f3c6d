package voice

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

// discordAPI is the subset of *discordgo.Session the provisioner calls.
type discordAPI interface {
	GuildChannelCreateComplex(guildID string, data discordgo.GuildChannelCreateData, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	ChannelDelete(channelID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	GuildMemberMove(guildID string, userID string, channelID *string, options ...discordgo.RequestOption) error
}

// VoiceStateLookup returns the voice channel a member is connected to, or "".
type VoiceStateLookup func(guildID, userID string) string

// StateVoiceLookup reads voice states from the session's gateway cache.
func StateVoiceLookup(st *discordgo.State) VoiceStateLookup {
	return func(guildID, userID string) string {
		if st == nil {
			return ""
		}
		vs, err := st.VoiceState(guildID, userID)
		if err != nil || vs == nil {
			return ""
		}
		return vs.ChannelID
	}
}

const (
	permClosed  = discordgo.PermissionViewChannel | discordgo.PermissionVoiceConnect | discordgo.PermissionVoiceSpeak
	permView    = discordgo.PermissionViewChannel
	permConnect = discordgo.PermissionVoiceConnect
	permSpeak   = discordgo.PermissionVoiceSpeak
	permPrio    = discordgo.PermissionVoicePrioritySpeaker
	permSelf    = discordgo.PermissionViewChannel | discordgo.PermissionVoiceConnect |
		discordgo.PermissionManageChannels | discordgo.PermissionVoiceMoveMembers
)

// SelfIDFunc returns the bot's own user id, or "" while it is unknown.
type SelfIDFunc func() string

// SessionSelfID reads the bot user from the gateway state, falling back to
// GET /users/@me before the Ready event has been processed.
func SessionSelfID(s *discordgo.Session) SelfIDFunc {
	var (
		mu     sync.Mutex
		cached string
	)
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		if cached != "" {
			return cached
		}
		if s.State != nil && s.State.User != nil {
			cached = s.State.User.ID
			return cached
		}
		if u, err := s.User("@me"); err == nil && u != nil {
			cached = u.ID
		}
		return cached
	}
}

// DiscordProvisioner creates and deletes guild voice channels through discordgo.
type DiscordProvisioner struct {
	api     discordAPI
	guildID string
	voiceOf VoiceStateLookup
	selfID  SelfIDFunc
	logger  *zap.Logger
}

func NewDiscordProvisioner(s *discordgo.Session, guildID string, logger *zap.Logger) *DiscordProvisioner {
	return newDiscordProvisioner(s, guildID, StateVoiceLookup(s.State), SessionSelfID(s), logger)
}

func newDiscordProvisioner(api discordAPI, guildID string, lookup VoiceStateLookup, self SelfIDFunc, logger *zap.Logger) *DiscordProvisioner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if lookup == nil {
		lookup = func(string, string) string { return "" }
	}
	if self == nil {
		self = func() string { return "" }
	}
	return &DiscordProvisioner{api: api, guildID: strings.TrimSpace(guildID), voiceOf: lookup, selfID: self, logger: logger}
}

func (p *DiscordProvisioner) CreateVoiceChannel(ctx context.Context, spec ChannelSpec) (*Channel, error) {
	name := strings.TrimSpace(spec.Name)
	if name == "" {
		return nil, ErrEmptyName
	}
	var botID string
	if len(spec.Grants) > 0 {
		if botID = strings.TrimSpace(p.selfID()); botID == "" {
			p.logger.Warn("voice_channel_self_unknown", zap.String("name", name))
		}
	}
	data := discordgo.GuildChannelCreateData{
		Name:                 name,
		Type:                 discordgo.ChannelTypeGuildVoice,
		ParentID:             strings.TrimSpace(spec.ParentID),
		PermissionOverwrites: buildOverwrites(p.guildID, botID, spec.Grants),
	}
	ch, err := p.api.GuildChannelCreateComplex(p.guildID, data, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("create voice channel %q: %w", name, err)
	}
	p.logger.Debug("voice_channel_created",
		zap.String("channel_id", ch.ID),
		zap.String("name", ch.Name),
		zap.Int("grants", len(spec.Grants)),
	)
	return &Channel{ID: ch.ID, Name: ch.Name}, nil
}

func (p *DiscordProvisioner) DeleteVoiceChannel(ctx context.Context, channelID string) error {
	channelID = strings.TrimSpace(channelID)
	if channelID == "" {
		return ErrEmptyChannelID
	}
	if _, err := p.api.ChannelDelete(channelID, discordgo.WithContext(ctx)); err != nil {
		if IsUnknownChannel(err) {
			p.logger.Info("voice_channel_already_gone", zap.String("channel_id", channelID))
			return nil
		}
		return fmt.Errorf("delete voice channel %s: %w", channelID, err)
	}
	return nil
}

func (p *DiscordProvisioner) MoveMember(ctx context.Context, memberID, channelID string) (bool, error) {
	if p.voiceOf(p.guildID, memberID) == "" {
		return false, nil
	}
	target := channelID
	if err := p.api.GuildMemberMove(p.guildID, memberID, &target, discordgo.WithContext(ctx)); err != nil {
		return false, fmt.Errorf("move member %s: %w", memberID, err)
	}
	return true, nil
}

// buildOverwrites closes the channel to @everyone (role id == guild id),
// keeps the bot able to manage and move into it, and opens it to each
// granted member. No grants means no overwrites.
func buildOverwrites(guildID, botID string, grants []MemberGrant) []*discordgo.PermissionOverwrite {
	if len(grants) == 0 {
		return nil
	}
	out := make([]*discordgo.PermissionOverwrite, 0, len(grants)+2)
	out = append(out, &discordgo.PermissionOverwrite{
		ID:   guildID,
		Type: discordgo.PermissionOverwriteTypeRole,
		Deny: permClosed,
	})
	if botID != "" {
		out = append(out, &discordgo.PermissionOverwrite{
			ID:    botID,
			Type:  discordgo.PermissionOverwriteTypeMember,
			Allow: permSelf,
		})
	}
	for _, g := range grants {
		if strings.TrimSpace(g.MemberID) == "" || g.MemberID == botID {
			continue
		}
		allow := int64(permView)
		var deny int64
		if g.CanConnect {
			allow |= permConnect
		} else {
			deny |= permConnect
		}
		if g.CanSpeak {
			allow |= permSpeak
		} else {
			deny |= permSpeak
		}
		if g.IsPriority {
			allow |= permPrio
		}
		out = append(out, &discordgo.PermissionOverwrite{
			ID:    g.MemberID,
			Type:  discordgo.PermissionOverwriteTypeMember,
			Allow: allow,
			Deny:  deny,
		})
	}
	return out
}

// IsUnknownChannel reports whether err is Discord's "unknown channel" or a 404.
func IsUnknownChannel(err error) bool {
	var rest *discordgo.RESTError
	if !errors.As(err, &rest) {
		return false
	}
	if rest.Message != nil && rest.Message.Code == discordgo.ErrCodeUnknownChannel {
		return true
	}
	return rest.Response != nil && rest.Response.StatusCode == http.StatusNotFound
}
