package voice

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

// ChannelInfo is the cached view the reaper needs of a channel.
type ChannelInfo struct {
	Name     string
	ParentID string
}

// GuildView answers cache queries about channels and their occupancy.
type GuildView interface {
	Channel(channelID string) (ChannelInfo, bool)
	Occupants(guildID, channelID string) int
}

// stateView reads from discordgo's gateway state cache.
type stateView struct{ st *discordgo.State }

func NewStateView(st *discordgo.State) GuildView { return stateView{st: st} }

func (v stateView) Channel(channelID string) (ChannelInfo, bool) {
	ch, err := v.st.Channel(channelID)
	if err != nil || ch == nil {
		return ChannelInfo{}, false
	}
	return ChannelInfo{Name: ch.Name, ParentID: ch.ParentID}, true
}

func (v stateView) Occupants(guildID, channelID string) int {
	g, err := v.st.Guild(guildID)
	if err != nil || g == nil {
		return 0
	}
	v.st.RLock()
	defer v.st.RUnlock()
	n := 0
	for _, vs := range g.VoiceStates {
		if vs != nil && vs.ChannelID == channelID {
			n++
		}
	}
	return n
}

// Reaper deletes match channels that stay empty for a grace period after
// the last member leaves. The store is left untouched; teardown tolerates
// channels that are already gone.
type Reaper struct {
	prov     Provisioner
	view     GuildView
	guildID  string
	parentID string
	prefix   string
	delay    time.Duration
	logger   *zap.Logger

	mu      sync.Mutex
	pending map[string]*time.Timer
}

func NewReaper(prov Provisioner, view GuildView, guildID, parentID, prefix string, delay time.Duration, logger *zap.Logger) *Reaper {
	if logger == nil {
		logger = zap.NewNop()
	}
	if delay <= 0 {
		delay = time.Minute
	}
	return &Reaper{
		prov:     prov,
		view:     view,
		guildID:  guildID,
		parentID: parentID,
		prefix:   prefix,
		delay:    delay,
		logger:   logger,
		pending:  make(map[string]*time.Timer),
	}
}

// Handler is registered with session.AddHandler.
func (r *Reaper) Handler(_ *discordgo.Session, v *discordgo.VoiceStateUpdate) {
	if v == nil || v.BeforeUpdate == nil || v.VoiceState == nil {
		return
	}
	r.Left(v.GuildID, v.BeforeUpdate.ChannelID, v.ChannelID)
}

// Left handles a member moving out of fromChannel (into toChannel, or out of voice).
func (r *Reaper) Left(guildID, fromChannel, toChannel string) {
	if fromChannel == "" || fromChannel == toChannel || guildID != r.guildID {
		return
	}
	if !r.isMatchChannel(fromChannel) {
		return
	}
	if r.view.Occupants(guildID, fromChannel) > 0 {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.pending[fromChannel]; ok {
		return
	}
	r.logger.Info("voice_channel_empty_scheduled", zap.String("channel_id", fromChannel), zap.Duration("delay", r.delay))
	r.pending[fromChannel] = time.AfterFunc(r.delay, func() { r.reap(fromChannel) })
}

func (r *Reaper) isMatchChannel(channelID string) bool {
	info, ok := r.view.Channel(channelID)
	if !ok {
		return false
	}
	if r.parentID != "" && info.ParentID != r.parentID {
		return false
	}
	return strings.HasPrefix(info.Name, r.prefix)
}

func (r *Reaper) reap(channelID string) {
	r.mu.Lock()
	delete(r.pending, channelID)
	r.mu.Unlock()

	if r.view.Occupants(r.guildID, channelID) > 0 {
		r.logger.Debug("voice_channel_reoccupied", zap.String("channel_id", channelID))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := r.prov.DeleteVoiceChannel(ctx, channelID); err != nil {
		r.logger.Warn("voice_channel_empty_delete_failed", zap.String("channel_id", channelID), zap.Error(err))
		return
	}
	r.logger.Info("voice_channel_empty_deleted", zap.String("channel_id", channelID))
}

// Stop cancels pending deletions.
func (r *Reaper) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, t := range r.pending {
		t.Stop()
		delete(r.pending, id)
	}
}
