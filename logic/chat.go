package logic

import (
	"strings"

	"github.com/oklog/ulid/v2"

	"github.com/mafiadial/mafia-night-server/model"
)

const maxChatLength = 500

// SendChat routes a chat message to the channel the sender is allowed
// to speak on. The dead speak only to the dead; mafia may whisper at
// night; everyone else talks on the day channel.
func (r *Room) SendChat(playerID, text, channel string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	player, ok := r.players[playerID]
	if !ok {
		return ErrUnknownPlayer
	}
	text = strings.TrimSpace(text)
	if text == "" || len(text) > maxChatLength {
		return ErrInvalidRequest
	}
	ch, err := r.resolveChannelLocked(playerID, model.ChatChannel(channel))
	if err != nil {
		return err
	}
	msg := model.ChatMessage{
		ID:      ulid.Make().String(),
		Name:    player.Name,
		Text:    text,
		Ts:      r.clock.Now().UnixMilli(),
		Channel: ch,
	}
	r.chat[ch] = append(r.chat[ch], msg)
	for _, id := range r.chatRecipientsLocked(ch) {
		r.notifier.ToPlayer(id, model.EventChatMessages, []model.ChatMessage{msg})
	}
	if ch == model.ChannelDay {
		r.notifier.ToPublic(r.Code, model.EventChatMessages, []model.ChatMessage{msg})
	}
	return nil
}

func (r *Room) resolveChannelLocked(playerID string, requested model.ChatChannel) (model.ChatChannel, error) {
	role, hasRole := r.roles[playerID]
	dead := hasRole && !role.alive
	if !hasRole && r.phase != model.PhaseLobby && r.phase != model.PhaseEnded {
		// Mid-game spectators share the ghost channel.
		dead = true
	}
	if dead && r.phase != model.PhaseEnded {
		return model.ChannelGhost, nil
	}
	if requested == model.ChannelMafia {
		if !hasRole || role.alignment != model.AlignMafia {
			return "", ErrNotEligible
		}
		if r.phase != model.PhaseNight {
			return "", ErrWrongPhase
		}
		return model.ChannelMafia, nil
	}
	return model.ChannelDay, nil
}

func (r *Room) chatRecipientsLocked(ch model.ChatChannel) []string {
	var ids []string
	for _, p := range r.seatedPlayersLocked() {
		if r.canReadChannelLocked(p.ID, ch) {
			ids = append(ids, p.ID)
		}
	}
	return ids
}

func (r *Room) canReadChannelLocked(playerID string, ch model.ChatChannel) bool {
	if r.phase == model.PhaseEnded {
		return true
	}
	role, hasRole := r.roles[playerID]
	dead := (hasRole && !role.alive) || (!hasRole && r.phase != model.PhaseLobby)
	switch ch {
	case model.ChannelDay:
		return true
	case model.ChannelMafia:
		return hasRole && role.alignment == model.AlignMafia
	case model.ChannelGhost:
		return dead || r.settings.DeadChatVisibleToAlive
	}
	return false
}

// revealChatLocked replays every channel to everyone once the game is
// over, so the mafia and ghost talk becomes part of the postmortem.
func (r *Room) revealChatLocked() {
	var all []model.ChatMessage
	for _, ch := range []model.ChatChannel{model.ChannelDay, model.ChannelMafia, model.ChannelGhost} {
		all = append(all, r.chat[ch]...)
	}
	if len(all) == 0 {
		return
	}
	r.notifier.ToRoom(r.Code, model.EventChatMessages, all)
}
