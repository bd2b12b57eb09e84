package model

import (
	"encoding/json"
	"time"
)

// Envelope is the wire frame for every inbound and outbound event.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Inbound event names.
const (
	EventRoomCreate      = "room:create"
	EventRoomJoin        = "room:join"
	EventHostStart       = "host:start"
	EventNightAction     = "night:action"
	EventNightFinalize   = "night:finalize"
	EventDayAccuse       = "day:accuse"
	EventDayVote         = "day:vote"
	EventDayFinalize     = "day:finalize"
	EventHostSettings    = "host:updateSettings"
	EventHostForcePhase  = "host:forcePhase"
	EventGameReady       = "game:ready"
	EventGameToLobby     = "game:toLobby"
	EventChatSend        = "chat:send"
	EventNameUpdate      = "player:updateName"
	EventPublicSubscribe = "public:subscribe"
)

// Outbound event names.
const (
	EventRoomUpdate       = "room:update"
	EventRoomUpdatePublic = "room:updatePublic"
	EventRoleNotice       = "you:role"
	EventNightPrompt      = "phase:prompt"
	EventInvestigation    = "investigation:result"
	EventDeathNotice      = "you:died"
	EventLynchResult      = "day:lynchResult"
	EventGameEnded        = "game:ended"
	EventChatMessages     = "chat:messages"
	EventToast            = "toast"
	EventJoined           = "room:joined"
)

type RoomCreateRequest struct {
	Name string `json:"name"`
}

type RoomJoinRequest struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

type RoomRequest struct {
	Code string `json:"code"`
}

type NightActionRequest struct {
	Code     string `json:"code"`
	Type     string `json:"type"`
	TargetID string `json:"targetId"`
}

type DayAccuseRequest struct {
	Code     string `json:"code"`
	TargetID string `json:"targetId,omitempty"`
}

type DayVoteRequest struct {
	Code      string `json:"code"`
	NomineeID string `json:"nomineeId,omitempty"`
	Value     string `json:"value"`
}

type SettingsUpdateRequest struct {
	Code  string          `json:"code"`
	Patch json.RawMessage `json:"patch"`
}

type ChatSendRequest struct {
	Code    string `json:"code"`
	Text    string `json:"text"`
	Channel string `json:"channel,omitempty"`
}

type NameUpdateRequest struct {
	Name string `json:"name"`
}

type ChatChannel string

const (
	ChannelDay   ChatChannel = "DAY"
	ChannelMafia ChatChannel = "MAFIA"
	ChannelGhost ChatChannel = "GHOST"
)

type ChatMessage struct {
	ID      string      `json:"id"`
	Name    string      `json:"name"`
	Text    string      `json:"text"`
	Ts      int64       `json:"ts"`
	Channel ChatChannel `json:"channel"`
}

// RoomSnapshot is the full public room state pushed to members after
// every change. Secret information (roles, private results) never rides
// on it; those travel on private notices.
type RoomSnapshot struct {
	Code           string          `json:"code"`
	HostID         string          `json:"hostId"`
	Phase          Phase           `json:"phase"`
	DayNumber      int             `json:"dayNumber"`
	Stage          Stage           `json:"stage"`
	Players        []Player        `json:"players"`
	Settings       Settings        `json:"settings"`
	NomineeID      string          `json:"nomineeId,omitempty"`
	Nominees       []string        `json:"nominees,omitempty"`
	VoteTally      map[string]int  `json:"voteTally"`
	NoLynchCount   int             `json:"noLynchCount"`
	AccuseTally    map[string]int  `json:"accuseTally"`
	DeadlineAt     *time.Time      `json:"deadlineAt,omitempty"`
	Log            []EventLogEntry `json:"log"`
	Winner         Alignment       `json:"winner,omitempty"`
}

type RoleNotice struct {
	RoleType  RoleType  `json:"roleType"`
	Alignment Alignment `json:"alignment"`
	MafiaIDs  []string  `json:"mafiaIds,omitempty"`
}

type NightPrompt struct {
	Phase   Phase      `json:"phase"`
	Action  ActionType `json:"action"`
	Targets []string   `json:"targets"`
}

type InvestigationNotice struct {
	TargetID   string `json:"targetId"`
	TargetName string `json:"targetName"`
	IsMafia    bool   `json:"isMafia"`
}

type DeathNotice struct {
	At        Phase `json:"at"`
	DayNumber int   `json:"dayNumber"`
}

type LynchResult struct {
	LynchedID   string    `json:"lynchedId,omitempty"`
	LynchedName string    `json:"lynchedName,omitempty"`
	RoleType    RoleType  `json:"roleType,omitempty"`
	Alignment   Alignment `json:"alignment,omitempty"`
}

type RoleReveal struct {
	PlayerID  string    `json:"playerId"`
	Name      string    `json:"name"`
	RoleType  RoleType  `json:"roleType"`
	Alignment Alignment `json:"alignment"`
}

type GameEnded struct {
	Winner Alignment    `json:"winner"`
	Roles  []RoleReveal `json:"roles"`
}

type Toast struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type JoinedNotice struct {
	Code     string `json:"code"`
	PlayerID string `json:"playerId"`
	Name     string `json:"name"`
	Token    string `json:"token,omitempty"`
}
