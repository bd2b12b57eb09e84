// Package logic owns the per-room game orchestration: lobby membership,
// phase progression, pending input collection and resolution application.
// Every mutation of a room happens under that room's mutex; the pure
// resolution rules live in the engine package.
package logic

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/mafiadial/mafia-night-server/engine"
	"github.com/mafiadial/mafia-night-server/model"
	"github.com/mafiadial/mafia-night-server/service"
)

type roleState struct {
	roleType  model.RoleType
	alignment model.Alignment
	alive     bool
	revealed  bool
}

// Room is one game room. All exported methods serialize on the room
// mutex, so at most one request or deadline mutates the room at a time.
type Room struct {
	Code string

	mu        sync.Mutex
	epoch     int
	config    *model.Config
	settings  model.Settings
	phase     model.Phase
	dayNumber int
	hostID    string
	players   map[string]*model.Player
	nextSeat  int
	roles     map[string]*roleState
	pending   *model.Pending
	winner    model.Alignment
	log       []model.EventLogEntry
	savedLog  int
	chat      map[model.ChatChannel][]model.ChatMessage
	ready     map[string]struct{}
	createdAt time.Time

	clock      service.Clock
	scheduler  *service.Scheduler
	store      service.Store
	notifier   Notifier
	gameLogger *service.GameLogger
}

func newRoom(code string, config *model.Config, deps roomDeps) *Room {
	return &Room{
		Code:      code,
		config:    config,
		settings:  config.RoomSettings(),
		phase:     model.PhaseLobby,
		players:   make(map[string]*model.Player),
		roles:     make(map[string]*roleState),
		chat:      make(map[model.ChatChannel][]model.ChatMessage),
		ready:     make(map[string]struct{}),
		winner:    model.AlignNone,
		createdAt: deps.clock.Now(),

		clock:      deps.clock,
		scheduler:  deps.scheduler,
		store:      deps.store,
		notifier:   deps.notifier,
		gameLogger: deps.gameLogger,
	}
}

type roomDeps struct {
	clock      service.Clock
	scheduler  *service.Scheduler
	store      service.Store
	notifier   Notifier
	gameLogger *service.GameLogger
}

// join seats a player. During a game, new joins are only accepted as
// spectators, and only when the room is not locked after start.
func (r *Room) join(player *model.Player) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.players) >= r.settings.MaxPlayers {
		return ErrRoomFull
	}
	if r.phase != model.PhaseLobby {
		if r.settings.LockAfterStart {
			return ErrRoomLocked
		}
		player.IsAlive = false
	} else {
		player.IsAlive = true
	}
	player.Seat = r.nextSeat
	r.nextSeat++
	player.Connected = true
	if len(r.players) == 0 {
		player.IsHost = true
		r.hostID = player.ID
	}
	r.players[player.ID] = player
	slog.Info("player joined", "room", r.Code, "player", player.ID, "name", player.Name)
	r.persistRoomLocked()
	r.persistPlayersLocked()
	r.broadcastLocked()
	return nil
}

// Reconnect marks a known player connected again and resyncs their
// private state.
func (r *Room) Reconnect(playerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	player, ok := r.players[playerID]
	if !ok {
		return ErrUnknownPlayer
	}
	player.Connected = true
	slog.Info("player reconnected", "room", r.Code, "player", playerID)
	r.resyncLocked(playerID)
	r.broadcastLocked()
	return nil
}

// Disconnect marks a player as disconnected. The seat is kept so a
// reconnect resumes the same role. A disconnected lobby host hands the
// room to the next seat.
func (r *Room) Disconnect(playerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	player, ok := r.players[playerID]
	if !ok {
		return
	}
	player.Connected = false
	slog.Info("player disconnected", "room", r.Code, "player", playerID)
	if r.phase == model.PhaseLobby {
		if playerID == r.hostID {
			r.transferHostLocked()
		}
	}
	r.broadcastLocked()
}

func (r *Room) transferHostLocked() {
	for _, p := range r.seatedPlayersLocked() {
		if p.Connected && p.ID != r.hostID {
			if prev, ok := r.players[r.hostID]; ok {
				prev.IsHost = false
			}
			p.IsHost = true
			r.hostID = p.ID
			slog.Info("host transferred", "room", r.Code, "host", p.ID)
			return
		}
	}
}

// Start deals roles and opens the first night. Host only, lobby only.
func (r *Room) Start(playerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if playerID != r.hostID {
		return ErrNotHost
	}
	if r.phase != model.PhaseLobby {
		return ErrWrongPhase
	}
	seated := r.seatedPlayersLocked()
	if err := r.settings.ValidateForStart(len(seated)); err != nil {
		return err
	}
	r.dealRolesLocked(seated)
	r.phase = model.PhaseNight
	r.dayNumber = 1
	r.winner = model.AlignNone
	r.log = nil
	r.savedLog = 0
	r.ready = make(map[string]struct{})
	r.epoch++
	slog.Info("game started", "room", r.Code, "players", len(seated), "day", r.dayNumber)
	r.appendLogLocked("The game has begun. Night falls.", nil)
	r.persistRoomLocked()
	r.persistRolesLocked()
	r.persistPlayersLocked()
	if r.gameLogger != nil {
		r.gameLogger.TrackStartGame(r.Code, r.roleRecordsLocked())
	}
	r.sendRoleNoticesLocked()
	r.openNightLocked()
	return nil
}

func (r *Room) dealRolesLocked(seated []*model.Player) {
	rc := r.settings.Roles
	deck := make([]model.RoleType, 0, len(seated))
	for roleType, n := range map[model.RoleType]int{
		model.RoleMafia:        rc.Mafia,
		model.RoleDoctor:       rc.Doctor,
		model.RoleDetective:    rc.Detective,
		model.RoleVigilante:    rc.Vigilante,
		model.RoleJester:       rc.Jester,
		model.RoleBodyguard:    rc.Bodyguard,
		model.RoleMayor:        rc.Mayor,
		model.RoleSerialKiller: rc.SerialKiller,
		model.RoleSilencer:     rc.Silencer,
		model.RoleWitch:        rc.Witch,
	} {
		for i := 0; i < n; i++ {
			deck = append(deck, roleType)
		}
	}
	sort.Slice(deck, func(i, j int) bool { return deck[i] < deck[j] })
	for len(deck) < len(seated) {
		deck = append(deck, model.RoleVillager)
	}
	rand.Shuffle(len(deck), func(i, j int) { deck[i], deck[j] = deck[j], deck[i] })

	r.roles = make(map[string]*roleState, len(seated))
	for i, p := range seated {
		roleType := deck[i]
		r.roles[p.ID] = &roleState{
			roleType:  roleType,
			alignment: roleType.Alignment(),
			alive:     true,
		}
		p.IsAlive = true
	}
}

func (r *Room) sendRoleNoticesLocked() {
	mafiaIDs := r.mafiaIDsLocked()
	for id, role := range r.roles {
		notice := model.RoleNotice{
			RoleType:  role.roleType,
			Alignment: role.alignment,
		}
		if role.alignment == model.AlignMafia {
			notice.MafiaIDs = mafiaIDs
		}
		r.notifier.ToPlayer(id, model.EventRoleNotice, notice)
	}
}

// Ready resends the player's current private state. Clients send it
// after loading so a refresh mid-game recovers role and prompts. After
// the game has ended it doubles as a ready check: once every seated
// player is ready the room hears the host may return to the lobby.
func (r *Room) Ready(playerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.players[playerID]; !ok {
		return ErrUnknownPlayer
	}
	r.ready[playerID] = struct{}{}
	r.resyncLocked(playerID)
	if r.phase == model.PhaseEnded && r.allReadyLocked() {
		r.notifier.ToRoom(r.Code, model.EventToast, model.Toast{
			Type:    "info",
			Message: "Everyone is ready. The host may return to the lobby.",
		})
	}
	return nil
}

func (r *Room) allReadyLocked() bool {
	for id := range r.players {
		if _, ok := r.ready[id]; !ok {
			return false
		}
	}
	return true
}

func (r *Room) resyncLocked(playerID string) {
	r.notifier.ToPlayer(playerID, model.EventRoomUpdate, r.snapshotLocked())
	role, ok := r.roles[playerID]
	if !ok || r.phase == model.PhaseLobby {
		return
	}
	notice := model.RoleNotice{RoleType: role.roleType, Alignment: role.alignment}
	if role.alignment == model.AlignMafia {
		notice.MafiaIDs = r.mafiaIDsLocked()
	}
	r.notifier.ToPlayer(playerID, model.EventRoleNotice, notice)
	if r.phase == model.PhaseNight && role.alive && r.pending != nil {
		if _, expected := r.pending.Expected[playerID]; expected {
			r.notifier.ToPlayer(playerID, model.EventNightPrompt, r.nightPromptLocked(playerID, role))
		}
	}
}

// UpdateName renames a player in the lobby.
func (r *Room) UpdateName(playerID, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	player, ok := r.players[playerID]
	if !ok {
		return ErrUnknownPlayer
	}
	if r.phase != model.PhaseLobby {
		return ErrWrongPhase
	}
	clean, ok := model.CleanName(name)
	if !ok {
		return ErrInvalidName
	}
	player.Name = clean
	r.persistPlayersLocked()
	r.broadcastLocked()
	return nil
}

// UpdateSettings applies a typed settings patch. Host only, lobby only.
// The patch either applies fully or not at all.
func (r *Room) UpdateSettings(playerID string, patch model.SettingsPatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if playerID != r.hostID {
		return ErrNotHost
	}
	if r.phase != model.PhaseLobby {
		return ErrWrongPhase
	}
	if err := r.settings.ApplyPatch(patch); err != nil {
		return err
	}
	slog.Info("settings updated", "room", r.Code, "version", r.settings.Version)
	r.persistRoomLocked()
	r.broadcastLocked()
	return nil
}

// ForcePhase advances the room to whatever the current deadline would
// produce. Host only. This is the only way forward in manual mode.
func (r *Room) ForcePhase(playerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if playerID != r.hostID {
		return ErrNotHost
	}
	return r.advanceLocked()
}

// FinalizeNight closes the night early. Host only.
func (r *Room) FinalizeNight(playerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if playerID != r.hostID {
		return ErrNotHost
	}
	if r.phase != model.PhaseNight {
		return ErrWrongPhase
	}
	r.finalizeNightLocked()
	return nil
}

// FinalizeDay advances the current day stage early. Host only.
func (r *Room) FinalizeDay(playerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if playerID != r.hostID {
		return ErrNotHost
	}
	if r.phase != model.PhaseDay {
		return ErrWrongPhase
	}
	return r.advanceLocked()
}

// ToLobby returns an ended game to a playable lobby, keeping the seats.
func (r *Room) ToLobby(playerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if playerID != r.hostID {
		return ErrNotHost
	}
	if r.phase != model.PhaseEnded {
		return ErrWrongPhase
	}
	r.scheduler.Cancel(r.Code)
	r.epoch++
	r.phase = model.PhaseLobby
	r.dayNumber = 0
	r.winner = model.AlignNone
	r.roles = make(map[string]*roleState)
	r.pending = nil
	r.log = nil
	r.savedLog = 0
	r.chat = make(map[model.ChatChannel][]model.ChatMessage)
	r.ready = make(map[string]struct{})
	for _, p := range r.players {
		p.IsAlive = true
	}
	slog.Info("room returned to lobby", "room", r.Code)
	if err := r.store.ResetRoom(context.Background(), r.roomRecordLocked()); err != nil {
		slog.Warn("failed to reset room record", "room", r.Code, "error", err)
	}
	r.persistPlayersLocked()
	r.broadcastLocked()
	return nil
}

// advanceLocked runs the transition the current deadline would fire.
func (r *Room) advanceLocked() error {
	switch r.phase {
	case model.PhaseNight:
		r.finalizeNightLocked()
	case model.PhaseDawn:
		r.openDayLocked()
	case model.PhaseDay:
		if r.pending == nil {
			return ErrWrongPhase
		}
		switch r.pending.Stage {
		case model.StageDiscussion:
			r.closeDiscussionLocked()
		case model.StageDefense:
			r.openVotingLocked()
		case model.StageVoting:
			r.finalizeDayLocked()
		default:
			return ErrWrongPhase
		}
	default:
		return ErrWrongPhase
	}
	return nil
}

// scheduleAdvanceLocked points the room's single deadline slot at the
// next transition. A fire races the room lock with ordinary requests;
// the epoch guard drops a fire scheduled for a stage that already moved.
func (r *Room) scheduleAdvanceLocked(d time.Duration) {
	epoch := r.epoch
	r.scheduler.Schedule(r.Code, d, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.epoch != epoch {
			return
		}
		if err := r.advanceLocked(); err != nil {
			slog.Warn("deadline advance refused", "room", r.Code, "error", err)
		}
	})
}

func (r *Room) endGameLocked(winner model.Alignment) {
	r.scheduler.Cancel(r.Code)
	r.epoch++
	r.phase = model.PhaseEnded
	r.winner = winner
	r.pending = nil
	r.appendLogLocked(fmt.Sprintf("The game is over. %s wins.", winner), map[string]any{"winner": string(winner)})
	slog.Info("game ended", "room", r.Code, "winner", winner, "day", r.dayNumber)

	reveals := make([]model.RoleReveal, 0, len(r.roles))
	for _, p := range r.seatedPlayersLocked() {
		role, ok := r.roles[p.ID]
		if !ok {
			continue
		}
		role.revealed = true
		reveals = append(reveals, model.RoleReveal{
			PlayerID:  p.ID,
			Name:      p.Name,
			RoleType:  role.roleType,
			Alignment: role.alignment,
		})
	}
	r.persistResolutionLocked(nil)
	if r.gameLogger != nil {
		r.gameLogger.AppendLine(r.Code, fmt.Sprintf("%d,result,%s", r.dayNumber, winner))
		r.gameLogger.TrackEndGame(r.Code)
	}
	r.notifier.ToRoom(r.Code, model.EventGameEnded, model.GameEnded{Winner: winner, Roles: reveals})
	r.notifier.ToPublic(r.Code, model.EventGameEnded, model.GameEnded{Winner: winner, Roles: reveals})
	r.revealChatLocked()
	r.broadcastLocked()
}

// SpectatorsAllowed reports whether the room accepts public feed
// subscribers.
func (r *Room) SpectatorsAllowed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.settings.SpectatorsAllowed
}

// Snapshot returns the public room state.
func (r *Room) Snapshot() model.RoomSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

func (r *Room) snapshotLocked() model.RoomSnapshot {
	snap := model.RoomSnapshot{
		Code:      r.Code,
		HostID:    r.hostID,
		Phase:     r.phase,
		DayNumber: r.dayNumber,
		Players:   make([]model.Player, 0, len(r.players)),
		Settings:  r.settings,
		Log:       r.log,
		Winner:    r.winner,
	}
	for _, p := range r.seatedPlayersLocked() {
		snap.Players = append(snap.Players, *p)
	}
	if r.pending != nil {
		snap.Stage = r.pending.Stage
		snap.NomineeID = r.pending.NomineeID
		snap.Nominees = r.pending.Nominees
		snap.AccuseTally = r.pending.AccusationTally()
		snap.VoteTally, snap.NoLynchCount = r.pending.VoteTally()
	}
	if at, ok := r.scheduler.DeadlineAt(r.Code); ok {
		snap.DeadlineAt = &at
	}
	return snap
}

func (r *Room) broadcastLocked() {
	snap := r.snapshotLocked()
	r.notifier.ToRoom(r.Code, model.EventRoomUpdate, snap)
	r.notifier.ToPublic(r.Code, model.EventRoomUpdatePublic, snap)
}

func (r *Room) seatedPlayersLocked() []*model.Player {
	seated := make([]*model.Player, 0, len(r.players))
	for _, p := range r.players {
		seated = append(seated, p)
	}
	sort.Slice(seated, func(i, j int) bool { return seated[i].Seat < seated[j].Seat })
	return seated
}

func (r *Room) livingIDsLocked() []string {
	ids := make([]string, 0, len(r.roles))
	for _, p := range r.seatedPlayersLocked() {
		if role, ok := r.roles[p.ID]; ok && role.alive {
			ids = append(ids, p.ID)
		}
	}
	return ids
}

func (r *Room) mafiaIDsLocked() []string {
	ids := make([]string, 0, 2)
	for _, p := range r.seatedPlayersLocked() {
		if role, ok := r.roles[p.ID]; ok && role.alignment == model.AlignMafia {
			ids = append(ids, p.ID)
		}
	}
	return ids
}

func (r *Room) playerNameLocked(id string) string {
	if p, ok := r.players[id]; ok {
		return p.Name
	}
	return id
}

func (r *Room) engineSnapshotLocked() engine.Snapshot {
	roles := make(map[string]engine.RoleState, len(r.roles))
	for id, role := range r.roles {
		roles[id] = engine.RoleState{
			RoleType:  role.roleType,
			Alignment: role.alignment,
			Alive:     role.alive,
			Revealed:  role.revealed,
		}
	}
	return engine.Snapshot{
		Roles:     roles,
		Settings:  r.settings,
		Phase:     r.phase,
		DayNumber: r.dayNumber,
	}
}

func (r *Room) appendLogLocked(message string, meta map[string]any) {
	entry := model.EventLogEntry{
		ID:        ulid.Make().String(),
		Phase:     r.phase,
		Message:   message,
		Meta:      meta,
		CreatedAt: r.clock.Now(),
	}
	r.log = append(r.log, entry)
	if r.gameLogger != nil {
		r.gameLogger.AppendLine(r.Code, fmt.Sprintf("%d,%s,%s", r.dayNumber, r.phase, message))
	}
}

func (r *Room) roomRecordLocked() service.RoomRecord {
	return service.RoomRecord{
		Code:      r.Code,
		HostID:    r.hostID,
		Phase:     r.phase,
		DayNumber: r.dayNumber,
		Settings:  r.settings,
		Winner:    r.winner,
		CreatedAt: r.createdAt,
		UpdatedAt: r.clock.Now(),
	}
}

func (r *Room) roleRecordsLocked() []service.RoleRecord {
	records := make([]service.RoleRecord, 0, len(r.roles))
	for _, p := range r.seatedPlayersLocked() {
		role, ok := r.roles[p.ID]
		if !ok {
			continue
		}
		records = append(records, service.RoleRecord{
			RoomCode: r.Code,
			Alive:    role.alive,
			RoleAssignment: model.RoleAssignment{
				PlayerID:  p.ID,
				RoleType:  role.roleType,
				Alignment: role.alignment,
				Revealed:  role.revealed,
			},
		})
	}
	return records
}

func (r *Room) playerRecordsLocked() []service.PlayerRecord {
	records := make([]service.PlayerRecord, 0, len(r.players))
	for _, p := range r.seatedPlayersLocked() {
		records = append(records, service.PlayerRecord{
			RoomCode: r.Code,
			PlayerID: p.ID,
			Name:     p.Name,
			Alive:    p.IsAlive,
			Seat:     p.Seat,
		})
	}
	return records
}

func (r *Room) persistRoomLocked() {
	if err := r.store.SaveRoom(context.Background(), r.roomRecordLocked()); err != nil {
		slog.Warn("failed to persist room", "room", r.Code, "error", err)
	}
}

func (r *Room) persistRolesLocked() {
	if err := r.store.SaveRoles(context.Background(), r.Code, r.roleRecordsLocked()); err != nil {
		slog.Warn("failed to persist roles", "room", r.Code, "error", err)
	}
}

func (r *Room) persistPlayersLocked() {
	if err := r.store.SavePlayers(context.Background(), r.Code, r.playerRecordsLocked()); err != nil {
		slog.Warn("failed to persist players", "room", r.Code, "error", err)
	}
}

// persistResolutionLocked writes the room record, the deaths and any
// unsaved log entries in one transaction.
func (r *Room) persistResolutionLocked(deaths []string) {
	res := service.Resolution{
		Room:   r.roomRecordLocked(),
		Deaths: deaths,
		Log:    r.unsavedLogLocked(),
	}
	if err := r.store.ApplyResolution(context.Background(), res); err != nil {
		slog.Warn("failed to persist resolution", "room", r.Code, "error", err)
	}
}

// unsavedLogLocked returns log entries appended since the last persist.
func (r *Room) unsavedLogLocked() []model.EventLogEntry {
	n := len(r.log) - r.savedLog
	if n <= 0 {
		return nil
	}
	entries := r.log[r.savedLog:]
	r.savedLog = len(r.log)
	return entries
}
