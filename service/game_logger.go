package service

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/mafiadial/mafia-night-server/model"
)

// GameLogger writes one plain-text transcript file per finished game.
type GameLogger struct {
	mu               sync.Mutex
	games            map[string]*gameLog
	outputDir        string
	templateFilename string
}

type gameLog struct {
	roomCode string
	filename string
	lines    []string
}

func NewGameLogger(config model.Config) *GameLogger {
	return &GameLogger{
		games:            make(map[string]*gameLog),
		outputDir:        config.GameLogger.OutputDir,
		templateFilename: config.GameLogger.Filename,
	}
}

// TrackStartGame opens a transcript for the room and records the cast.
func (g *GameLogger) TrackStartGame(code string, roles []RoleRecord) {
	g.mu.Lock()
	defer g.mu.Unlock()
	filename := strings.ReplaceAll(g.templateFilename, "{room}", code)
	filename = strings.ReplaceAll(filename, "{timestamp}", fmt.Sprintf("%d", time.Now().Unix()))
	log := &gameLog{
		roomCode: code,
		filename: filename,
	}
	for _, r := range roles {
		log.lines = append(log.lines, fmt.Sprintf("role,%s,%s", r.PlayerID, r.RoleType))
	}
	g.games[code] = log
}

// AppendLine adds one transcript line and flushes to disk.
func (g *GameLogger) AppendLine(code string, line string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	log, exists := g.games[code]
	if !exists {
		return
	}
	log.lines = append(log.lines, line)
	g.saveLocked(log)
}

// TrackEndGame flushes the transcript and stops tracking the room.
func (g *GameLogger) TrackEndGame(code string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if log, exists := g.games[code]; exists {
		g.saveLocked(log)
		delete(g.games, code)
	}
}

func (g *GameLogger) saveLocked(log *gameLog) {
	if _, err := os.Stat(g.outputDir); os.IsNotExist(err) {
		if err := os.MkdirAll(g.outputDir, 0755); err != nil {
			slog.Warn("failed to create game log dir", "dir", g.outputDir, "error", err)
			return
		}
	}
	filePath := filepath.Join(g.outputDir, fmt.Sprintf("%s.log", log.filename))
	file, err := os.Create(filePath)
	if err != nil {
		slog.Warn("failed to write game log", "path", filePath, "error", err)
		return
	}
	defer file.Close()
	_, _ = file.WriteString(strings.Join(log.lines, "\n"))
}
