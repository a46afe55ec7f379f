// Package catalogimporter converts spreadsheet exports of the quest catalog
// into the JSON document the file provider serves. Rows are validated
// against an explicit named-column schema before anything is written.
package catalogimporter

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/questline/eventhub/internal/services/eventhub/domain"
)

// Config holds configuration for the catalog importer.
type Config struct {
	Dir    string
	Out    string
	DryRun bool
}

// ParseConfig parses CLI flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	cfg := Config{
		Out: filepath.Join("data", "catalog.json"),
	}

	fs.StringVar(&cfg.Dir, "dir", "", "directory containing quests.csv, stages.csv, and players.csv")
	fs.StringVar(&cfg.Out, "out", cfg.Out, "catalog JSON output path")
	fs.BoolVar(&cfg.DryRun, "dry-run", false, "validate without writing the catalog")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	if strings.TrimSpace(cfg.Dir) == "" {
		return Config{}, errors.New("dir is required")
	}
	return cfg, nil
}

// document is the on-disk catalog shape consumed by the file provider.
type document struct {
	Quests  []domain.Quest        `json:"quests"`
	Players []domain.RosterPlayer `json:"players"`
}

// Run executes the importer using the provided Config.
func Run(ctx context.Context, cfg Config, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if out == nil {
		out = io.Discard
	}

	dir := strings.TrimSpace(cfg.Dir)
	if dir == "" {
		return errors.New("dir is required")
	}

	quests, err := readQuests(filepath.Join(dir, "quests.csv"))
	if err != nil {
		return fmt.Errorf("read quests: %w", err)
	}
	if err := attachStages(filepath.Join(dir, "stages.csv"), quests); err != nil {
		return fmt.Errorf("read stages: %w", err)
	}
	players, err := readPlayers(filepath.Join(dir, "players.csv"))
	if err != nil {
		return fmt.Errorf("read players: %w", err)
	}
	if err := validate(quests, players); err != nil {
		return err
	}

	doc := document{Players: players}
	for _, q := range quests {
		doc.Quests = append(doc.Quests, *q)
	}
	sort.Slice(doc.Quests, func(i, j int) bool { return doc.Quests[i].ID < doc.Quests[j].ID })

	if cfg.DryRun {
		_, err = fmt.Fprintf(out, "validated %d quest(s) and %d player(s)\n", len(doc.Quests), len(doc.Players))
		return err
	}

	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode catalog: %w", err)
	}
	if dir := filepath.Dir(cfg.Out); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}
	if err := os.WriteFile(cfg.Out, raw, 0o644); err != nil {
		return fmt.Errorf("write catalog: %w", err)
	}
	_, err = fmt.Fprintf(out, "wrote %d quest(s) and %d player(s) to %s\n", len(doc.Quests), len(doc.Players), cfg.Out)
	return err
}

var questColumns = []string{
	"id", "sub_number", "state", "name", "description", "phases",
	"cooldown_minutes", "preconditions_player", "preconditions_quest",
}

var stageColumns = []string{
	"quest_id", "position", "name", "trigger_type", "trigger_ids", "text",
	"backup_text_id", "backup_time_seconds", "playlist_name", "radio_id",
	"radio_playlist_name", "sleep_time", "npc_name",
}

var playerColumns = []string{"id", "home_office", "home_radio", "aisle", "phase"}

// row maps a CSV record by header name.
type row map[string]string

func readRows(path string, columns []string) ([]row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.TrimLeadingSpace = true
	records, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, errors.New("missing header row")
	}

	header := records[0]
	known := make(map[string]bool, len(columns))
	for _, c := range columns {
		known[c] = true
	}
	seen := make(map[string]bool, len(header))
	for _, name := range header {
		if !known[name] {
			return nil, fmt.Errorf("unknown column %q", name)
		}
		if seen[name] {
			return nil, fmt.Errorf("duplicate column %q", name)
		}
		seen[name] = true
	}
	for _, c := range columns {
		if !seen[c] {
			return nil, fmt.Errorf("missing column %q", c)
		}
	}

	rows := make([]row, 0, len(records)-1)
	for _, record := range records[1:] {
		r := make(row, len(header))
		for i, name := range header {
			r[name] = strings.TrimSpace(record[i])
		}
		rows = append(rows, r)
	}
	return rows, nil
}

func (r row) intField(name string, line int) (int, error) {
	raw := r[name]
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("row %d: %s must be an integer, got %q", line, name, raw)
	}
	return n, nil
}

// listField splits a semicolon-separated cell, dropping empty entries.
func (r row) listField(name string) []string {
	raw := r[name]
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ";") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func readQuests(path string) (map[string]*domain.Quest, error) {
	rows, err := readRows(path, questColumns)
	if err != nil {
		return nil, err
	}

	quests := make(map[string]*domain.Quest, len(rows))
	for i, r := range rows {
		line := i + 2
		id := r["id"]
		if id == "" {
			return nil, fmt.Errorf("row %d: id is required", line)
		}
		if _, ok := quests[id]; ok {
			return nil, fmt.Errorf("row %d: duplicate quest id %q", line, id)
		}
		subNumber, err := r.intField("sub_number", line)
		if err != nil {
			return nil, err
		}
		cooldown, err := r.intField("cooldown_minutes", line)
		if err != nil {
			return nil, err
		}
		var phases []int
		for _, raw := range r.listField("phases") {
			phase, err := strconv.Atoi(raw)
			if err != nil {
				return nil, fmt.Errorf("row %d: phases must be integers, got %q", line, raw)
			}
			phases = append(phases, phase)
		}
		quests[id] = &domain.Quest{
			ID:                  id,
			SubNumber:           subNumber,
			State:               r["state"],
			Name:                r["name"],
			Description:         r["description"],
			Phases:              phases,
			CooldownTimeMinutes: cooldown,
			PreconditionsPlayer: r["preconditions_player"],
			PreconditionsQuest:  r["preconditions_quest"],
		}
	}
	return quests, nil
}

func attachStages(path string, quests map[string]*domain.Quest) error {
	rows, err := readRows(path, stageColumns)
	if err != nil {
		return err
	}

	type positioned struct {
		position int
		stage    domain.QuestStage
	}
	byQuest := make(map[string][]positioned)
	for i, r := range rows {
		line := i + 2
		questID := r["quest_id"]
		if _, ok := quests[questID]; !ok {
			return fmt.Errorf("row %d: stage references unknown quest %q", line, questID)
		}
		position, err := r.intField("position", line)
		if err != nil {
			return err
		}
		backupTime, err := r.intField("backup_time_seconds", line)
		if err != nil {
			return err
		}
		sleepTime, err := r.intField("sleep_time", line)
		if err != nil {
			return err
		}
		if r["trigger_type"] == "" {
			return fmt.Errorf("row %d: trigger_type is required", line)
		}
		triggerIDs := r.listField("trigger_ids")
		if len(triggerIDs) == 0 {
			return fmt.Errorf("row %d: trigger_ids is required", line)
		}
		byQuest[questID] = append(byQuest[questID], positioned{
			position: position,
			stage: domain.QuestStage{
				Name:              r["name"],
				TriggerType:       r["trigger_type"],
				TriggerIDs:        triggerIDs,
				Text:              r["text"],
				BackupTextID:      r["backup_text_id"],
				BackupTimeSeconds: backupTime,
				PlaylistName:      r["playlist_name"],
				RadioID:           r["radio_id"],
				RadioPlaylistName: r["radio_playlist_name"],
				SleepTime:         sleepTime,
				NPCName:           r["npc_name"],
			},
		})
	}

	for questID, stages := range byQuest {
		sort.Slice(stages, func(i, j int) bool { return stages[i].position < stages[j].position })
		for i, s := range stages {
			if s.position != i {
				return fmt.Errorf("quest %s: stage positions must be contiguous from 0, got %d at index %d", questID, s.position, i)
			}
			quests[questID].Stages = append(quests[questID].Stages, s.stage)
		}
	}
	return nil
}

func readPlayers(path string) ([]domain.RosterPlayer, error) {
	rows, err := readRows(path, playerColumns)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(rows))
	players := make([]domain.RosterPlayer, 0, len(rows))
	for i, r := range rows {
		line := i + 2
		id := r["id"]
		if id == "" {
			return nil, fmt.Errorf("row %d: id is required", line)
		}
		if seen[id] {
			return nil, fmt.Errorf("row %d: duplicate player id %q", line, id)
		}
		seen[id] = true
		players = append(players, domain.RosterPlayer{
			ID:         id,
			HomeOffice: r["home_office"],
			HomeRadio:  r["home_radio"],
			Aisle:      r["aisle"],
			Phase:      r["phase"],
		})
	}
	return players, nil
}

// validate applies cross-file checks the per-row parsing cannot express.
func validate(quests map[string]*domain.Quest, players []domain.RosterPlayer) error {
	for id, quest := range quests {
		if quest.Ready() && len(quest.Stages) == 0 {
			return fmt.Errorf("quest %s: ready but has no stages", id)
		}
	}

	// Player preconditions referencing ids outside the roster are almost
	// always a typo in the sheet.
	roster := make(map[string]bool, len(players))
	for _, p := range players {
		roster[p.ID] = true
	}
	for id, quest := range quests {
		raw := strings.TrimSpace(quest.PreconditionsPlayer)
		if raw == "" || strings.Contains(raw, "-") {
			continue
		}
		for _, token := range strings.Split(raw, ",") {
			token = strings.TrimSpace(token)
			if token != "" && !roster[token] {
				return fmt.Errorf("quest %s: precondition references unknown player %q", id, token)
			}
		}
	}
	return nil
}
