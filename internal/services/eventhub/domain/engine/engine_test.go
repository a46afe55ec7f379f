package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	apperrors "github.com/questline/eventhub/internal/platform/errors"
	"github.com/questline/eventhub/internal/services/eventhub/domain"
	"github.com/questline/eventhub/internal/services/eventhub/storage"
)

type memStore struct {
	players   map[string]domain.PlayerState
	completed map[string]map[string]bool
	progress  map[string]domain.QuestProgress
	events    []domain.Event
	cooldowns map[string]time.Time
	radios    map[string]string
}

func newMemStore() *memStore {
	return &memStore{
		players:   make(map[string]domain.PlayerState),
		completed: make(map[string]map[string]bool),
		progress:  make(map[string]domain.QuestProgress),
		cooldowns: make(map[string]time.Time),
		radios:    make(map[string]string),
	}
}

func (m *memStore) GetPlayerState(_ context.Context, id string) (domain.PlayerState, error) {
	state, ok := m.players[id]
	if !ok {
		return domain.PlayerState{}, storage.ErrNotFound
	}
	for questID := range m.completed[id] {
		state.QuestsComplete = append(state.QuestsComplete, questID)
	}
	return state, nil
}

func (m *memStore) CreatePlayerState(_ context.Context, state domain.PlayerState) error {
	if _, ok := m.players[state.ID]; ok {
		return storage.ErrAlreadyExists
	}
	m.players[state.ID] = state
	return nil
}

func (m *memStore) PutPlayerState(_ context.Context, state domain.PlayerState) error {
	state.QuestsComplete = nil
	m.players[state.ID] = state
	return nil
}

func (m *memStore) DeletePlayerState(_ context.Context, id string) error {
	delete(m.players, id)
	delete(m.completed, id)
	return nil
}

func (m *memStore) AddQuestComplete(_ context.Context, playerID, questID string) error {
	if m.completed[playerID] == nil {
		m.completed[playerID] = make(map[string]bool)
	}
	m.completed[playerID][questID] = true
	return nil
}

func (m *memStore) PlayersAtLocation(ctx context.Context, location string) ([]domain.PlayerState, error) {
	var out []domain.PlayerState
	for id, state := range m.players {
		if state.CurrentLocation == location {
			full, _ := m.GetPlayerState(ctx, id)
			out = append(out, full)
		}
	}
	return out, nil
}

func (m *memStore) GetQuestProgress(_ context.Context, playerID string) (domain.QuestProgress, error) {
	p, ok := m.progress[playerID]
	if !ok {
		return domain.QuestProgress{}, storage.ErrNotFound
	}
	return p, nil
}

func (m *memStore) PutQuestProgress(_ context.Context, progress domain.QuestProgress) error {
	m.progress[progress.PlayerID] = progress
	return nil
}

func (m *memStore) DeleteQuestProgress(_ context.Context, playerID string) error {
	delete(m.progress, playerID)
	return nil
}

func (m *memStore) ProgressByTrigger(_ context.Context, sensorID, playerID string) ([]domain.QuestProgress, error) {
	var out []domain.QuestProgress
	for _, p := range m.progress {
		if playerID != "" && p.PlayerID != playerID {
			continue
		}
		if containsTrigger(p.TriggerIDs, sensorID) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memStore) ProgressByQuestIn(_ context.Context, questIDs []string) ([]domain.QuestProgress, error) {
	var out []domain.QuestProgress
	for _, p := range m.progress {
		for _, id := range questIDs {
			if p.QuestID == id {
				out = append(out, p)
				break
			}
		}
	}
	return out, nil
}

func (m *memStore) AppendEvent(_ context.Context, event domain.Event) error {
	m.events = append(m.events, event)
	return nil
}

func (m *memStore) RecentEvents(_ context.Context, limit int) ([]domain.Event, error) {
	out := make([]domain.Event, 0, limit)
	for i := len(m.events) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.events[i])
	}
	return out, nil
}

func (m *memStore) SetCooldown(_ context.Context, cooldown domain.Cooldown) error {
	m.cooldowns[cooldown.QuestID] = cooldown.CooldownUntil
	return nil
}

func (m *memStore) Cooldowns(_ context.Context) (map[string]time.Time, error) {
	out := make(map[string]time.Time, len(m.cooldowns))
	for k, v := range m.cooldowns {
		out[k] = v
	}
	return out, nil
}

func (m *memStore) SetRadioPlaylist(_ context.Context, radioID, playlistName string) error {
	m.radios[radioID] = playlistName
	return nil
}

func (m *memStore) GetRadioPlaylist(_ context.Context, radioID string) (string, error) {
	playlist, ok := m.radios[radioID]
	if !ok {
		return "", storage.ErrNotFound
	}
	return playlist, nil
}

type memCatalog struct {
	quests  []domain.Quest
	players []domain.RosterPlayer
}

func (c *memCatalog) Quests(context.Context) ([]domain.Quest, error) {
	return c.quests, nil
}

func (c *memCatalog) Players(context.Context) ([]domain.RosterPlayer, error) {
	return c.players, nil
}

type memScheduler struct {
	scheduled []domain.PendingTransition
}

func (s *memScheduler) Schedule(_ context.Context, pt domain.PendingTransition) error {
	s.scheduled = append(s.scheduled, pt)
	return nil
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

var testNow = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

func threeStageQuest(id string) domain.Quest {
	return domain.Quest{
		ID:    id,
		State: "Ready",
		Name:  "Delivery Run",
		Stages: []domain.QuestStage{
			{Name: "pickup", TriggerType: domain.TriggerLocation, TriggerIDs: []string{"S0"}, Text: "go to pickup", PlaylistName: "intro", SleepTime: 0},
			{Name: "dropoff", TriggerType: domain.TriggerLocation, TriggerIDs: []string{"S1"}, Text: "go to dropoff", PlaylistName: "tension"},
			{Name: "report", TriggerType: domain.TriggerLocation, TriggerIDs: []string{"S2"}, Text: "report back", PlaylistName: "outro"},
		},
	}
}

func newTestEngine(quests []domain.Quest, players []domain.RosterPlayer) (*Engine, *memStore, *memScheduler) {
	store := newMemStore()
	sched := &memScheduler{}
	provider := &memCatalog{quests: quests, players: players}
	return New(store, provider, sched, fixedClock(testNow)), store, sched
}

func TestStartQuestSnapshotsStageZero(t *testing.T) {
	quest := threeStageQuest("q1")
	quest.CooldownTimeMinutes = 10
	roster := []domain.RosterPlayer{{ID: "P7", HomeOffice: "O7", HomeRadio: "R7"}}
	eng, store, _ := newTestEngine([]domain.Quest{quest}, roster)

	progress, err := eng.StartQuest(context.Background(), "P7", "q1")
	if err != nil {
		t.Fatalf("StartQuest: %v", err)
	}
	if progress.StageIndex != 0 {
		t.Fatalf("stage index = %d, want 0", progress.StageIndex)
	}
	if len(progress.TriggerIDs) != 1 || progress.TriggerIDs[0] != "S0" {
		t.Fatalf("trigger ids = %v, want [S0]", progress.TriggerIDs)
	}
	if progress.StageCount != 3 {
		t.Fatalf("stage count = %d, want 3", progress.StageCount)
	}
	if progress.HomeOffice != "O7" || progress.HomeRadio != "R7" {
		t.Fatalf("home fields = %q/%q", progress.HomeOffice, progress.HomeRadio)
	}

	state := store.players["P7"]
	if state.QuestActive != "q1" {
		t.Fatalf("quest active = %q, want q1", state.QuestActive)
	}
	until, ok := store.cooldowns["q1"]
	if !ok {
		t.Fatal("cooldown not stamped")
	}
	if want := testNow.Add(10 * time.Minute); !until.Equal(want) {
		t.Fatalf("cooldown until = %v, want %v", until, want)
	}
}

func TestStartQuestExpandsHomeTrigger(t *testing.T) {
	quest := domain.Quest{
		ID:    "q1",
		State: "ready",
		Stages: []domain.QuestStage{
			{Name: "go home", TriggerType: domain.TriggerLocation, TriggerIDs: []string{domain.TriggerHome}},
		},
	}
	roster := []domain.RosterPlayer{{ID: "P1", HomeOffice: "O1"}}
	eng, _, _ := newTestEngine([]domain.Quest{quest}, roster)

	progress, err := eng.StartQuest(context.Background(), "P1", "q1")
	if err != nil {
		t.Fatalf("StartQuest: %v", err)
	}
	want := []string{domain.TriggerHome, "O1"}
	if len(progress.TriggerIDs) != 2 || progress.TriggerIDs[0] != want[0] || progress.TriggerIDs[1] != want[1] {
		t.Fatalf("trigger ids = %v, want %v", progress.TriggerIDs, want)
	}
}

func TestStartQuestValidation(t *testing.T) {
	quests := []domain.Quest{
		{ID: "empty", State: "ready"},
		threeStageQuest("q1"),
	}
	eng, store, _ := newTestEngine(quests, []domain.RosterPlayer{{ID: "P1"}})

	tests := []struct {
		name     string
		playerID string
		questID  string
		wantCode apperrors.Code
	}{
		{"unknown quest", "P1", "nope", apperrors.CodeNotFound},
		{"zero stages", "P1", "empty", apperrors.CodeQuestNoStages},
		{"unknown player", "P9", "q1", apperrors.CodeNotFound},
		{"empty player", "", "q1", apperrors.CodeInvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := eng.StartQuest(context.Background(), tt.playerID, tt.questID)
			if !apperrors.IsCode(err, tt.wantCode) {
				t.Fatalf("error = %v, want code %s", err, tt.wantCode)
			}
		})
	}
	if len(store.progress) != 0 {
		t.Fatalf("progress written despite validation failure: %v", store.progress)
	}
}

func TestStartQuestAllowsRadioID(t *testing.T) {
	eng, _, _ := newTestEngine([]domain.Quest{threeStageQuest("q1")}, nil)

	progress, err := eng.StartQuest(context.Background(), "R12", "q1")
	if err != nil {
		t.Fatalf("StartQuest for radio id: %v", err)
	}
	if progress.PlayerID != "R12" {
		t.Fatalf("player id = %q, want R12", progress.PlayerID)
	}
}

func TestHandleEventAdvancesMatchingStage(t *testing.T) {
	roster := []domain.RosterPlayer{{ID: "P7"}}
	eng, store, _ := newTestEngine([]domain.Quest{threeStageQuest("q1")}, roster)

	ctx := context.Background()
	if _, err := eng.StartQuest(ctx, "P7", "q1"); err != nil {
		t.Fatalf("StartQuest: %v", err)
	}
	if _, err := eng.HandleEvent(ctx, domain.Event{SensorID: "S0", PlayerID: "P7"}); err != nil {
		t.Fatalf("HandleEvent S0: %v", err)
	}

	progress := store.progress["P7"]
	if progress.StageIndex != 1 {
		t.Fatalf("stage index = %d, want 1", progress.StageIndex)
	}
	if progress.Name != "dropoff" {
		t.Fatalf("name = %q, want dropoff", progress.Name)
	}
	// Narrative and playlist lag one stage behind the trigger fields.
	if progress.Text != "go to pickup" {
		t.Fatalf("text = %q, want the left stage's text", progress.Text)
	}
	if progress.PlaylistName != "intro" {
		t.Fatalf("playlist = %q, want the left stage's playlist", progress.PlaylistName)
	}
	if progress.CurrentLocation != "S0" {
		t.Fatalf("location = %q, want S0", progress.CurrentLocation)
	}

	// Spec scenario: stage advance carries on to index 2 on the next trigger.
	if _, err := eng.HandleEvent(ctx, domain.Event{SensorID: "S1", PlayerID: "P7"}); err != nil {
		t.Fatalf("HandleEvent S1: %v", err)
	}
	if got := store.progress["P7"].StageIndex; got != 2 {
		t.Fatalf("stage index = %d, want 2", got)
	}
}

func TestHandleEventDefaultsIDAndDate(t *testing.T) {
	eng, store, _ := newTestEngine(nil, nil)

	persisted, err := eng.HandleEvent(context.Background(), domain.Event{SensorID: "S9"})
	if err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	if persisted.ID == "" {
		t.Fatal("event id not generated")
	}
	if !persisted.EventDate.Equal(testNow) {
		t.Fatalf("event date = %v, want %v", persisted.EventDate, testNow)
	}
	if len(store.events) != 1 {
		t.Fatalf("events stored = %d, want 1", len(store.events))
	}
}

func TestHandleEventRequiresSensor(t *testing.T) {
	eng, _, _ := newTestEngine(nil, nil)
	_, err := eng.HandleEvent(context.Background(), domain.Event{})
	if !apperrors.IsCode(err, apperrors.CodeInvalidArgument) {
		t.Fatalf("error = %v, want invalid argument", err)
	}
}

func TestHandleEventUnmatchedUpdatesLocation(t *testing.T) {
	eng, store, _ := newTestEngine(nil, nil)

	if _, err := eng.HandleEvent(context.Background(), domain.Event{SensorID: "S5", PlayerID: "P3"}); err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	if got := store.players["P3"].CurrentLocation; got != "S5" {
		t.Fatalf("location = %q, want S5", got)
	}
}

func TestHandleEventUnmatchedRadioSkipsLocation(t *testing.T) {
	eng, store, _ := newTestEngine(nil, nil)

	if _, err := eng.HandleEvent(context.Background(), domain.Event{SensorID: "S5", PlayerID: "R2"}); err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	if _, ok := store.players["R2"]; ok {
		t.Fatal("player state created for radio id")
	}
}

func TestAutoStartConsumesTrigger(t *testing.T) {
	quest := threeStageQuest("q1")
	roster := []domain.RosterPlayer{{ID: "P1"}}
	eng, store, _ := newTestEngine([]domain.Quest{quest}, roster)

	// Unmatched event: P1 arrives at S0, the first stage's trigger location.
	if _, err := eng.HandleEvent(context.Background(), domain.Event{SensorID: "S0", PlayerID: "P1"}); err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}

	progress, ok := store.progress["P1"]
	if !ok {
		t.Fatal("quest not auto-started")
	}
	// The synthetic re-feed consumes the starting trigger.
	if progress.StageIndex != 1 {
		t.Fatalf("stage index = %d, want 1", progress.StageIndex)
	}
	if store.players["P1"].QuestActive != "q1" {
		t.Fatalf("quest active = %q, want q1", store.players["P1"].QuestActive)
	}
}

func TestAutoStartSkipsActiveAndCompleted(t *testing.T) {
	quest := threeStageQuest("q1")
	roster := []domain.RosterPlayer{{ID: "P1"}, {ID: "P2"}}
	eng, store, _ := newTestEngine([]domain.Quest{quest}, roster)
	ctx := context.Background()

	store.players["P1"] = domain.PlayerState{ID: "P1", CurrentLocation: "S0", QuestActive: "other"}
	store.players["P2"] = domain.PlayerState{ID: "P2", CurrentLocation: "S0"}
	if err := store.AddQuestComplete(ctx, "P2", "q1"); err != nil {
		t.Fatal(err)
	}

	if err := eng.TryAutoStart(ctx, "S0"); err != nil {
		t.Fatalf("TryAutoStart: %v", err)
	}
	if len(store.progress) != 0 {
		t.Fatalf("quests started = %v, want none", store.progress)
	}
}

func TestAutoStartRespectsCooldown(t *testing.T) {
	quest := threeStageQuest("q1")
	roster := []domain.RosterPlayer{{ID: "P1"}}
	eng, store, _ := newTestEngine([]domain.Quest{quest}, roster)
	ctx := context.Background()

	store.players["P1"] = domain.PlayerState{ID: "P1", CurrentLocation: "S0"}
	store.cooldowns["q1"] = testNow.Add(time.Minute)

	if err := eng.TryAutoStart(ctx, "S0"); err != nil {
		t.Fatalf("TryAutoStart: %v", err)
	}
	if len(store.progress) != 0 {
		t.Fatal("quest started despite active cooldown")
	}

	store.cooldowns["q1"] = testNow.Add(-time.Minute)
	if err := eng.TryAutoStart(ctx, "S0"); err != nil {
		t.Fatalf("TryAutoStart: %v", err)
	}
	if _, ok := store.progress["P1"]; !ok {
		t.Fatal("quest not started after cooldown expiry")
	}
}

func TestCompletionSynchronous(t *testing.T) {
	quest := domain.Quest{
		ID:    "q1",
		State: "ready",
		Stages: []domain.QuestStage{
			{Name: "only", TriggerType: domain.TriggerLocation, TriggerIDs: []string{"S0"}, Text: "final words", PlaylistName: "credits", NPCName: "Ada"},
		},
	}
	roster := []domain.RosterPlayer{{ID: "P1"}}
	eng, store, sched := newTestEngine([]domain.Quest{quest}, roster)
	ctx := context.Background()

	if _, err := eng.StartQuest(ctx, "P1", "q1"); err != nil {
		t.Fatalf("StartQuest: %v", err)
	}
	if _, err := eng.HandleEvent(ctx, domain.Event{SensorID: "S0", PlayerID: "P1"}); err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}

	progress := store.progress["P1"]
	if !progress.Finished() {
		t.Fatalf("stage index = %d, want %d", progress.StageIndex, domain.StageFinished)
	}
	if progress.Name != domain.QuestCompleteName {
		t.Fatalf("name = %q, want completion sentinel", progress.Name)
	}
	if len(progress.TriggerIDs) != 0 {
		t.Fatalf("trigger ids = %v, want cleared", progress.TriggerIDs)
	}
	if progress.Text != "final words" || progress.PlaylistName != "credits" || progress.NPCName != "Ada" {
		t.Fatalf("terminal snapshot = %+v", progress)
	}

	state := store.players["P1"]
	if state.QuestActive != "" {
		t.Fatalf("quest active = %q, want cleared", state.QuestActive)
	}
	if !store.completed["P1"]["q1"] {
		t.Fatal("quest not merged into completed set")
	}
	if len(sched.scheduled) != 0 {
		t.Fatalf("scheduled = %v, want none", sched.scheduled)
	}
}

func TestCompletionDeferred(t *testing.T) {
	quest := domain.Quest{
		ID:    "q1",
		State: "ready",
		Stages: []domain.QuestStage{
			{Name: "only", TriggerType: domain.TriggerLocation, TriggerIDs: []string{"S0"}, SleepTime: 5},
		},
	}
	roster := []domain.RosterPlayer{{ID: "P1"}}
	eng, store, sched := newTestEngine([]domain.Quest{quest}, roster)
	ctx := context.Background()

	if _, err := eng.StartQuest(ctx, "P1", "q1"); err != nil {
		t.Fatalf("StartQuest: %v", err)
	}
	if _, err := eng.HandleEvent(ctx, domain.Event{SensorID: "S0", PlayerID: "P1"}); err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}

	// The record moves to the sentinel immediately.
	if !store.progress["P1"].Finished() {
		t.Fatal("record not moved to completion sentinel")
	}
	// Player bookkeeping waits for the timer.
	if store.players["P1"].QuestActive != "q1" {
		t.Fatalf("quest active = %q, want still q1", store.players["P1"].QuestActive)
	}
	if store.completed["P1"]["q1"] {
		t.Fatal("quest marked complete before delay elapsed")
	}

	if len(sched.scheduled) != 1 {
		t.Fatalf("scheduled = %d transitions, want 1", len(sched.scheduled))
	}
	pt := sched.scheduled[0]
	if pt.Kind != domain.TransitionComplete {
		t.Fatalf("kind = %s, want complete", pt.Kind)
	}
	if want := testNow.Add(5 * time.Second); !pt.DueAt.Equal(want) {
		t.Fatalf("due at = %v, want %v", pt.DueAt, want)
	}

	if err := eng.ApplyPending(ctx, pt); err != nil {
		t.Fatalf("ApplyPending: %v", err)
	}
	if store.players["P1"].QuestActive != "" {
		t.Fatal("quest active not cleared after firing")
	}
	if !store.completed["P1"]["q1"] {
		t.Fatal("quest not completed after firing")
	}
}

func TestAdvanceDeferred(t *testing.T) {
	quest := threeStageQuest("q1")
	quest.Stages[0].SleepTime = 30
	roster := []domain.RosterPlayer{{ID: "P1"}}
	eng, store, sched := newTestEngine([]domain.Quest{quest}, roster)
	ctx := context.Background()

	if _, err := eng.StartQuest(ctx, "P1", "q1"); err != nil {
		t.Fatalf("StartQuest: %v", err)
	}
	if _, err := eng.HandleEvent(ctx, domain.Event{SensorID: "S0", PlayerID: "P1"}); err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}

	// The transition out of stage 0 is deferred; nothing moves yet.
	if got := store.progress["P1"].StageIndex; got != 0 {
		t.Fatalf("stage index = %d, want still 0", got)
	}
	if len(sched.scheduled) != 1 {
		t.Fatalf("scheduled = %d transitions, want 1", len(sched.scheduled))
	}
	pt := sched.scheduled[0]
	if pt.Kind != domain.TransitionAdvance || pt.StageIndex != 0 {
		t.Fatalf("pending = %+v", pt)
	}

	if err := eng.ApplyPending(ctx, pt); err != nil {
		t.Fatalf("ApplyPending: %v", err)
	}
	progress := store.progress["P1"]
	if progress.StageIndex != 1 {
		t.Fatalf("stage index = %d, want 1", progress.StageIndex)
	}
	if progress.DelaySeconds != 30 {
		t.Fatalf("delay seconds = %d, want the left stage's sleep time", progress.DelaySeconds)
	}
}

func TestApplyPendingStale(t *testing.T) {
	quest := threeStageQuest("q1")
	roster := []domain.RosterPlayer{{ID: "P1"}}
	eng, store, _ := newTestEngine([]domain.Quest{quest}, roster)
	ctx := context.Background()

	if _, err := eng.StartQuest(ctx, "P1", "q1"); err != nil {
		t.Fatalf("StartQuest: %v", err)
	}
	if _, err := eng.HandleEvent(ctx, domain.Event{SensorID: "S0", PlayerID: "P1"}); err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}

	// Armed against stage 0, but the record has moved to stage 1.
	stale := domain.PendingTransition{
		PlayerID: "P1", QuestID: "q1", StageIndex: 0,
		Kind: domain.TransitionAdvance, SensorID: "S0",
	}
	if err := eng.ApplyPending(ctx, stale); err != nil {
		t.Fatalf("ApplyPending: %v", err)
	}
	if got := store.progress["P1"].StageIndex; got != 1 {
		t.Fatalf("stage index = %d, stale transition must not apply", got)
	}

	// Progress deleted entirely: also a silent no-op.
	if err := store.DeleteQuestProgress(ctx, "P1"); err != nil {
		t.Fatal(err)
	}
	if err := eng.ApplyPending(ctx, stale); err != nil {
		t.Fatalf("ApplyPending after delete: %v", err)
	}
}

func TestQuestChaining(t *testing.T) {
	first := domain.Quest{
		ID:    "q1",
		State: "ready",
		Stages: []domain.QuestStage{
			{Name: "only", TriggerType: domain.TriggerLocation, TriggerIDs: []string{"S0"}},
		},
	}
	chained := domain.Quest{
		ID:    "q2",
		State: "ready",
		Stages: []domain.QuestStage{
			{Name: "after q1", TriggerType: domain.TriggerQuest, TriggerIDs: []string{"q1"}},
			{Name: "go on", TriggerType: domain.TriggerLocation, TriggerIDs: []string{"S9"}},
		},
	}
	roster := []domain.RosterPlayer{{ID: "P1"}}
	eng, store, _ := newTestEngine([]domain.Quest{first, chained}, roster)
	ctx := context.Background()

	if _, err := eng.StartQuest(ctx, "P1", "q1"); err != nil {
		t.Fatalf("StartQuest: %v", err)
	}
	if _, err := eng.HandleEvent(ctx, domain.Event{SensorID: "S0", PlayerID: "P1"}); err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}

	progress := store.progress["P1"]
	if progress.QuestID != "q2" {
		t.Fatalf("active quest = %q, want chained q2", progress.QuestID)
	}
	// The synthetic quest-id event consumed the chained quest's first stage.
	if progress.StageIndex != 1 {
		t.Fatalf("stage index = %d, want 1", progress.StageIndex)
	}
	if !store.completed["P1"]["q1"] {
		t.Fatal("first quest not marked complete")
	}
	if store.players["P1"].QuestActive != "q2" {
		t.Fatalf("quest active = %q, want q2", store.players["P1"].QuestActive)
	}
}

func TestRadioSideEffect(t *testing.T) {
	quest := domain.Quest{
		ID:    "q1",
		State: "ready",
		Stages: []domain.QuestStage{
			{Name: "tune in", TriggerType: domain.TriggerLocation, TriggerIDs: []string{"S0"}, RadioID: domain.RadioHome, RadioPlaylistName: "news"},
			{Name: "next", TriggerType: domain.TriggerLocation, TriggerIDs: []string{"S1"}},
		},
	}
	roster := []domain.RosterPlayer{{ID: "P1", HomeRadio: "R44"}, {ID: "P2"}}
	eng, store, _ := newTestEngine([]domain.Quest{quest}, roster)
	ctx := context.Background()

	if _, err := eng.StartQuest(ctx, "P1", "q1"); err != nil {
		t.Fatalf("StartQuest: %v", err)
	}
	if _, err := eng.HandleEvent(ctx, domain.Event{SensorID: "S0", PlayerID: "P1"}); err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	if got := store.radios["R44"]; got != "news" {
		t.Fatalf("radio R44 playlist = %q, want news", got)
	}

	// No home radio: the side effect is skipped, advancement still happens.
	if _, err := eng.StartQuest(ctx, "P2", "q1"); err != nil {
		t.Fatalf("StartQuest P2: %v", err)
	}
	if _, err := eng.HandleEvent(ctx, domain.Event{SensorID: "S0", PlayerID: "P2"}); err != nil {
		t.Fatalf("HandleEvent P2: %v", err)
	}
	if len(store.radios) != 1 {
		t.Fatalf("radios = %v, want only R44", store.radios)
	}
	if got := store.progress["P2"].StageIndex; got != 1 {
		t.Fatalf("stage index = %d, want 1", got)
	}
}

func TestAddFeedback(t *testing.T) {
	eng, store, _ := newTestEngine(nil, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := eng.AddFeedback(ctx, "P1"); err != nil {
			t.Fatalf("AddFeedback: %v", err)
		}
	}
	if got := store.players["P1"].FeedbackCount; got != 3 {
		t.Fatalf("feedback count = %d, want 3", got)
	}

	if _, err := eng.AddFeedback(ctx, ""); !apperrors.IsCode(err, apperrors.CodeInvalidArgument) {
		t.Fatalf("error = %v, want invalid argument", err)
	}
}

func TestProgressNotFound(t *testing.T) {
	eng, _, _ := newTestEngine(nil, nil)
	_, err := eng.Progress(context.Background(), "P1")
	if !apperrors.IsCode(err, apperrors.CodeNotFound) {
		t.Fatalf("error = %v, want not found", err)
	}
	if errors.Is(err, storage.ErrNotFound) {
		t.Fatal("storage sentinel must not leak through the engine")
	}
}

func TestHandleEventsFallsBackWithoutTx(t *testing.T) {
	quest := threeStageQuest("q1")
	roster := []domain.RosterPlayer{{ID: "P1"}}
	eng, store, _ := newTestEngine([]domain.Quest{quest}, roster)
	ctx := context.Background()

	if _, err := eng.StartQuest(ctx, "P1", "q1"); err != nil {
		t.Fatalf("StartQuest: %v", err)
	}
	events := []domain.Event{
		{SensorID: "S0", PlayerID: "P1"},
		{SensorID: "S1", PlayerID: "P1"},
	}
	persisted, err := eng.HandleEvents(ctx, events)
	if err != nil {
		t.Fatalf("HandleEvents: %v", err)
	}
	if len(persisted) != 2 {
		t.Fatalf("persisted = %d events, want 2", len(persisted))
	}
	if got := store.progress["P1"].StageIndex; got != 2 {
		t.Fatalf("stage index = %d, want 2", got)
	}
}
