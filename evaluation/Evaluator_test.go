package evaluation

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"gonum.org/v1/gonum/mat"

	env "github.com/sachinb20/IntExpl4HiddenObject/environment"
	"github.com/sachinb20/IntExpl4HiddenObject/environment/hiddenobject"
)

// scriptedPolicy replays a fixed action sequence, cycling when it runs
// out. It keeps evaluation tests deterministic.
type scriptedPolicy struct {
	sequence []int
	pos      int
	eval     bool
}

func (p *scriptedPolicy) Act(obs []mat.Vector, hidden []*mat.VecDense,
	prevActions []int, masks []float64, deterministic bool) ([]float64,
	[]int, []float64, []*mat.VecDense, error) {

	n := len(obs)
	actions := make([]int, n)
	for i := range actions {
		actions[i] = p.sequence[p.pos%len(p.sequence)]
		p.pos++
	}
	return make([]float64, n), actions, make([]float64, n), hidden, nil
}

func (p *scriptedPolicy) GetValue(obs []mat.Vector, hidden []*mat.VecDense,
	prevActions []int, masks []float64) ([]float64, error) {
	return make([]float64, len(obs)), nil
}

func (p *scriptedPolicy) HiddenSize() int { return 1 }

func (p *scriptedPolicy) Eval()        { p.eval = true }
func (p *scriptedPolicy) Train()       { p.eval = false }
func (p *scriptedPolicy) IsEval() bool { return p.eval }

func (p *scriptedPolicy) StateDict() ([]byte, error) { return nil, nil }
func (p *scriptedPolicy) LoadStateDict([]byte) error { return nil }
func (p *scriptedPolicy) NumParameters() int         { return 0 }

// spyVecEnv records every scripted act call passing through it.
type spyVecEnv struct {
	env.VecEnv
	actNames []env.ActionName
}

func (s *spyVecEnv) Act(name env.ActionName) (env.ActResult, error) {
	s.actNames = append(s.actNames, name)
	return s.VecEnv.Act(name)
}

// newEvalBatch builds a single-room batch wrapped in an act spy.
func newEvalBatch(t *testing.T, task hiddenobject.Task, targetAt, bonusAt,
	cutoff int, episodes []env.Episode) *spyVecEnv {
	t.Helper()

	room, err := hiddenobject.New(task, hiddenobject.Config{
		Receptacles: 2,
		TargetAt:    targetAt,
		BonusAt:     bonusAt,
		Cutoff:      cutoff,
		Episodes:    episodes,
		Actions:     env.FullActionSet(),
	})
	if err != nil {
		t.Fatal(err)
	}
	batch, err := env.NewSyncVecEnv([]env.Env{room})
	if err != nil {
		t.Fatal(err)
	}
	return &spyVecEnv{VecEnv: batch}
}

func actionIndex(t *testing.T, name env.ActionName) int {
	t.Helper()
	idx, err := env.FullActionSet().Index(name)
	if err != nil {
		t.Fatal(err)
	}
	return idx
}

// TestVariantTags checks the variant tag round trip.
func TestVariantTags(t *testing.T) {
	for _, variant := range []Variant{Autonomous, ScriptedInterleave,
		ScriptedProbe} {
		parsed, err := ParseVariant(variant.String())
		if err != nil {
			t.Fatal(err)
		}
		if parsed != variant {
			t.Errorf("tag %q parsed to %v", variant.String(), parsed)
		}
	}
	if _, err := ParseVariant("RANDOM"); err == nil {
		t.Error("expected error for unknown variant tag")
	}
}

// TestAutonomousLabelsWithoutActing runs the observe-only variant over
// one episode in which the policy itself takes the hidden bonus object
// and then reveals and takes the target. The variant must label the
// policy's own successes, write an artifact, and never issue a
// scripted act.
func TestAutonomousLabelsWithoutActing(t *testing.T) {
	episodes := []env.Episode{
		{SceneID: "FloorPlan1", EpisodeID: "0"},
		{SceneID: "FloorPlan1", EpisodeID: "1"},
	}
	batch := newEvalBatch(t, hiddenobject.NewInteractionTask(), 1, 0, 20,
		episodes)

	// Open the bonus receptacle, take and put back the bonus object,
	// then walk to the target receptacle, open it, and take the target.
	policy := &scriptedPolicy{sequence: []int{
		actionIndex(t, env.Open),
		actionIndex(t, env.Take),
		actionIndex(t, env.Put),
		actionIndex(t, env.TurnRight),
		actionIndex(t, env.Forward),
		actionIndex(t, env.TurnLeft),
		actionIndex(t, env.Open),
		actionIndex(t, env.Take),
	}}

	dir := t.TempDir()
	evaluator, err := New(batch, policy, Config{
		Variant:        Autonomous,
		TargetEpisodes: 1,
		OutputDir:      dir,
		Actions:        env.FullActionSet(),
	})
	if err != nil {
		t.Fatal(err)
	}

	mean, err := evaluator.Run()
	if err != nil {
		t.Fatal(err)
	}
	// 5.0 bonus take + 1.0 target reveal + 2.0 target take.
	if math.Abs(mean-8.0) > 1e-12 {
		t.Errorf("expected mean reward 8.0, got %v", mean)
	}

	if len(batch.actNames) != 0 {
		t.Errorf("observe-only variant issued %d scripted acts",
			len(batch.actNames))
	}

	artifact := filepath.Join(dir, "E2E_rollouts", "FloorPlan1_0.bin")
	record, err := LoadRecord(artifact)
	if err != nil {
		t.Fatal(err)
	}
	if len(record.OpenEvents) != 1 || record.OpenEvents[0].Action != env.Open {
		t.Errorf("expected 1 open event, got %+v", record.OpenEvents)
	}
	if len(record.TakeEvents) != 1 {
		t.Errorf("expected 1 take event, got %d", len(record.TakeEvents))
	}
	// The bonus take happened at step 1, the target reveal at step 6.
	if len(record.PickSteps) != 1 || record.PickSteps[0] != 1 {
		t.Errorf("unexpected pick steps %v", record.PickSteps)
	}
	if len(record.CoverageSteps) != 1 || record.CoverageSteps[0] != 6 {
		t.Errorf("unexpected coverage steps %v", record.CoverageSteps)
	}
	if record.Length != 8 {
		t.Errorf("expected episode length 8, got %d", record.Length)
	}
}

// TestScriptedProbeSequence runs the coverage variant: the policy only
// opens the hiding receptacle, and the probe must issue exactly
// open/take/put/close before replaying the sampled action.
func TestScriptedProbeSequence(t *testing.T) {
	episodes := []env.Episode{
		{SceneID: "FloorPlan2", EpisodeID: "0"},
		{SceneID: "FloorPlan2", EpisodeID: "1"},
	}
	batch := newEvalBatch(t, hiddenobject.NewCoverageTask(), 0, -1, 20,
		episodes)

	policy := &scriptedPolicy{sequence: []int{actionIndex(t, env.Open)}}

	dir := t.TempDir()
	evaluator, err := New(batch, policy, Config{
		Variant:        ScriptedProbe,
		TargetEpisodes: 1,
		OutputDir:      dir,
		Actions:        env.FullActionSet(),
	})
	if err != nil {
		t.Fatal(err)
	}

	mean, err := evaluator.Run()
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(mean-1.0) > 1e-12 {
		t.Errorf("expected mean reward 1.0, got %v", mean)
	}

	want := []env.ActionName{env.Open, env.Take, env.Put, env.Close}
	if len(batch.actNames) != len(want) {
		t.Fatalf("expected %d scripted acts, got %v", len(want),
			batch.actNames)
	}
	for i, name := range want {
		if batch.actNames[i] != name {
			t.Errorf("scripted act %d: expected %q, got %q", i, name,
				batch.actNames[i])
		}
	}

	// Probe artifacts land directly in the output root.
	record, err := LoadRecord(filepath.Join(dir, "FloorPlan2_0.bin"))
	if err != nil {
		t.Fatal(err)
	}
	if len(record.CoverageSteps) != 1 || record.CoverageSteps[0] != 0 {
		t.Errorf("unexpected coverage steps %v", record.CoverageSteps)
	}
	if len(record.TakeEvents) != 1 || !hasPickStep(record, 0) {
		t.Errorf("expected 1 take event at step 0, got %+v",
			record.TakeEvents)
	}
	// The first open already revealed the target, so the probe's own
	// open attempt failed and was not logged.
	if len(record.OpenEvents) != 0 {
		t.Errorf("unexpected open events %+v", record.OpenEvents)
	}
	// The replayed sampled action counts as a second step.
	if record.Length != 2 {
		t.Errorf("expected episode length 2, got %d", record.Length)
	}
}

func hasPickStep(record *EpisodeRecord, step int) bool {
	for _, s := range record.PickSteps {
		if s == step {
			return true
		}
	}
	return false
}

// TestScriptedInterleaveStallRecovery runs the interleave variant with
// a policy that repeats the same successful turn forever. After five
// identical (action, success) pairs the recovery maneuver must inject
// 1-3 right turns and 4 forced forward moves.
func TestScriptedInterleaveStallRecovery(t *testing.T) {
	episodes := []env.Episode{
		{SceneID: "FloorPlan3", EpisodeID: "0"},
		{SceneID: "FloorPlan3", EpisodeID: "1"},
	}
	batch := newEvalBatch(t, hiddenobject.NewInteractionTask(), 1, -1, 8,
		episodes)

	policy := &scriptedPolicy{sequence: []int{actionIndex(t, env.TurnLeft)}}

	evaluator, err := New(batch, policy, Config{
		Variant:        ScriptedInterleave,
		TargetEpisodes: 1,
		OutputDir:      t.TempDir(),
		Actions:        env.FullActionSet(),
		Seed:           7,
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := evaluator.Run(); err != nil {
		t.Fatal(err)
	}

	turns, forwards := 0, 0
	for _, name := range batch.actNames {
		switch name {
		case env.TurnRight:
			turns++
		case env.Forward:
			forwards++
		}
	}
	if turns < 1 || turns > 3 {
		t.Errorf("expected 1-3 recovery turns, got %d", turns)
	}
	if forwards != 4 {
		t.Errorf("expected 4 forced forward moves, got %d", forwards)
	}
}

// TestScriptedInterleaveProbesAfterSuccess checks that the interleave
// variant appends a take/put/close probe after a successful open and
// labels the extracted object.
func TestScriptedInterleaveProbesAfterSuccess(t *testing.T) {
	episodes := []env.Episode{
		{SceneID: "FloorPlan4", EpisodeID: "0"},
		{SceneID: "FloorPlan4", EpisodeID: "1"},
	}
	batch := newEvalBatch(t, hiddenobject.NewInteractionTask(), 0, -1, 6,
		episodes)

	// A single open in front of the hiding receptacle. The probe's take
	// acquires the target, so the next sampled step ends the episode.
	policy := &scriptedPolicy{sequence: []int{
		actionIndex(t, env.Open),
		actionIndex(t, env.Up),
	}}

	dir := t.TempDir()
	evaluator, err := New(batch, policy, Config{
		Variant:        ScriptedInterleave,
		TargetEpisodes: 1,
		OutputDir:      dir,
		Actions:        env.FullActionSet(),
		Seed:           3,
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := evaluator.Run(); err != nil {
		t.Fatal(err)
	}

	if len(batch.actNames) < 3 {
		t.Fatalf("expected probe acts, got %v", batch.actNames)
	}
	if batch.actNames[0] != env.Take || batch.actNames[1] != env.Put ||
		batch.actNames[2] != env.Close {
		t.Errorf("expected take/put/close probe, got %v", batch.actNames[:3])
	}

	record, err := LoadRecord(filepath.Join(dir, "Hybrid_rollouts",
		"FloorPlan4_0.bin"))
	if err != nil {
		t.Fatal(err)
	}
	if len(record.OpenEvents) != 1 {
		t.Errorf("expected 1 open event, got %d", len(record.OpenEvents))
	}
	if len(record.TakeEvents) != 1 {
		t.Errorf("expected 1 probe take event, got %d",
			len(record.TakeEvents))
	}
}

// TestEvaluatorRejectsBatches checks the single-environment
// precondition of the intervention logic.
func TestEvaluatorRejectsBatches(t *testing.T) {
	rooms := make([]env.Env, 2)
	for i := range rooms {
		room, err := hiddenobject.New(hiddenobject.NewInteractionTask(),
			hiddenobject.Config{
				Receptacles: 2,
				TargetAt:    0,
				BonusAt:     -1,
				Cutoff:      4,
				Episodes:    []env.Episode{{SceneID: "F", EpisodeID: "0"}},
				Actions:     env.FullActionSet(),
			})
		if err != nil {
			t.Fatal(err)
		}
		rooms[i] = room
	}
	batch, err := env.NewSyncVecEnv(rooms)
	if err != nil {
		t.Fatal(err)
	}

	_, err = New(batch, &scriptedPolicy{sequence: []int{0}}, Config{
		Variant:        Autonomous,
		TargetEpisodes: 1,
		OutputDir:      t.TempDir(),
		Actions:        env.FullActionSet(),
	})
	if err == nil {
		t.Error("expected error for multi-environment batch")
	}
}

// TestEvaluatorRetiresRecordedEpisodes checks that an environment whose
// next scheduled episode was already recorded is retired, ending the
// run early with fewer episodes than targeted.
func TestEvaluatorRetiresRecordedEpisodes(t *testing.T) {
	// A single scheduled episode: after recording it once, the
	// environment cycles back to the same identity and must be retired.
	episodes := []env.Episode{{SceneID: "FloorPlan5", EpisodeID: "0"}}
	batch := newEvalBatch(t, hiddenobject.NewInteractionTask(), 0, -1, 3,
		episodes)

	policy := &scriptedPolicy{sequence: []int{actionIndex(t, env.Up)}}

	evaluator, err := New(batch, policy, Config{
		Variant:        Autonomous,
		TargetEpisodes: 5,
		OutputDir:      t.TempDir(),
		Actions:        env.FullActionSet(),
	})
	if err != nil {
		t.Fatal(err)
	}

	mean, err := evaluator.Run()
	if err != nil {
		t.Fatal(err)
	}
	if math.IsNaN(mean) {
		t.Error("expected a mean over the one completed episode")
	}
	if batch.NumEnvs() != 0 {
		t.Errorf("expected retired batch, %d environments still active",
			batch.NumEnvs())
	}
}

// TestEvaluatorMissingCheckpointWarns checks that evaluation proceeds
// with the untrained policy when the named checkpoint does not exist.
func TestEvaluatorMissingCheckpointWarns(t *testing.T) {
	episodes := []env.Episode{{SceneID: "FloorPlan6", EpisodeID: "0"}}
	batch := newEvalBatch(t, hiddenobject.NewInteractionTask(), 0, -1, 3,
		episodes)

	policy := &scriptedPolicy{sequence: []int{actionIndex(t, env.Up)}}

	evaluator, err := New(batch, policy, Config{
		Variant:        Autonomous,
		TargetEpisodes: 1,
		CheckpointFile: filepath.Join(t.TempDir(), "ckpt.0.bin"),
		OutputDir:      t.TempDir(),
		Actions:        env.FullActionSet(),
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := evaluator.Run(); err != nil {
		t.Fatal(err)
	}
	if !policy.IsEval() {
		t.Error("policy was not switched to evaluation mode")
	}
}

// TestPausePreservesAlignment removes the middle slot of a three-slot
// batch and checks every co-indexed array keeps its alignment.
func TestPausePreservesAlignment(t *testing.T) {
	rooms := make([]env.Env, 3)
	for i := range rooms {
		room, err := hiddenobject.New(hiddenobject.NewInteractionTask(),
			hiddenobject.Config{
				Receptacles: 2,
				TargetAt:    0,
				BonusAt:     -1,
				Cutoff:      4,
				Episodes:    []env.Episode{{SceneID: "F", EpisodeID: "0"}},
				Actions:     env.FullActionSet(),
			})
		if err != nil {
			t.Fatal(err)
		}
		rooms[i] = room
	}
	batch, err := env.NewSyncVecEnv(rooms)
	if err != nil {
		t.Fatal(err)
	}

	obs, err := batch.Reset()
	if err != nil {
		t.Fatal(err)
	}
	state := newBatchState(obs, 1)
	for i := 0; i < 3; i++ {
		state.hidden[i].SetVec(0, float64(i))
		state.masks[i] = float64(i)
		state.prevActions[i] = i
		state.cumulativeReward[i] = float64(i) * 10.0
	}

	if err := state.pause(batch, 1); err != nil {
		t.Fatal(err)
	}

	if batch.NumEnvs() != 2 || state.numEnvs() != 2 {
		t.Fatalf("expected 2 slots after pause, have batch %d, state %d",
			batch.NumEnvs(), state.numEnvs())
	}
	wantSlots := []int{0, 2}
	for i, slot := range wantSlots {
		if state.hidden[i].AtVec(0) != float64(slot) {
			t.Errorf("hidden slot %d misaligned", i)
		}
		if state.masks[i] != float64(slot) {
			t.Errorf("mask slot %d misaligned", i)
		}
		if state.prevActions[i] != slot {
			t.Errorf("previous action slot %d misaligned", i)
		}
		if state.cumulativeReward[i] != float64(slot)*10.0 {
			t.Errorf("reward accumulator slot %d misaligned", i)
		}
	}
}

// TestOsArtifactDirCreated checks artifact directories are created on
// first save.
func TestOsArtifactDirCreated(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")
	record := &EpisodeRecord{Scene: "FloorPlan7", Episode: "3", Reward: 2.5}
	if err := record.Save(dir); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(dir, "FloorPlan7_3.bin")); err != nil {
		t.Fatal(err)
	}
}
