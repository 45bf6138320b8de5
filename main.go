// Command intexpl trains a policy to find hidden objects and runs the
// intervention-guided evaluations that mine interaction trajectories
// from it.
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/sachinb20/IntExpl4HiddenObject/agent/linear"
	env "github.com/sachinb20/IntExpl4HiddenObject/environment"
	"github.com/sachinb20/IntExpl4HiddenObject/environment/hiddenobject"
	"github.com/sachinb20/IntExpl4HiddenObject/evaluation"
	"github.com/sachinb20/IntExpl4HiddenObject/trainer"
)

// runConfig is the JSON configuration of a run: the room layout, the
// episode schedule, the policy hyperparameters, and the training loop
// settings.
type runConfig struct {
	NumEnvs int `json:"numEnvs"`

	Receptacles int `json:"receptacles"`
	TargetAt    int `json:"targetAt"`
	BonusAt     int `json:"bonusAt"`
	Cutoff      int `json:"cutoff"`

	Scenes           []string `json:"scenes"`
	EpisodesPerScene int      `json:"episodesPerScene"`

	Seed              uint64  `json:"seed"`
	LearningRate      float64 `json:"learningRate"`
	ValueLearningRate float64 `json:"valueLearningRate"`
	ClipParam         float64 `json:"clipParam"`

	Trainer trainer.Config `json:"trainer"`
}

func (c runConfig) validate() error {
	if c.NumEnvs < 1 {
		return fmt.Errorf("validate: numEnvs must be positive, have %d",
			c.NumEnvs)
	}
	if len(c.Scenes) == 0 {
		return fmt.Errorf("validate: no scenes configured")
	}
	if c.EpisodesPerScene < 1 {
		return fmt.Errorf("validate: episodesPerScene must be positive, "+
			"have %d", c.EpisodesPerScene)
	}
	return nil
}

// loadConfig reads a runConfig from a JSON file.
func loadConfig(filename string) (runConfig, error) {
	var config runConfig
	data, err := os.ReadFile(filename)
	if err != nil {
		return config, fmt.Errorf("loadConfig: %v", err)
	}
	if err := json.Unmarshal(data, &config); err != nil {
		return config, fmt.Errorf("loadConfig: %v", err)
	}
	if err := config.validate(); err != nil {
		return config, fmt.Errorf("loadConfig: %v", err)
	}
	return config, nil
}

// episodeSchedule expands the configured scenes into per-environment
// episode identities, round-robin across environments.
func episodeSchedule(config runConfig, numEnvs, slot int) []env.Episode {
	var episodes []env.Episode
	for i, scene := range config.Scenes {
		if i%numEnvs != slot {
			continue
		}
		for j := 0; j < config.EpisodesPerScene; j++ {
			episodes = append(episodes, env.Episode{
				SceneID:   scene,
				EpisodeID: fmt.Sprintf("%d", j),
			})
		}
	}
	return episodes
}

// buildBatch constructs the vectorized rooms for a run.
func buildBatch(config runConfig, task hiddenobject.Task, numEnvs int,
	actions *env.ActionSet) (env.VecEnv, error) {

	rooms := make([]env.Env, numEnvs)
	for i := range rooms {
		episodes := episodeSchedule(config, numEnvs, i)
		if len(episodes) == 0 {
			return nil, fmt.Errorf("buildBatch: no episodes for "+
				"environment %d, need at least %d scenes", i, numEnvs)
		}
		room, err := hiddenobject.New(task, hiddenobject.Config{
			Receptacles: config.Receptacles,
			TargetAt:    config.TargetAt,
			BonusAt:     config.BonusAt,
			Cutoff:      config.Cutoff,
			Episodes:    episodes,
			Actions:     actions,
		})
		if err != nil {
			return nil, fmt.Errorf("buildBatch: %v", err)
		}
		rooms[i] = room
	}
	return env.NewSyncVecEnv(rooms)
}

// buildOptimizer constructs the policy and its optimizer for a batch.
func buildOptimizer(config runConfig, batch env.VecEnv) (*linear.Reinforce,
	error) {

	policy, err := linear.NewSoftmax(batch.ObservationSize(),
		batch.ActionCount(), config.Seed)
	if err != nil {
		return nil, fmt.Errorf("buildOptimizer: %v", err)
	}
	return linear.NewReinforce(policy, linear.ReinforceConfig{
		LearningRate:      config.LearningRate,
		ValueLearningRate: config.ValueLearningRate,
		ClipParam:         config.ClipParam,
	})
}

func train(configFile string) error {
	config, err := loadConfig(configFile)
	if err != nil {
		return err
	}

	batch, err := buildBatch(config, hiddenobject.NewInteractionTask(),
		config.NumEnvs, env.FullActionSet())
	if err != nil {
		return err
	}
	optimizer, err := buildOptimizer(config, batch)
	if err != nil {
		return err
	}

	loop, err := trainer.NewLoop(batch, optimizer, config.Trainer)
	if err != nil {
		return err
	}
	log.Printf("training for %d updates of %d steps across %d environments",
		config.Trainer.TotalUpdates, config.Trainer.NumSteps, config.NumEnvs)
	return loop.Run()
}

func evaluate(configFile, variantTag, checkpointFile, outputDir string,
	episodes int) error {

	config, err := loadConfig(configFile)
	if err != nil {
		return err
	}
	variant, err := evaluation.ParseVariant(variantTag)
	if err != nil {
		return err
	}

	// Only the autonomous variant samples take and put itself; the
	// scripted variants restrict the policy to navigation and leave
	// acquisition to the probes.
	task := hiddenobject.NewInteractionTask()
	actions := env.FullActionSet()
	switch variant {
	case evaluation.ScriptedInterleave:
		actions = env.NavigationActionSet()
	case evaluation.ScriptedProbe:
		task = hiddenobject.NewCoverageTask()
		actions = env.NavigationActionSet()
	}

	batch, err := buildBatch(config, task, 1, actions)
	if err != nil {
		return err
	}
	policy, err := linear.NewSoftmax(batch.ObservationSize(),
		batch.ActionCount(), config.Seed)
	if err != nil {
		return err
	}

	evaluator, err := evaluation.New(batch, policy, evaluation.Config{
		Variant:        variant,
		TargetEpisodes: episodes,
		CheckpointFile: checkpointFile,
		OutputDir:      outputDir,
		Actions:        actions,
		Seed:           config.Seed,
	})
	if err != nil {
		return err
	}

	mean, err := evaluator.Run()
	if err != nil {
		return err
	}
	log.Printf("artifacts written to %s, mean reward %.3f",
		evaluator.ArtifactDir(), mean)
	return nil
}

func main() {
	if err := godotenv.Load(); err == nil {
		log.Println("loaded environment from .env")
	}

	var configFile string

	rootCmd := &cobra.Command{
		Use:   "intexpl",
		Short: "Train and probe hidden-object exploration policies",
	}
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c",
		"config.json", "run configuration file")

	trainCmd := &cobra.Command{
		Use:   "train",
		Short: "Run the on-policy training loop",
		RunE: func(cmd *cobra.Command, args []string) error {
			return train(configFile)
		},
	}

	var (
		variantTag     string
		checkpointFile string
		outputDir      string
		episodes       int
	)
	evalCmd := &cobra.Command{
		Use:   "eval",
		Short: "Evaluate a checkpoint with one intervention variant",
		RunE: func(cmd *cobra.Command, args []string) error {
			return evaluate(configFile, variantTag, checkpointFile,
				outputDir, episodes)
		},
	}
	evalCmd.Flags().StringVar(&variantTag, "variant", "E2E",
		"intervention variant: E2E, HYBRID, or OBCOV")
	evalCmd.Flags().StringVar(&checkpointFile, "checkpoint", "",
		"checkpoint to evaluate; untrained policy when absent")
	evalCmd.Flags().StringVar(&outputDir, "out", ".",
		"root directory for episode artifacts")
	evalCmd.Flags().IntVar(&episodes, "episodes", 10,
		"number of episodes to record")

	rootCmd.AddCommand(trainCmd)
	rootCmd.AddCommand(evalCmd)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
