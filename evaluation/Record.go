package evaluation

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/mat"

	env "github.com/sachinb20/IntExpl4HiddenObject/environment"
)

func init() {
	gob.Register(env.Info{})
}

// Event captures one labeled interaction: the observations and
// environment metadata on either side of an open or take, and the
// step index it happened at.
type Event struct {
	Action env.ActionName
	Step   int

	PrevObservation []float64
	NextObservation []float64
	PrevMetadata    env.Info
	NextMetadata    env.Info
}

// EpisodeRecord accumulates the labeled interactions of one episode in
// one environment slot, serialized at episode end for offline use.
type EpisodeRecord struct {
	Scene   string
	Episode string

	OpenEvents []Event
	TakeEvents []Event

	// CoverageSteps and PickSteps index the steps at which a container
	// was revealed and an object was acquired.
	CoverageSteps []int
	PickSteps     []int

	Reward float64
	Length int
}

// Reset clears the record for the next episode.
func (r *EpisodeRecord) Reset(episode env.Episode) {
	*r = EpisodeRecord{Scene: episode.SceneID, Episode: episode.EpisodeID}
}

// ArtifactName returns the file name an episode's record is saved
// under.
func ArtifactName(episode env.Episode) string {
	return fmt.Sprintf("%s_%s.bin", episode.SceneID, episode.EpisodeID)
}

// Save gob-encodes the record under dir, creating it as needed.
func (r *EpisodeRecord) Save(dir string) error {
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return fmt.Errorf("save: could not create directory: %v", err)
	}

	filename := filepath.Join(dir, ArtifactName(env.Episode{
		SceneID: r.Scene, EpisodeID: r.Episode,
	}))
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("save: could not open save file: %v", err)
	}
	defer file.Close()

	en := gob.NewEncoder(file)
	if err := en.Encode(r); err != nil {
		return fmt.Errorf("save: could not encode episode record: %v", err)
	}
	return nil
}

// LoadRecord reads back an episode record saved by Save.
func LoadRecord(filename string) (*EpisodeRecord, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("loadRecord: could not open file: %v", err)
	}
	defer file.Close()

	var record EpisodeRecord
	de := gob.NewDecoder(file)
	if err := de.Decode(&record); err != nil {
		return nil, fmt.Errorf("loadRecord: could not decode episode "+
			"record: %v", err)
	}
	return &record, nil
}

// vecSlice copies a vector into a plain slice for serialization.
func vecSlice(v mat.Vector) []float64 {
	if v == nil {
		return nil
	}
	out := make([]float64, v.Len())
	for i := range out {
		out[i] = v.AtVec(i)
	}
	return out
}

// infoMetadata pulls a nested metadata map out of a step info payload.
func infoMetadata(info env.Info, key string) env.Info {
	if nested, ok := info[key].(env.Info); ok {
		return nested
	}
	return nil
}
