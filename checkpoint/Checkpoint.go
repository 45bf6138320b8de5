// Package checkpoint persists and restores training state. A
// checkpoint bundles the serialized policy weights with the run
// configuration and enough bookkeeping to resume a run or identify
// where a saved policy came from.
package checkpoint

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Checkpoint is a point-in-time capture of a training run.
type Checkpoint struct {
	// PolicyState is the opaque serialized policy, produced by the
	// policy's own state encoder.
	PolicyState []byte

	// Config is the JSON run configuration the checkpoint was produced
	// under.
	Config []byte

	// UpdateIndex is the policy update the checkpoint was taken during.
	UpdateIndex int

	// StepCount is the cumulative number of environment transitions
	// consumed when the checkpoint was taken.
	StepCount int

	// RunID identifies the run across its checkpoints.
	RunID uuid.UUID

	// WallTime records when the checkpoint was taken.
	WallTime time.Time
}

// Save writes the checkpoint to filename with gob, creating parent
// directories as needed.
func (c *Checkpoint) Save(filename string) error {
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, os.ModePerm); err != nil {
			return fmt.Errorf("save: could not create directory: %v", err)
		}
	}

	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("save: could not open save file: %v", err)
	}
	defer file.Close()

	en := gob.NewEncoder(file)
	if err := en.Encode(c); err != nil {
		return fmt.Errorf("save: could not encode checkpoint: %v", err)
	}
	return nil
}

// Load reads a checkpoint saved by Save.
func Load(filename string) (*Checkpoint, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("load: could not open file: %v", err)
	}
	defer file.Close()

	var c Checkpoint
	de := gob.NewDecoder(file)
	if err := de.Decode(&c); err != nil {
		return nil, fmt.Errorf("load: could not decode checkpoint: %v", err)
	}
	return &c, nil
}

// FilenameEnumerator returns a function producing enumerated
// checkpoint filenames under dir: ckpt.{start}.bin, ckpt.{start+1}.bin
// and so on, one per call.
func FilenameEnumerator(dir string, start int) func() string {
	i := start
	return func() string {
		name := filepath.Join(dir, fmt.Sprintf("ckpt.%d.bin", i))
		i++
		return name
	}
}

// Filename returns the checkpoint filename for a given sequence number
// under dir.
func Filename(dir string, seq int) string {
	return filepath.Join(dir, fmt.Sprintf("ckpt.%d.bin", seq))
}
