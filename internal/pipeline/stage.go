package pipeline

import (
	"errors"
	"fmt"
	"sync"
)

// Stage is a step of kiosk start-up
type Stage int

const (
	StageInitializing Stage = iota
	StageResolvingAssets
	StageLoadingLandmarkModel
	StageLoadingBodySegmenter
	StageLoadingHairSegmenter
	StageRequestingCamera
	StageReady
	StageFailed
)

var stageNames = [...]string{
	StageInitializing:         "INITIALIZING",
	StageResolvingAssets:      "RESOLVING_ASSETS",
	StageLoadingLandmarkModel: "LOADING_LANDMARK_MODEL",
	StageLoadingBodySegmenter: "LOADING_BODY_SEGMENTER",
	StageLoadingHairSegmenter: "LOADING_HAIR_SEGMENTER",
	StageRequestingCamera:     "REQUESTING_CAMERA",
	StageReady:                "READY",
	StageFailed:               "FAILED",
}

func (s Stage) String() string {
	if s < 0 || int(s) >= len(stageNames) {
		return fmt.Sprintf("Stage(%d)", int(s))
	}
	return stageNames[s]
}

// Next returns the stage that follows s on the happy path
func (s Stage) Next() (Stage, bool) {
	if s < StageInitializing || s >= StageReady {
		return s, false
	}
	return s + 1, true
}

// Progress returns start-up completion in percent, for the loading screen
func (s Stage) Progress() float64 {
	if s == StageFailed || s < 0 {
		return 0
	}
	return float64(s+1) / float64(StageReady+1) * 100
}

// SegmentationStatus tells whether captures can isolate the head
type SegmentationStatus int

const (
	SegmentationLoading SegmentationStatus = iota
	SegmentationActive
	SegmentationOffline
)

func (s SegmentationStatus) String() string {
	switch s {
	case SegmentationActive:
		return "ACTIVE"
	case SegmentationOffline:
		return "OFFLINE"
	default:
		return "LOADING"
	}
}

// ErrInvalidTransition is returned when a stage is skipped or revisited
var ErrInvalidTransition = errors.New("invalid stage transition")

// Machine tracks start-up. Stages only move forward one at a time; a
// failure is terminal.
type Machine struct {
	mu       sync.RWMutex
	stage    Stage
	err      error
	onChange func(Stage)
}

// NewMachine returns a machine in StageInitializing. onChange, if set, is
// called after every transition, outside the lock.
func NewMachine(onChange func(Stage)) *Machine {
	return &Machine{stage: StageInitializing, onChange: onChange}
}

// Stage returns the current stage
func (m *Machine) Stage() Stage {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stage
}

// Err returns the failure cause once the machine is in StageFailed
func (m *Machine) Err() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.err
}

// Ready reports whether frames may be processed
func (m *Machine) Ready() bool {
	return m.Stage() == StageReady
}

// Advance moves to the next stage; to must be exactly that stage
func (m *Machine) Advance(to Stage) error {
	m.mu.Lock()
	next, ok := m.stage.Next()
	if !ok || next != to {
		from := m.stage
		m.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	m.stage = to
	m.mu.Unlock()

	m.notify(to)
	return nil
}

// Fail moves to StageFailed and records err. Failing twice keeps the first
// cause.
func (m *Machine) Fail(err error) {
	m.mu.Lock()
	if m.stage == StageFailed {
		m.mu.Unlock()
		return
	}
	m.stage = StageFailed
	m.err = err
	m.mu.Unlock()

	m.notify(StageFailed)
}

func (m *Machine) notify(s Stage) {
	if m.onChange != nil {
		m.onChange(s)
	}
}
