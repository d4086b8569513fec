package enums

import "fmt"

// PublishStage is the top-level state of a publish session.
type PublishStage string

const (
	PublishStageMetadata    PublishStage = "metadata"
	PublishStageAudioUpload PublishStage = "audio_upload"
	PublishStageCoverUpload PublishStage = "cover_upload"
	PublishStageTierConfig  PublishStage = "tier_config"
	PublishStageDeploy      PublishStage = "deploy"
	PublishStageComplete    PublishStage = "complete"
	PublishStageError       PublishStage = "error"
)

var publishStageOrder = []PublishStage{
	PublishStageMetadata,
	PublishStageAudioUpload,
	PublishStageCoverUpload,
	PublishStageTierConfig,
	PublishStageDeploy,
	PublishStageComplete,
}

// String returns the literal string for the stage.
func (s PublishStage) String() string {
	return string(s)
}

// IsValid reports whether the stage is known.
func (s PublishStage) IsValid() bool {
	if s == PublishStageError {
		return true
	}
	return s.Ordinal() >= 0
}

// IsTerminal reports whether no further transitions are possible.
func (s PublishStage) IsTerminal() bool {
	return s == PublishStageComplete || s == PublishStageError
}

// Ordinal returns the position along the happy path, or -1 for Error/unknown.
func (s PublishStage) Ordinal() int {
	for i, candidate := range publishStageOrder {
		if candidate == s {
			return i
		}
	}
	return -1
}

// Next returns the stage that follows s on the happy path.
func (s PublishStage) Next() (PublishStage, error) {
	idx := s.Ordinal()
	if idx < 0 || idx == len(publishStageOrder)-1 {
		return "", fmt.Errorf("no stage after %q", s)
	}
	return publishStageOrder[idx+1], nil
}
