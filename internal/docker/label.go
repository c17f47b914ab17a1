package docker

import (
	"fmt"
	"strings"
	"time"

	"github.com/shinji-kodama/envboot/internal/model"
)

// Label keys set on every container envboot creates. All keys share the
// "envboot." prefix to avoid collisions with labels set by other tools.
const (
	// LabelPrefix is the common prefix for all envboot labels.
	LabelPrefix = "envboot."

	// LabelManagedBy identifies containers created by envboot.
	// Key: "envboot.managed-by", Value: always ManagedByValue.
	LabelManagedBy = LabelPrefix + "managed-by"

	// LabelStep records which bootstrap step the container runs.
	// Key: "envboot.step", Value: "create", "install" or "launch".
	LabelStep = LabelPrefix + "step"

	// LabelWorkDir records the host project directory mounted into the
	// container. Key: "envboot.workdir", Value: absolute path.
	LabelWorkDir = LabelPrefix + "workdir"

	// LabelRunID ties the containers of one envboot invocation together.
	// Key: "envboot.run-id", Value: a UUID.
	LabelRunID = LabelPrefix + "run-id"

	// LabelCreatedAt records when the container was created.
	// Key: "envboot.created-at", Value: RFC3339 timestamp in UTC.
	LabelCreatedAt = LabelPrefix + "created-at"
)

// ManagedByValue is the value of LabelManagedBy.
const ManagedByValue = "envboot"

// StepLabels is the metadata carried by a step container's labels.
type StepLabels struct {
	Step      model.Step
	WorkDir   string
	RunID     string
	CreatedAt time.Time
}

// BuildLabels returns the label map for a step container.
func BuildLabels(l StepLabels) map[string]string {
	return map[string]string{
		LabelManagedBy: ManagedByValue,
		LabelStep:      l.Step.String(),
		LabelWorkDir:   l.WorkDir,
		LabelRunID:     l.RunID,
		LabelCreatedAt: l.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// ParseLabels is the inverse of BuildLabels. All keys are required; the
// error lists every missing one.
func ParseLabels(labels map[string]string) (*StepLabels, error) {
	required := []string{LabelManagedBy, LabelStep, LabelWorkDir, LabelRunID, LabelCreatedAt}

	var missing []string
	for _, key := range required {
		if _, ok := labels[key]; !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required Docker labels: %s", strings.Join(missing, ", "))
	}

	if labels[LabelManagedBy] != ManagedByValue {
		return nil, fmt.Errorf(
			"label %s has unexpected value %q (expected %q)",
			LabelManagedBy, labels[LabelManagedBy], ManagedByValue,
		)
	}

	createdAt, err := time.Parse(time.RFC3339, labels[LabelCreatedAt])
	if err != nil {
		return nil, fmt.Errorf("invalid label %s: %w", LabelCreatedAt, err)
	}

	return &StepLabels{
		Step:      model.Step(labels[LabelStep]),
		WorkDir:   labels[LabelWorkDir],
		RunID:     labels[LabelRunID],
		CreatedAt: createdAt,
	}, nil
}

// FilterLabels returns the label filters selecting envboot containers, and
// when workDir is non-empty only those of that project.
func FilterLabels(workDir string) map[string]string {
	f := map[string]string{LabelManagedBy: ManagedByValue}
	if workDir != "" {
		f[LabelWorkDir] = workDir
	}
	return f
}
