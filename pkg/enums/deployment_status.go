package enums

import "fmt"

// DeploymentStatus tracks a deploy attempt in the deployments ledger.
type DeploymentStatus string

const (
	DeploymentStatusInProgress DeploymentStatus = "in_progress"
	DeploymentStatusComplete   DeploymentStatus = "complete"
	DeploymentStatusFailed     DeploymentStatus = "failed"
)

var validDeploymentStatuses = []DeploymentStatus{
	DeploymentStatusInProgress,
	DeploymentStatusComplete,
	DeploymentStatusFailed,
}

// String returns the literal string for the status.
func (d DeploymentStatus) String() string {
	return string(d)
}

// IsValid reports whether the status is known.
func (d DeploymentStatus) IsValid() bool {
	for _, candidate := range validDeploymentStatuses {
		if candidate == d {
			return true
		}
	}
	return false
}

// ParseDeploymentStatus converts raw input into a DeploymentStatus.
func ParseDeploymentStatus(value string) (DeploymentStatus, error) {
	for _, candidate := range validDeploymentStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid deployment status %q", value)
}
