package cwstatsd

import (
	"context"
	"strings"
)

// Instance represents the host this process is running on.
type Instance struct {
	ID               string
	Region           string
	AvailabilityZone string
	Type             string
	PrivateIP        IP
	Tags             map[string]string
}

// AutoScalingGroupTag is the tag EC2 puts on instances launched by an auto scaling group.
const AutoScalingGroupTag = "aws:autoscaling:groupName"

// HostProvider provides information about the host this process runs on.
type HostProvider interface {
	// Name returns the name of the provider.
	Name() string
	// SelfInstance returns the description of the local host.
	SelfInstance(ctx context.Context) (*Instance, error)
}

// AutoScalingGroup returns the name of the auto scaling group the instance belongs to, if any.
func (i *Instance) AutoScalingGroup() string {
	if i == nil {
		return ""
	}
	if asg, ok := i.Tags[AutoScalingGroupTag]; ok {
		return asg
	}
	// Keys read from config files are lower cased.
	return i.Tags[strings.ToLower(AutoScalingGroupTag)]
}
