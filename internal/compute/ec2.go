package compute

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
)

// ec2API is the internal interface for the EC2 operations the handle needs.
type ec2API interface {
	DescribeInstances(ctx context.Context, params *ec2.DescribeInstancesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error)
	StartInstances(ctx context.Context, params *ec2.StartInstancesInput, optFns ...func(*ec2.Options)) (*ec2.StartInstancesOutput, error)
	StopInstances(ctx context.Context, params *ec2.StopInstancesInput, optFns ...func(*ec2.Options)) (*ec2.StopInstancesOutput, error)
}

// EC2Config configures an EC2-backed handle.
type EC2Config struct {
	InstanceID  string
	Environment Environment
	DeviceClass DeviceClass
}

// EC2Handle implements Handle against the AWS EC2 API.
type EC2Handle struct {
	api ec2API
	cfg EC2Config
}

// NewEC2Handle creates a handle for a single EC2 instance.
func NewEC2Handle(api ec2API, cfg EC2Config) *EC2Handle {
	return &EC2Handle{api: api, cfg: cfg}
}

// NewEC2Client builds an EC2 client from the ambient AWS credential chain.
func NewEC2Client(ctx context.Context, region string) (*ec2.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return ec2.NewFromConfig(awsCfg), nil
}

// Describe returns the current power state and address of the instance.
func (h *EC2Handle) Describe(ctx context.Context) (*Instance, error) {
	out, err := h.api.DescribeInstances(ctx, &ec2.DescribeInstancesInput{
		InstanceIds: []string{h.cfg.InstanceID},
	})
	if err != nil {
		return nil, fmt.Errorf("describe instance %s: %w", h.cfg.InstanceID, err)
	}

	if len(out.Reservations) == 0 || len(out.Reservations[0].Instances) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, h.cfg.InstanceID)
	}

	ec2Inst := out.Reservations[0].Instances[0]

	inst := &Instance{
		ID:          h.cfg.InstanceID,
		State:       powerStateFromEC2(ec2Inst.State),
		Environment: h.cfg.Environment,
		DeviceClass: h.cfg.DeviceClass,
	}
	if inst.State == StateRunning {
		inst.Address = aws.ToString(ec2Inst.PublicIpAddress)
	}

	return inst, nil
}

// Start requests power-on. No-op when the instance is already running or
// on its way up.
func (h *EC2Handle) Start(ctx context.Context) error {
	inst, err := h.Describe(ctx)
	if err != nil {
		return err
	}

	switch inst.State {
	case StateRunning, StatePending:
		return nil
	case StateUnknown:
		return &TransitionError{
			InstanceID: h.cfg.InstanceID,
			Requested:  "start",
			State:      inst.State,
			Err:        errors.New("instance is in a terminal state"),
		}
	}

	if _, err := h.api.StartInstances(ctx, &ec2.StartInstancesInput{
		InstanceIds: []string{h.cfg.InstanceID},
	}); err != nil {
		return &TransitionError{
			InstanceID: h.cfg.InstanceID,
			Requested:  "start",
			State:      inst.State,
			Err:        err,
		}
	}

	return nil
}

// Stop requests power-off. No-op when the instance is already stopped or
// on its way down.
func (h *EC2Handle) Stop(ctx context.Context) error {
	inst, err := h.Describe(ctx)
	if err != nil {
		return err
	}

	switch inst.State {
	case StateStopped, StateStopping:
		return nil
	case StateUnknown:
		return &TransitionError{
			InstanceID: h.cfg.InstanceID,
			Requested:  "stop",
			State:      inst.State,
			Err:        errors.New("instance is in a terminal state"),
		}
	}

	if _, err := h.api.StopInstances(ctx, &ec2.StopInstancesInput{
		InstanceIds: []string{h.cfg.InstanceID},
	}); err != nil {
		return &TransitionError{
			InstanceID: h.cfg.InstanceID,
			Requested:  "stop",
			State:      inst.State,
			Err:        err,
		}
	}

	return nil
}

// powerStateFromEC2 maps the provider state to a PowerState. Terminal states
// (terminated, shutting-down) map to unknown; start/stop reject them.
func powerStateFromEC2(s *ec2types.InstanceState) PowerState {
	if s == nil {
		return StateUnknown
	}
	switch s.Name {
	case ec2types.InstanceStateNameStopped:
		return StateStopped
	case ec2types.InstanceStateNamePending:
		return StatePending
	case ec2types.InstanceStateNameRunning:
		return StateRunning
	case ec2types.InstanceStateNameStopping:
		return StateStopping
	default:
		return StateUnknown
	}
}
