package compute

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEC2 is a hand-rolled ec2API fake with call recording.
type fakeEC2 struct {
	state      ec2types.InstanceStateName
	address    string
	startErr   error
	stopErr    error
	startCalls int
	stopCalls  int
}

func (f *fakeEC2) DescribeInstances(ctx context.Context, params *ec2.DescribeInstancesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error) {
	inst := ec2types.Instance{
		InstanceId: aws.String(params.InstanceIds[0]),
		State:      &ec2types.InstanceState{Name: f.state},
	}
	if f.address != "" {
		inst.PublicIpAddress = aws.String(f.address)
	}
	return &ec2.DescribeInstancesOutput{
		Reservations: []ec2types.Reservation{{Instances: []ec2types.Instance{inst}}},
	}, nil
}

func (f *fakeEC2) StartInstances(ctx context.Context, params *ec2.StartInstancesInput, optFns ...func(*ec2.Options)) (*ec2.StartInstancesOutput, error) {
	f.startCalls++
	if f.startErr != nil {
		return nil, f.startErr
	}
	return &ec2.StartInstancesOutput{}, nil
}

func (f *fakeEC2) StopInstances(ctx context.Context, params *ec2.StopInstancesInput, optFns ...func(*ec2.Options)) (*ec2.StopInstancesOutput, error) {
	f.stopCalls++
	if f.stopErr != nil {
		return nil, f.stopErr
	}
	return &ec2.StopInstancesOutput{}, nil
}

func newTestHandle(api ec2API) *EC2Handle {
	return NewEC2Handle(api, EC2Config{
		InstanceID:  "i-0abc123",
		Environment: EnvProduction,
		DeviceClass: DeviceGPU,
	})
}

func TestEC2Handle_Describe(t *testing.T) {
	ctx := context.Background()

	t.Run("reports running state with address", func(t *testing.T) {
		api := &fakeEC2{state: ec2types.InstanceStateNameRunning, address: "3.6.116.114"}
		h := newTestHandle(api)

		inst, err := h.Describe(ctx)

		require.NoError(t, err)
		assert.Equal(t, StateRunning, inst.State)
		assert.Equal(t, "3.6.116.114", inst.Address)
		assert.Equal(t, EnvProduction, inst.Environment)
		assert.Equal(t, DeviceGPU, inst.DeviceClass)
	})

	t.Run("omits address when not running", func(t *testing.T) {
		api := &fakeEC2{state: ec2types.InstanceStateNameStopped, address: "3.6.116.114"}
		h := newTestHandle(api)

		inst, err := h.Describe(ctx)

		require.NoError(t, err)
		assert.Equal(t, StateStopped, inst.State)
		assert.Empty(t, inst.Address)
	})

	t.Run("maps terminal states to unknown", func(t *testing.T) {
		api := &fakeEC2{state: ec2types.InstanceStateNameTerminated}
		h := newTestHandle(api)

		inst, err := h.Describe(ctx)

		require.NoError(t, err)
		assert.Equal(t, StateUnknown, inst.State)
	})
}

func TestEC2Handle_Start(t *testing.T) {
	ctx := context.Background()

	t.Run("starts a stopped instance", func(t *testing.T) {
		api := &fakeEC2{state: ec2types.InstanceStateNameStopped}
		h := newTestHandle(api)

		err := h.Start(ctx)

		require.NoError(t, err)
		assert.Equal(t, 1, api.startCalls)
	})

	t.Run("is a no-op on a running instance", func(t *testing.T) {
		api := &fakeEC2{state: ec2types.InstanceStateNameRunning}
		h := newTestHandle(api)

		err := h.Start(ctx)

		require.NoError(t, err)
		assert.Zero(t, api.startCalls)
	})

	t.Run("is a no-op on a pending instance", func(t *testing.T) {
		api := &fakeEC2{state: ec2types.InstanceStateNamePending}
		h := newTestHandle(api)

		err := h.Start(ctx)

		require.NoError(t, err)
		assert.Zero(t, api.startCalls)
	})

	t.Run("rejects a terminated instance", func(t *testing.T) {
		api := &fakeEC2{state: ec2types.InstanceStateNameTerminated}
		h := newTestHandle(api)

		err := h.Start(ctx)

		assert.ErrorIs(t, err, ErrTransitionRejected)
		assert.Zero(t, api.startCalls)
	})

	t.Run("wraps provider rejection", func(t *testing.T) {
		api := &fakeEC2{
			state:    ec2types.InstanceStateNameStopped,
			startErr: errors.New("IncorrectInstanceState"),
		}
		h := newTestHandle(api)

		err := h.Start(ctx)

		assert.ErrorIs(t, err, ErrTransitionRejected)
		var te *TransitionError
		require.ErrorAs(t, err, &te)
		assert.Equal(t, "i-0abc123", te.InstanceID)
		assert.Equal(t, "start", te.Requested)
	})
}

func TestEC2Handle_Stop(t *testing.T) {
	ctx := context.Background()

	t.Run("stops a running instance", func(t *testing.T) {
		api := &fakeEC2{state: ec2types.InstanceStateNameRunning}
		h := newTestHandle(api)

		err := h.Stop(ctx)

		require.NoError(t, err)
		assert.Equal(t, 1, api.stopCalls)
	})

	t.Run("is a no-op on a stopped instance", func(t *testing.T) {
		api := &fakeEC2{state: ec2types.InstanceStateNameStopped}
		h := newTestHandle(api)

		err := h.Stop(ctx)

		require.NoError(t, err)
		assert.Zero(t, api.stopCalls)
	})

	t.Run("is a no-op on a stopping instance", func(t *testing.T) {
		api := &fakeEC2{state: ec2types.InstanceStateNameStopping}
		h := newTestHandle(api)

		err := h.Stop(ctx)

		require.NoError(t, err)
		assert.Zero(t, api.stopCalls)
	})

	t.Run("wraps provider rejection", func(t *testing.T) {
		api := &fakeEC2{
			state:   ec2types.InstanceStateNameRunning,
			stopErr: errors.New("UnsupportedOperation"),
		}
		h := newTestHandle(api)

		err := h.Stop(ctx)

		assert.ErrorIs(t, err, ErrTransitionRejected)
	})
}
