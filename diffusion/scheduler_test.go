package diffusion

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestNewSchedulerValidation(t *testing.T) {
	_, err := NewScheduler(SchedulerConfig{NumTrainTimesteps: 0})
	require.Error(t, err)

	_, err = NewScheduler(SchedulerConfig{NumTrainTimesteps: 10, BetaSchedule: "cosine"})
	require.Error(t, err)
}

func TestSetTimesteps(t *testing.T) {
	s, err := NewScheduler(DefaultSchedulerConfig())
	require.NoError(t, err)

	cases := []struct {
		name string
		n    int
		want []int
	}{
		{"five steps", 5, []int{800, 600, 400, 200, 0}},
		{"single step", 1, []int{0}},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, s.SetTimesteps(tt.n))
			if diff := cmp.Diff(tt.want, s.Timesteps()); diff != "" {
				t.Errorf("unexpected timesteps (-want +got):\n%s", diff)
			}
		})
	}

	t.Run("out of range", func(t *testing.T) {
		require.Error(t, s.SetTimesteps(0))
		require.Error(t, s.SetTimesteps(1001))
	})
}

func TestSetTimestepsOffset(t *testing.T) {
	cfg := DefaultSchedulerConfig()
	cfg.StepsOffset = 1
	s, err := NewScheduler(cfg)
	require.NoError(t, err)
	require.NoError(t, s.SetTimesteps(4))
	require.Equal(t, []int{751, 501, 251, 1}, s.Timesteps())
}

func TestAlphaCumprod(t *testing.T) {
	cfg := SchedulerConfig{
		NumTrainTimesteps: 4,
		BetaStart:         0.1,
		BetaEnd:           0.4,
		BetaSchedule:      BetaLinear,
	}
	s, err := NewScheduler(cfg)
	require.NoError(t, err)

	// betas are 0.1, 0.2, 0.3, 0.4; cumprod of (1-beta).
	require.InDelta(t, 0.9, s.AlphaCumprod(0), 1e-9)
	require.InDelta(t, 0.9*0.8, s.AlphaCumprod(1), 1e-9)
	require.InDelta(t, 0.9*0.8*0.7*0.6, s.AlphaCumprod(3), 1e-9)

	// Below zero: first cumprod value unless SetAlphaToOne.
	require.InDelta(t, 0.9, s.AlphaCumprod(-1), 1e-9)

	cfg.SetAlphaToOne = true
	s, err = NewScheduler(cfg)
	require.NoError(t, err)
	require.InDelta(t, 1.0, s.AlphaCumprod(-1), 1e-9)
}

func TestAlphaCumprodDecreasing(t *testing.T) {
	s, err := NewScheduler(DefaultSchedulerConfig())
	require.NoError(t, err)
	for i := 1; i < s.TrainTimesteps(); i++ {
		require.Less(t, s.AlphaCumprod(i), s.AlphaCumprod(i-1), "timestep %d", i)
	}
}
