package static

import (
	"context"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jc2k/cwstatsd"
	"github.com/jc2k/cwstatsd/internal/fixtures"
)

func TestNewProviderFromViper(t *testing.T) {
	t.Parallel()
	v := viper.New()
	v.Set("static.instance-id", "i-abc")
	v.Set("static.region", "eu-west-1")
	v.Set("static.tags", map[string]string{cwstatsd.AutoScalingGroupTag: "workers"})

	p, err := NewProviderFromViper(v, fixtures.NewTestLogger(t))
	require.NoError(t, err)
	assert.Equal(t, ProviderName, p.Name())

	instance, err := p.SelfInstance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "i-abc", instance.ID)
	assert.Equal(t, "eu-west-1", instance.Region)
	assert.Equal(t, "workers", instance.AutoScalingGroup())
}

func TestNewProviderFromViperRequiresID(t *testing.T) {
	t.Parallel()
	_, err := NewProviderFromViper(viper.New(), fixtures.NewTestLogger(t))
	assert.Error(t, err)
}

func TestSelfInstanceReturnsCopy(t *testing.T) {
	t.Parallel()
	p := NewProvider(cwstatsd.Instance{ID: "i-1", Tags: map[string]string{"k": "v"}})

	first, err := p.SelfInstance(context.Background())
	require.NoError(t, err)
	first.Tags["k"] = "changed"
	first.ID = "other"

	second, err := p.SelfInstance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "i-1", second.ID)
	assert.Equal(t, "v", second.Tags["k"])
}
