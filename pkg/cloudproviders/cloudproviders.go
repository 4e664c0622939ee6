package cloudproviders

import (
	"errors"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/jc2k/cwstatsd"
	"github.com/jc2k/cwstatsd/pkg/cloudproviders/aws"
	"github.com/jc2k/cwstatsd/pkg/cloudproviders/static"
)

// Factory creates a HostProvider from configuration.
type Factory func(v *viper.Viper, logger logrus.FieldLogger) (cwstatsd.HostProvider, error)

var (
	// All registered host providers.
	providers = map[string]Factory{
		aws.ProviderName:    aws.NewProviderFromViper,
		static.ProviderName: static.NewProviderFromViper,
	}

	ErrUnknownProvider = errors.New("unknown cloud provider")
)

// Get creates an instance of the named provider.  An empty name returns a nil provider.
func Get(logger logrus.FieldLogger, name string, v *viper.Viper) (cwstatsd.HostProvider, error) {
	if name == "" {
		return nil, nil
	}
	f, found := providers[name]
	if !found {
		return nil, ErrUnknownProvider
	}
	return f(v, logger.WithField("cloud_provider", name))
}
