package backends

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/jc2k/cwstatsd"
	"github.com/jc2k/cwstatsd/pkg/backends/cloudwatch"
	"github.com/jc2k/cwstatsd/pkg/backends/null"
	"github.com/jc2k/cwstatsd/pkg/backends/stdout"
)

// Factory creates a Publisher.  host and instance describe the machine this process runs on, and may be nil.
type Factory func(v *viper.Viper, logger logrus.FieldLogger, host cwstatsd.HostProvider, instance *cwstatsd.Instance) (cwstatsd.Publisher, error)

// All known publishers.
var publishers = map[string]Factory{
	cloudwatch.BackendName: cloudwatch.NewClientFromViper,
	null.BackendName:       null.NewClientFromViper,
	stdout.BackendName:     stdout.NewClientFromViper,
}

// GetPublisher creates an instance of the named publisher, or nil if
// the name is not known. The error return is only used if the named publisher
// was known but failed to initialize.
func GetPublisher(name string, v *viper.Viper, logger logrus.FieldLogger, host cwstatsd.HostProvider, instance *cwstatsd.Instance) (cwstatsd.Publisher, error) {
	f, found := publishers[name]
	if !found {
		return nil, nil
	}
	return f(v, logger, host, instance)
}

// InitPublisher creates an instance of the named publisher.
func InitPublisher(name string, v *viper.Viper, logger logrus.FieldLogger, host cwstatsd.HostProvider, instance *cwstatsd.Instance) (cwstatsd.Publisher, error) {
	publisher, err := GetPublisher(name, v, logger.WithField("publisher", name), host, instance)
	if err != nil {
		return nil, fmt.Errorf("could not init publisher %q: %w", name, err)
	}
	if publisher == nil {
		return nil, fmt.Errorf("unknown publisher %q", name)
	}
	logger.Infof("Initialised publisher %q", name)

	return publisher, nil
}

// InitPublishers creates every named publisher.  At least one is required.
func InitPublishers(names []string, v *viper.Viper, logger logrus.FieldLogger, host cwstatsd.HostProvider, instance *cwstatsd.Instance) ([]cwstatsd.Publisher, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("no publishers specified")
	}
	result := make([]cwstatsd.Publisher, 0, len(names))
	for _, name := range names {
		publisher, err := InitPublisher(name, v, logger, host, instance)
		if err != nil {
			return nil, err
		}
		result = append(result, publisher)
	}
	return result, nil
}
