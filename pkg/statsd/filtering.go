package statsd

import (
	"github.com/spf13/viper"

	"github.com/jc2k/cwstatsd"
)

// Filter decides which metric names are accepted.
type Filter struct {
	MatchMetrics   cwstatsd.StringMatchList // If not empty, name must match one
	ExcludeMetrics cwstatsd.StringMatchList // Name must not match any
}

// NewFilter creates a Filter from allow and deny rules, see cwstatsd.StringMatch for the rule syntax.
func NewFilter(allow, deny []string) (Filter, error) {
	match, err := cwstatsd.NewStringMatchList(allow)
	if err != nil {
		return Filter{}, err
	}
	exclude, err := cwstatsd.NewStringMatchList(deny)
	if err != nil {
		return Filter{}, err
	}
	return Filter{
		MatchMetrics:   match,
		ExcludeMetrics: exclude,
	}, nil
}

// NewFilterFromViper creates a new Filter from the allow-metrics and deny-metrics parameters.
func NewFilterFromViper(v *viper.Viper) (Filter, error) {
	v.SetDefault(cwstatsd.ParamAllowMetrics, []string{})
	v.SetDefault(cwstatsd.ParamDenyMetrics, []string{})
	return NewFilter(v.GetStringSlice(cwstatsd.ParamAllowMetrics), v.GetStringSlice(cwstatsd.ParamDenyMetrics))
}

// Allowed returns true if a metric named name should be recorded.
func (f Filter) Allowed(name string) bool {
	if len(f.MatchMetrics) > 0 && !f.MatchMetrics.MatchAny(name) {
		return false
	}
	return !f.ExcludeMetrics.MatchAny(name)
}

// IsEmpty returns true if the Filter accepts everything.
func (f Filter) IsEmpty() bool {
	return len(f.MatchMetrics) == 0 && len(f.ExcludeMetrics) == 0
}
