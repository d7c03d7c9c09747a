package gossip

type options struct {
	metrics  *Metrics
	specific bool
}

type Option interface {
	apply(*options)
}

type metricsOption struct {
	Metrics *Metrics
}

func (o metricsOption) apply(opts *options) {
	opts.metrics = o.Metrics
}

// WithMetrics records metrics for the gossiper or handler. If not given,
// metrics are recorded to an unregistered Metrics.
func WithMetrics(metrics *Metrics) Option {
	return metricsOption{Metrics: metrics}
}

type specificOption bool

func (o specificOption) apply(opts *options) {
	opts.specific = bool(o)
}

// WithSpecific configures a push gossiper to send to the peers selected by
// the clients selector using GossipSpecific, rather than a random sample
// using Gossip.
func WithSpecific() Option {
	return specificOption(true)
}

func applyOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt.apply(&o)
	}
	if o.metrics == nil {
		o.metrics = NewMetrics()
	}
	return o
}
