package config

import "github.com/cenkalti/backoff/v4"

func (c Config) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = c.RetryMaxElapsed
	return b
}
