package resilience

import "time"

// Presets for common resource classes. These are configuration conveniences
// only; the algorithms are identical for every bulkhead and policy.

// DatabaseBulkhead suits connection-pool-backed databases: modest
// concurrency, deep queue.
func DatabaseBulkhead() BulkheadConfig {
	return BulkheadConfig{
		MaxConcurrent: 20,
		MaxQueue:      1000,
		Timeout:       10 * time.Second,
	}
}

// ExternalAPIBulkhead suits third-party HTTP APIs: moderate concurrency,
// longer timeout, bounded queue wait.
func ExternalAPIBulkhead() BulkheadConfig {
	return BulkheadConfig{
		MaxConcurrent: 50,
		MaxQueue:      500,
		Timeout:       30 * time.Second,
		QueueTimeout:  30 * time.Second,
	}
}

// MessageBrokerBulkhead suits broker publish/consume paths: high concurrency,
// deep queue.
func MessageBrokerBulkhead() BulkheadConfig {
	return BulkheadConfig{
		MaxConcurrent: 100,
		MaxQueue:      2000,
		Timeout:       15 * time.Second,
	}
}

// DatabaseRetry retries quickly with a tight cap; transient pool contention
// clears fast or not at all.
func DatabaseRetry() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   50 * time.Millisecond,
		MaxDelay:    2 * time.Second,
		Jitter:      true,
	}
}

// ExternalAPIRetry allows an extra attempt with longer delays for rate-limited
// third-party APIs.
func ExternalAPIRetry() RetryConfig {
	return RetryConfig{
		MaxAttempts: 4,
		BaseDelay:   200 * time.Millisecond,
		MaxDelay:    5 * time.Second,
		Jitter:      true,
	}
}

// MessageBrokerRetry tolerates broker reconnect windows.
func MessageBrokerRetry() RetryConfig {
	return RetryConfig{
		MaxAttempts: 5,
		BaseDelay:   100 * time.Millisecond,
		MaxDelay:    10 * time.Second,
		Jitter:      true,
	}
}

// AggressiveRetry retries fast without jitter, for tests and latency-critical
// paths.
func AggressiveRetry() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   10 * time.Millisecond,
		MaxDelay:    500 * time.Millisecond,
	}
}

// ConservativeRetry backs off slowly for dependencies that punish hammering.
func ConservativeRetry() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    30 * time.Second,
		Jitter:      true,
	}
}
