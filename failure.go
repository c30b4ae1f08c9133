package outbox

// classifyResult decides whether a failed publish result should retry
// (FAILED, eligible for reclaim) or dead-letter immediately, per spec §4.2
// step 3.e/3.f: retry while retry_count+1 < max_retries, else dead-letter.
// A Retriable=false result from the Publisher always dead-letters regardless
// of remaining budget (spec's PublisherPermanent kind).
func classifyResult(event Event, result PublishResult) FailureAction {
	if !result.Retriable {
		return FailureDead
	}
	if event.RetryCount+1 >= event.MaxRetries {
		return FailureDead
	}

	return FailureRetry
}

// FailureAction defines how a failed publish attempt is resolved.
type FailureAction int

const (
	// FailureRetry marks the event FAILED, incrementing retry_count.
	FailureRetry FailureAction = iota
	// FailureDead marks the event DEAD_LETTER.
	FailureDead
)
