// Package httputil holds the retry policy shared by the registry clients.
//
// Transient failures (connection errors, 5xx responses, 429) are wrapped in
// [RetryableError] by the caller; [Retry] repeats the operation with
// exponential backoff and gives up immediately on anything else.
//
//	err := httputil.RetryWithBackoff(ctx, func() error {
//	    return fetch(ctx)
//	})
package httputil
