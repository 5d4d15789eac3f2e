package infra

import (
	"time"

	"github.com/imroc/req/v3"
)

// ProvideHttpClient returns a client bound to the main server, which owns
// wallets and video rooms.
func ProvideHttpClient(env *Env) *req.Client {
	return req.C(). // Use C() to create a client and set with chainable client settings.
		SetBaseURL(env.MainServerHost).
		SetCommonHeader("jtoken", env.MainServerApiKey).
		// Timeout of all requests.
		SetTimeout(10 * time.Second).
		// Enable retry and set the maximum retry count.
		SetCommonRetryCount(2).
		SetCommonRetryFixedInterval(500 * time.Millisecond)
}
