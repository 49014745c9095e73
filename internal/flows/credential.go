package flows

import "context"

// CredentialFailureKind classifies login/register flow failures for
// root-level mapping.
type CredentialFailureKind int

const (
	CredentialFailureNone CredentialFailureKind = iota
	CredentialFailureValidation
	CredentialFailureRateLimited
	CredentialFailureRequest
)

// CredentialResult carries either the issued session or failure metadata.
// RetryText holds the human-readable wait time for rate-limited failures.
type CredentialResult struct {
	Failure      CredentialFailureKind
	Err          error
	RetryText    string
	AccessToken  string
	RefreshToken string
	UserJSON     string
}

// CredentialDeps captures login/register flow dependencies. ValidateInput is
// pre-bound over the submitted fields; Call performs the actual auth request.
type CredentialDeps struct {
	ValidateInput     func() error
	LimitKey          string
	CanAttempt        func(key string) bool
	TimeRemainingText func(key string) string
	RecordAttempt     func(key string)
	ResetLimit        func(key string)
	Call              func(ctx context.Context) (access, refresh, userJSON string, err error)
	Persist           func(ctx context.Context, access, refresh, userJSON string) error
	Warn              func(format string, args ...any)
}

// RunCredential executes the shared login/register sequence: validate
// locally, gate on the rate limiter, count the attempt, call the backend,
// and reset the limiter on success. Attempts are counted before the call so
// a crashed request still consumes budget.
func RunCredential(ctx context.Context, deps CredentialDeps) CredentialResult {
	if err := deps.ValidateInput(); err != nil {
		return CredentialResult{Failure: CredentialFailureValidation, Err: err}
	}

	if !deps.CanAttempt(deps.LimitKey) {
		return CredentialResult{
			Failure:   CredentialFailureRateLimited,
			RetryText: deps.TimeRemainingText(deps.LimitKey),
		}
	}
	deps.RecordAttempt(deps.LimitKey)

	access, refresh, userJSON, err := deps.Call(ctx)
	if err != nil {
		return CredentialResult{Failure: CredentialFailureRequest, Err: err}
	}
	deps.ResetLimit(deps.LimitKey)

	if err := deps.Persist(ctx, access, refresh, userJSON); err != nil {
		deps.Warn("credential: persist failed: %v", err)
	}

	return CredentialResult{
		AccessToken:  access,
		RefreshToken: refresh,
		UserJSON:     userJSON,
	}
}
