package httputil

// Machine-readable error codes returned alongside error messages so clients
// can branch without string matching.
const (
	// Request / validation
	CodeInvalidRequestBody = "invalid_request_body"
	CodeMissingField       = "missing_field"
	CodeInvalidAmount      = "invalid_amount"
	CodeInvalidType        = "invalid_type"
	CodeEmailRequired      = "email_required"
	CodeNameRequired       = "name_required"
	CodePasswordRequired   = "password_required"
	CodePasswordTooShort   = "password_too_short"
	CodeInvalidEmailFormat = "invalid_email_format"

	// Authentication / authorization
	CodeMissingAuth        = "missing_authentication"
	CodeInvalidAuthHeader  = "invalid_auth_header"
	CodeInvalidToken       = "invalid_token"
	CodeTokenExpired       = "token_expired"
	CodeInvalidTokenUserID = "invalid_token_user_id"
	CodeInvalidCredentials = "invalid_credentials"
	CodeEmailNotVerified   = "email_not_verified"

	// Account lifecycle
	CodeEmailAlreadyExists    = "email_already_exists"
	CodeUserNotFound          = "user_not_found"
	CodeInvalidActivationCode = "invalid_activation_code"
	CodeAlreadyVerified       = "already_verified"
	CodeInvalidResetToken     = "invalid_reset_token"
	CodeResetTokenRequired    = "reset_token_required"
	CodeEmailSendFailed       = "email_send_failed"

	// Ledger
	CodeTransactionNotFound   = "transaction_not_found"
	CodeBalanceReconciliation = "balance_reconciliation_failed"

	// Rate limiting
	CodeTooManyRequests = "too_many_requests"
	CodeCooldownActive  = "cooldown_active"

	// Catch-all
	CodeInternalError = "internal_error"
)
